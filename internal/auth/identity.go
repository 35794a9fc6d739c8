package auth

import (
	"strings"

	"github.com/gdg-portal/permission-portal/internal/perrors"
)

// Identity is what the identity provider tells us about the signed-in person.
type Identity struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
}

// ResolveIdentity turns a session token into the identity it was issued for.
// Every failure is Unauthenticated; the token is re-validated on each call.
func ResolveIdentity(sessionToken string) (Identity, error) {
	if sessionToken == "" {
		return Identity{}, perrors.NewUnauthenticated("no session", nil)
	}

	claims, err := ValidateSessionToken(sessionToken)
	if err != nil {
		return Identity{}, perrors.NewUnauthenticated("session is invalid or expired", err)
	}
	if claims.Subject == "" {
		return Identity{}, perrors.NewUnauthenticated("session has no subject", nil)
	}

	return Identity{
		ID:        claims.Subject,
		Email:     claims.Email,
		FirstName: claims.FirstName,
		LastName:  claims.LastName,
	}, nil
}

// SplitName splits a display name into first and last name at the first space.
// Used when the provider only supplies "name".
func SplitName(full string) (first, last string) {
	full = strings.TrimSpace(full)
	first, last, _ = strings.Cut(full, " ")
	return first, strings.TrimSpace(last)
}
