package middleware

import (
	"context"
	"net/http"

	"github.com/gdg-portal/permission-portal/internal/api/views"
	"github.com/gdg-portal/permission-portal/internal/auth"
	"github.com/gdg-portal/permission-portal/internal/db/models"
	"github.com/gin-gonic/gin"
)

const (
	// UserKey holds the *models.User for the signed-in user.
	UserKey = "user"
	// UserIDKey holds the signed-in user's id.
	UserIDKey = "user_id"

	// SignInPath is where unauthenticated browsers are sent.
	SignInPath = "/sign-in"
)

// UserEnsurer creates or refreshes the directory entry for an identity.
type UserEnsurer interface {
	EnsureUser(ctx context.Context, id auth.Identity) (*models.User, error)
}

// SessionMiddleware resolves the identity from the session cookie and ensures
// the matching user before any handler runs, so role checks always see the
// current directory entry. Requests without a valid session are redirected to
// the sign-in page and the stale cookie is cleared.
func SessionMiddleware(cookieName string, secure bool, users UserEnsurer) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie(cookieName)

		identity, err := auth.ResolveIdentity(token)
		if err != nil {
			if token != "" {
				c.SetSameSite(http.SameSiteLaxMode)
				c.SetCookie(cookieName, "", -1, "/", "", secure, true)
			}
			c.Redirect(http.StatusFound, SignInPath)
			c.Abort()
			return
		}

		user, err := users.EnsureUser(c.Request.Context(), identity)
		if err != nil {
			views.HandleError(c, err, SignInPath)
			return
		}

		c.Set(UserKey, user)
		c.Set(UserIDKey, user.ID)
		c.Next()
	}
}

// CurrentUser returns the user stored by SessionMiddleware, or nil.
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(UserKey)
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}
