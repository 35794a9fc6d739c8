package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/gdg-portal/permission-portal/internal/auth"
	"github.com/gdg-portal/permission-portal/internal/db/models"
	"github.com/gdg-portal/permission-portal/internal/db/repositories"
	"github.com/gdg-portal/permission-portal/internal/perrors"
)

const maxPositionLength = 100

// Directory keeps one profile per identity.
type Directory struct {
	users UserStore
}

// NewDirectory creates a user directory over users.
func NewDirectory(users UserStore) *Directory {
	return &Directory{users: users}
}

// EnsureUser creates the user on first sight or refreshes the provider-owned
// profile fields. Role and position of an existing user are never changed.
func (d *Directory) EnsureUser(ctx context.Context, id auth.Identity) (*models.User, error) {
	if strings.TrimSpace(id.ID) == "" {
		return nil, perrors.NewValidation("identity has no id")
	}

	user, err := d.users.EnsureUser(ctx, &models.User{
		ID:        id.ID,
		Email:     id.Email,
		FirstName: id.FirstName,
		LastName:  id.LastName,
		Role:      models.RoleMember,
		Position:  models.DefaultPosition,
	})
	if err != nil {
		return nil, perrors.NewInternal("failed to load your profile", fmt.Errorf("ensure user %s: %w", id.ID, err))
	}
	return user, nil
}

// SetPosition updates the caller's own position label.
func (d *Directory) SetPosition(ctx context.Context, userID, position string) error {
	position = strings.TrimSpace(position)
	if position == "" {
		return perrors.NewValidation("Position is required")
	}
	if utf8.RuneCountInString(position) > maxPositionLength {
		return perrors.NewValidation(fmt.Sprintf("Position must be at most %d characters", maxPositionLength))
	}

	err := d.users.SetPosition(ctx, userID, position)
	if errors.Is(err, repositories.ErrNotFound) {
		return perrors.NewNotFound("user not found", map[string]any{"user_id": userID})
	}
	if err != nil {
		return perrors.NewInternal("failed to update position", err)
	}
	return nil
}

// GetRole returns the user's role.
func (d *Directory) GetRole(ctx context.Context, userID string) (models.Role, error) {
	user, err := d.users.GetUserByID(ctx, userID)
	if err != nil {
		return "", perrors.NewInternal("failed to look up user", err)
	}
	if user == nil {
		return "", perrors.NewNotFound("user not found", map[string]any{"user_id": userID})
	}
	return user.Role, nil
}

// CountAll returns the number of known users.
func (d *Directory) CountAll(ctx context.Context) (int, error) {
	n, err := d.users.Count(ctx)
	if err != nil {
		return 0, perrors.NewInternal("failed to count users", err)
	}
	return n, nil
}
