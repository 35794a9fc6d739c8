// Package models - user.go defines the User model: one portal profile per identity,
// with an access role and a self-reported position label.
package models

import (
	"strings"
	"time"
)

// Role is a user's access tier.
type Role string

const (
	RoleMember    Role = "member"
	RoleAdmin     Role = "admin"
	RoleOrganizer Role = "organizer"
)

// DefaultPosition is assigned to new users until they set their own.
const DefaultPosition = "Member"

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	switch r {
	case RoleMember, RoleAdmin, RoleOrganizer:
		return true
	}
	return false
}

// User represents a portal user
type User struct {
	ID        string    `db:"id"`
	Email     string    `db:"email"`
	FirstName string    `db:"first_name"`
	LastName  string    `db:"last_name"`
	Role      Role      `db:"role"`
	Position  string    `db:"position"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// DisplayName returns "First Last", falling back to the email.
func (u *User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Email
	}
	return name
}

// NeedsPosition is true while the user still carries the default position.
func (u *User) NeedsPosition() bool {
	return u.Position == DefaultPosition
}
