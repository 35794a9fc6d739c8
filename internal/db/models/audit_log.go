// Package models - audit_log.go defines the AuditLog model: an append-only record of one
// permission request status transition.
package models

import (
	"strings"
	"time"
)

// AuditLog represents one status transition. Details is a snapshot of the request
// title at transition time; RequestID is informational and not a foreign key.
type AuditLog struct {
	ID        string    `db:"id"`
	Action    string    `db:"action"`    // "APPROVED", "REJECTED", "PENDING"
	Details   string    `db:"details"`   // request title at transition time
	ActorID   *string   `db:"actor_id"`  // nullable once the actor's account is removed
	RequestID *string   `db:"request_id"`
	CreatedAt time.Time `db:"created_at"`
}

// AuditLogWithActor is an audit entry joined with the acting user's profile.
// The actor fields are nil when the actor no longer exists.
type AuditLogWithActor struct {
	AuditLog
	ActorEmail     *string `db:"actor_email"`
	ActorFirstName *string `db:"actor_first_name"`
	ActorLastName  *string `db:"actor_last_name"`
}

// ActorName returns the actor's display name or "Unknown".
func (a *AuditLogWithActor) ActorName() string {
	var first, last string
	if a.ActorFirstName != nil {
		first = *a.ActorFirstName
	}
	if a.ActorLastName != nil {
		last = *a.ActorLastName
	}
	if name := strings.TrimSpace(first + " " + last); name != "" {
		return name
	}
	if a.ActorEmail != nil && *a.ActorEmail != "" {
		return *a.ActorEmail
	}
	return "Unknown"
}
