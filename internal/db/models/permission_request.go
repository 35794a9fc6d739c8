// Package models - permission_request.go defines the PermissionRequest model and its
// status lifecycle (pending, approved, rejected; every state reachable from every other).
package models

import (
	"strings"
	"time"
)

// RequestStatus represents the lifecycle status of a permission request
type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusApproved RequestStatus = "approved"
	RequestStatusRejected RequestStatus = "rejected"
)

// IsValid reports whether s is a known status.
func (s RequestStatus) IsValid() bool {
	switch s {
	case RequestStatusPending, RequestStatusApproved, RequestStatusRejected:
		return true
	}
	return false
}

// AuditAction is the audit log action recorded for a transition to s.
func (s RequestStatus) AuditAction() string {
	return strings.ToUpper(string(s))
}

// PermissionRequest represents a member's request for permission
type PermissionRequest struct {
	ID        string        `db:"id"`
	UserID    string        `db:"user_id"`
	Title     string        `db:"title"`
	Reason    *string       `db:"reason"`
	Status    RequestStatus `db:"status"`
	CreatedAt time.Time     `db:"created_at"`
	UpdatedAt time.Time     `db:"updated_at"`
}

// PermissionRequestWithUser is a request joined with its submitter's profile.
type PermissionRequestWithUser struct {
	PermissionRequest
	UserEmail     string `db:"user_email"`
	UserFirstName string `db:"user_first_name"`
	UserLastName  string `db:"user_last_name"`
	UserPosition  string `db:"user_position"`
}

// SubmitterName returns the submitter's display name.
func (r *PermissionRequestWithUser) SubmitterName() string {
	name := strings.TrimSpace(r.UserFirstName + " " + r.UserLastName)
	if name == "" {
		return r.UserEmail
	}
	return name
}

// ReasonText returns the reason or an empty string.
func (r *PermissionRequest) ReasonText() string {
	if r.Reason == nil {
		return ""
	}
	return *r.Reason
}
