// Package services holds the portal's workflow logic: the user directory, the
// permission request ledger and the audit log reader. Handlers call these; the
// services in turn talk to the repositories and map storage outcomes onto the
// perrors taxonomy.
package services

import (
	"context"

	"github.com/gdg-portal/permission-portal/internal/audit"
	"github.com/gdg-portal/permission-portal/internal/db/models"
)

// UserStore is the slice of the user repository the directory needs.
type UserStore interface {
	EnsureUser(ctx context.Context, u *models.User) (*models.User, error)
	GetUserByID(ctx context.Context, userID string) (*models.User, error)
	SetPosition(ctx context.Context, userID, position string) error
	Count(ctx context.Context) (int, error)
}

// RequestStore is the slice of the request repository the ledger needs.
type RequestStore interface {
	Create(ctx context.Context, req *models.PermissionRequest) error
	ListByUser(ctx context.Context, userID string) ([]models.PermissionRequest, error)
	ListPending(ctx context.Context) ([]models.PermissionRequestWithUser, error)
	ListRecentResolved(ctx context.Context, limit int) ([]models.PermissionRequestWithUser, error)
	Count(ctx context.Context) (int, error)
	Transition(ctx context.Context, requestID string, status models.RequestStatus, actorID string) (*models.AuditLog, error)
}

// AuditStore is the read side of the audit repository.
type AuditStore interface {
	ListRecent(ctx context.Context, limit int) ([]models.AuditLogWithActor, error)
}

// AuditShipper forwards committed audit entries to external sinks.
type AuditShipper interface {
	Ship(ctx context.Context, entry *audit.LogEntry) error
}

// DefaultListLimit is the page size of the admin history and audit tables.
const DefaultListLimit = 10

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
