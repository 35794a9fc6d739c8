package services

import (
	"context"

	"github.com/gdg-portal/permission-portal/internal/db/models"
	"github.com/gdg-portal/permission-portal/internal/perrors"
)

// AuditLog reads the transition history. Entries are only ever written by
// Ledger.Transition.
type AuditLog struct {
	entries AuditStore
}

func NewAuditLog(entries AuditStore) *AuditLog {
	return &AuditLog{entries: entries}
}

// ListRecent returns up to limit entries joined with the actor, newest first.
func (a *AuditLog) ListRecent(ctx context.Context, limit int) ([]models.AuditLogWithActor, error) {
	logs, err := a.entries.ListRecent(ctx, normalizeLimit(limit))
	if err != nil {
		return nil, perrors.NewInternal("failed to load audit log", err)
	}
	return logs, nil
}
