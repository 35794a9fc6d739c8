// audit_repository.go implements AuditRepository. Audit entries are only ever inserted
// (inside RequestRepository.Transition) and read; there is no update or delete path.
package repositories

import (
	"context"

	"github.com/gdg-portal/permission-portal/internal/db/models"
	"github.com/jmoiron/sqlx"
)

// AuditRepository handles audit log database operations
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository creates a new AuditRepository
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// insertAuditLog writes one entry using the caller's transaction.
func insertAuditLog(ctx context.Context, tx sqlx.ExecerContext, entry *models.AuditLog) error {
	query := `
		INSERT INTO audit_logs (id, action, details, actor_id, request_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := tx.ExecContext(ctx, query,
		entry.ID,
		entry.Action,
		entry.Details,
		entry.ActorID,
		entry.RequestID,
		entry.CreatedAt,
	)
	return err
}

// ListRecent returns the newest audit entries joined with their actor, newest first.
// Actor fields are NULL when the actor no longer exists.
func (r *AuditRepository) ListRecent(ctx context.Context, limit int) ([]models.AuditLogWithActor, error) {
	query := `
		SELECT a.id, a.action, a.details, a.actor_id, a.request_id, a.created_at,
		       u.email AS actor_email, u.first_name AS actor_first_name, u.last_name AS actor_last_name
		FROM audit_logs a
		LEFT JOIN users u ON u.id = a.actor_id
		ORDER BY a.created_at DESC, a.id DESC
		LIMIT $1
	`
	logs := make([]models.AuditLogWithActor, 0)
	if err := r.db.SelectContext(ctx, &logs, query, limit); err != nil {
		return nil, err
	}
	return logs, nil
}
