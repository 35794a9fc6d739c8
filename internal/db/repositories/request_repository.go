// request_repository.go implements RequestRepository: permission request storage and the
// transactional status transition that appends the matching audit entry.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/gdg-portal/permission-portal/internal/db/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/oklog/ulid/v2"
)

const requestColumns = `pr.id, pr.user_id, pr.title, pr.reason, pr.status, pr.created_at, pr.updated_at`

const requestWithUserColumns = requestColumns + `,
	u.email AS user_email, u.first_name AS user_first_name,
	u.last_name AS user_last_name, u.position AS user_position`

// RequestRepository handles permission request database operations
type RequestRepository struct {
	db *sqlx.DB
}

// NewRequestRepository creates a new RequestRepository
func NewRequestRepository(db *sqlx.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// Create inserts a new request in the pending state. ID, Status and timestamps are
// assigned here.
func (r *RequestRepository) Create(ctx context.Context, req *models.PermissionRequest) error {
	now := time.Now().UTC()
	req.ID = uuid.New().String()
	req.Status = models.RequestStatusPending
	req.CreatedAt = now
	req.UpdatedAt = now

	query := `
		INSERT INTO permission_requests (id, user_id, title, reason, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		req.ID,
		req.UserID,
		req.Title,
		req.Reason,
		req.Status,
		req.CreatedAt,
		req.UpdatedAt,
	)
	return err
}

// ListByUser returns the user's requests, newest first
func (r *RequestRepository) ListByUser(ctx context.Context, userID string) ([]models.PermissionRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM permission_requests pr
		WHERE pr.user_id = $1
		ORDER BY pr.created_at DESC, pr.id DESC
	`
	requests := make([]models.PermissionRequest, 0)
	if err := r.db.SelectContext(ctx, &requests, query, userID); err != nil {
		return nil, err
	}
	return requests, nil
}

// ListPending returns all pending requests with their submitters, oldest first
func (r *RequestRepository) ListPending(ctx context.Context) ([]models.PermissionRequestWithUser, error) {
	query := `
		SELECT ` + requestWithUserColumns + `
		FROM permission_requests pr
		JOIN users u ON u.id = pr.user_id
		WHERE pr.status = $1
		ORDER BY pr.created_at ASC, pr.id ASC
	`
	requests := make([]models.PermissionRequestWithUser, 0)
	if err := r.db.SelectContext(ctx, &requests, query, models.RequestStatusPending); err != nil {
		return nil, err
	}
	return requests, nil
}

// ListRecentResolved returns the most recent non-pending requests with their submitters,
// newest first
func (r *RequestRepository) ListRecentResolved(ctx context.Context, limit int) ([]models.PermissionRequestWithUser, error) {
	query := `
		SELECT ` + requestWithUserColumns + `
		FROM permission_requests pr
		JOIN users u ON u.id = pr.user_id
		WHERE pr.status <> $1
		ORDER BY pr.created_at DESC, pr.id DESC
		LIMIT $2
	`
	requests := make([]models.PermissionRequestWithUser, 0)
	if err := r.db.SelectContext(ctx, &requests, query, models.RequestStatusPending, limit); err != nil {
		return nil, err
	}
	return requests, nil
}

// Count returns the total number of requests
func (r *RequestRepository) Count(ctx context.Context) (int, error) {
	var total int
	err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM permission_requests`)
	return total, err
}

// Transition sets the request's status and appends one audit entry in the same
// transaction. The entry's details snapshot the title as of the update. Returns
// ErrNotFound, with nothing written, when the request does not exist.
func (r *RequestRepository) Transition(ctx context.Context, requestID string, status models.RequestStatus, actorID string) (*models.AuditLog, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() // nolint:errcheck

	now := time.Now().UTC()

	var title string
	err = tx.QueryRowxContext(ctx,
		`UPDATE permission_requests SET status = $2, updated_at = $3 WHERE id = $1 RETURNING title`,
		requestID, status, now,
	).Scan(&title)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	entry := &models.AuditLog{
		ID:        ulid.Make().String(),
		Action:    status.AuditAction(),
		Details:   title,
		ActorID:   &actorID,
		RequestID: &requestID,
		CreatedAt: now,
	}
	if err := insertAuditLog(ctx, tx, entry); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return entry, nil
}
