// Package repositories implements the data access layer for the portal.
// Each repository encapsulates the queries for one table; services never issue SQL directly.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/gdg-portal/permission-portal/internal/db/models"
	"github.com/jmoiron/sqlx"
)

// ErrNotFound is returned by mutations whose target row does not exist.
// Single-row reads return nil, nil instead.
var ErrNotFound = errors.New("record not found")

const userColumns = `id, email, first_name, last_name, role, position, created_at, updated_at`

// ensureUserQuery leaves role and position out of the conflict SET list.
const ensureUserQuery = `
	INSERT INTO users (` + userColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	ON CONFLICT (id) DO UPDATE SET
		email = EXCLUDED.email,
		first_name = EXCLUDED.first_name,
		last_name = EXCLUDED.last_name,
		updated_at = EXCLUDED.updated_at
	RETURNING ` + userColumns

// UserRepository handles user database operations
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// EnsureUser inserts the user or, when the id already exists, refreshes only the
// identity-provider-owned fields. Role and position of an existing row are never
// touched; for a new row they take the values on u.
func (r *UserRepository) EnsureUser(ctx context.Context, u *models.User) (*models.User, error) {
	now := time.Now().UTC()

	user := &models.User{}
	err := r.db.GetContext(ctx, user, ensureUserQuery,
		u.ID,
		u.Email,
		u.FirstName,
		u.LastName,
		u.Role,
		u.Position,
		now,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserByID retrieves a user by ID
func (r *UserRepository) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user := &models.User{}
	err := r.db.GetContext(ctx, user, query, userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// SetPosition updates the user's position label
func (r *UserRepository) SetPosition(ctx context.Context, userID, position string) error {
	query := `UPDATE users SET position = $2, updated_at = $3 WHERE id = $1`
	return r.execOne(ctx, query, userID, position, time.Now().UTC())
}

// SetRole updates the user's access role
func (r *UserRepository) SetRole(ctx context.Context, userID string, role models.Role) error {
	query := `UPDATE users SET role = $2, updated_at = $3 WHERE id = $1`
	return r.execOne(ctx, query, userID, role, time.Now().UTC())
}

// Count returns the total number of users
func (r *UserRepository) Count(ctx context.Context) (int, error) {
	var total int
	err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM users`)
	return total, err
}

// execOne runs a single-row mutation and maps zero affected rows to ErrNotFound.
func (r *UserRepository) execOne(ctx context.Context, query string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
