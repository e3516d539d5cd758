package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/uniflow/facilitation-api/internal/models"
)

// UserRepository reads application users and unit rosters.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository constructs the repository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByID loads a user by primary key.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	const query = `SELECT * FROM users WHERE id = $1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &user, nil
}

// FindByEmail loads a user by email address.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	const query = `SELECT * FROM users WHERE LOWER(email) = LOWER($1)`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &user, nil
}

// UpdateLastLogin stamps the login time.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE users SET last_login = $2, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, at.UTC()); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// UpdatePassword stores a new password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	const query = `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, passwordHash, updatedAt.UTC())
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check updated password rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListUnitFacilitators returns active facilitators linked to the unit.
func (r *UserRepository) ListUnitFacilitators(ctx context.Context, unitID string) ([]models.User, error) {
	const query = `
SELECT u.*
FROM users u
JOIN unit_facilitators uf ON uf.user_id = u.id
WHERE uf.unit_id = $1 AND u.active = TRUE
ORDER BY u.full_name ASC`
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query, unitID); err != nil {
		return nil, fmt.Errorf("list unit facilitators: %w", err)
	}
	return users, nil
}

// IsLinkedToUnit reports whether the user belongs to the unit's roster.
func (r *UserRepository) IsLinkedToUnit(ctx context.Context, userID, unitID string) (bool, error) {
	const query = `SELECT 1 FROM unit_facilitators WHERE user_id = $1 AND unit_id = $2 LIMIT 1`
	var linked int
	if err := r.db.GetContext(ctx, &linked, query, userID, unitID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check unit link: %w", err)
	}
	return true, nil
}
