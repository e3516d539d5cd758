package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/uniflow/facilitation-api/internal/models"
)

// UnitRepository reads academic units and their sessions.
type UnitRepository struct {
	db *sqlx.DB
}

// NewUnitRepository constructs the repository.
func NewUnitRepository(db *sqlx.DB) *UnitRepository {
	return &UnitRepository{db: db}
}

// FindByID loads a unit by primary key.
func (r *UnitRepository) FindByID(ctx context.Context, id string) (*models.Unit, error) {
	const query = `SELECT * FROM units WHERE id = $1`
	var unit models.Unit
	if err := r.db.GetContext(ctx, &unit, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find unit by id: %w", err)
	}
	return &unit, nil
}

// ListSessions returns every session in the unit with its module labels.
func (r *UnitRepository) ListSessions(ctx context.Context, unitID string) ([]models.SessionDetail, error) {
	const query = `
SELECT s.*, un.code AS unit_code, un.name AS unit_name, m.name AS module_name
FROM sessions s
JOIN units un ON un.id = s.unit_id
JOIN modules m ON m.id = s.module_id
WHERE s.unit_id = $1
ORDER BY s.date ASC, s.start_time ASC`
	var sessions []models.SessionDetail
	if err := r.db.SelectContext(ctx, &sessions, query, unitID); err != nil {
		return nil, fmt.Errorf("list unit sessions: %w", err)
	}
	return sessions, nil
}

// GetSessionDetail loads a session with its unit and module labels.
func (r *UnitRepository) GetSessionDetail(ctx context.Context, sessionID string) (*models.SessionDetail, error) {
	const query = `
SELECT s.*, un.code AS unit_code, un.name AS unit_name, m.name AS module_name
FROM sessions s
JOIN units un ON un.id = s.unit_id
JOIN modules m ON m.id = s.module_id
WHERE s.id = $1`
	var session models.SessionDetail
	if err := r.db.GetContext(ctx, &session, query, sessionID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get session detail: %w", err)
	}
	return &session, nil
}

// IsCoordinator reports whether the user coordinates the unit.
func (r *UnitRepository) IsCoordinator(ctx context.Context, userID, unitID string) (bool, error) {
	const query = `SELECT 1 FROM units WHERE id = $1 AND coordinator_id = $2 LIMIT 1`
	var found int
	if err := r.db.GetContext(ctx, &found, query, unitID, userID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check unit coordinator: %w", err)
	}
	return true, nil
}
