package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/uniflow/facilitation-api/internal/models"
)

const assignmentDetailColumns = `
a.id, a.session_id, a.facilitator_id, a.role, a.score, a.created_at, a.updated_at,
s.unit_id, un.code AS unit_code, s.module_id, m.name AS module_name, s.session_type,
s.date, s.start_time, s.end_time, s.is_published`

// AssignmentRepository persists facilitator session assignments.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository constructs the repository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// GetDetail loads an assignment joined with its session schedule.
func (r *AssignmentRepository) GetDetail(ctx context.Context, id string) (*models.AssignmentDetail, error) {
	query := `
SELECT ` + assignmentDetailColumns + `
FROM session_assignments a
JOIN sessions s ON s.id = a.session_id
JOIN units un ON un.id = s.unit_id
JOIN modules m ON m.id = s.module_id
WHERE a.id = $1`
	var detail models.AssignmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get assignment detail: %w", err)
	}
	return &detail, nil
}

// ListByFacilitatorOnDate returns the facilitator's assignments scheduled on
// the given calendar day.
func (r *AssignmentRepository) ListByFacilitatorOnDate(ctx context.Context, facilitatorID string, date time.Time) ([]models.AssignmentDetail, error) {
	query := `
SELECT ` + assignmentDetailColumns + `
FROM session_assignments a
JOIN sessions s ON s.id = a.session_id
JOIN units un ON un.id = s.unit_id
JOIN modules m ON m.id = s.module_id
WHERE a.facilitator_id = $1 AND s.date = $2
ORDER BY s.start_time ASC`
	var details []models.AssignmentDetail
	if err := r.db.SelectContext(ctx, &details, query, facilitatorID, dateOnlyUTC(date)); err != nil {
		return nil, fmt.Errorf("list assignments on date: %w", err)
	}
	return details, nil
}

// ListBySession returns the assignments attached to one session.
func (r *AssignmentRepository) ListBySession(ctx context.Context, sessionID string) ([]models.SessionAssignment, error) {
	const query = `SELECT * FROM session_assignments WHERE session_id = $1 ORDER BY role ASC`
	var assignments []models.SessionAssignment
	if err := r.db.SelectContext(ctx, &assignments, query, sessionID); err != nil {
		return nil, fmt.Errorf("list session assignments: %w", err)
	}
	return assignments, nil
}

// ListByUnit returns every assignment in the unit with session details.
func (r *AssignmentRepository) ListByUnit(ctx context.Context, unitID string) ([]models.AssignmentDetail, error) {
	query := `
SELECT ` + assignmentDetailColumns + `
FROM session_assignments a
JOIN sessions s ON s.id = a.session_id
JOIN units un ON un.id = s.unit_id
JOIN modules m ON m.id = s.module_id
WHERE s.unit_id = $1
ORDER BY s.date ASC, s.start_time ASC`
	var details []models.AssignmentDetail
	if err := r.db.SelectContext(ctx, &details, query, unitID); err != nil {
		return nil, fmt.Errorf("list unit assignments: %w", err)
	}
	return details, nil
}

// ReplaceForUnit swaps in an optimizer-produced roster atomically: existing
// assignments for the unit's sessions are removed and the proposals inserted.
func (r *AssignmentRepository) ReplaceForUnit(ctx context.Context, unitID string, proposals []models.AssignmentProposal) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace assignments: %w", err)
	}
	defer tx.Rollback()

	const deleteQuery = `
DELETE FROM session_assignments a
USING sessions s
WHERE s.id = a.session_id AND s.unit_id = $1`
	if _, err := tx.ExecContext(ctx, deleteQuery, unitID); err != nil {
		return fmt.Errorf("clear unit assignments: %w", err)
	}

	const insertQuery = `
INSERT INTO session_assignments (id, session_id, facilitator_id, role, score, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $6)`
	now := time.Now().UTC()
	for _, p := range proposals {
		if _, err := tx.ExecContext(ctx, insertQuery, uuid.NewString(), p.SessionID, p.FacilitatorID, p.Role, p.Score, now); err != nil {
			return fmt.Errorf("insert assignment proposal: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace assignments: %w", err)
	}
	return nil
}

func dateOnlyUTC(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
