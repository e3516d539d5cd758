package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/uniflow/facilitation-api/internal/models"
)

// ScheduleRepository owns the transactional publish/unpublish mutations that
// span units, sessions, unavailability and swap requests.
type ScheduleRepository struct {
	db *sqlx.DB
}

// NewScheduleRepository constructs the repository.
func NewScheduleRepository(db *sqlx.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

/// PublishUnit marks the unit's schedule published in one transaction: the
// prepared system-generated unavailability records are inserted (duplicates
// skipped so re-publishing is idempotent), every session is flagged published
// and the assignment snapshot is stored on the unit.
func (r *ScheduleRepository) PublishUnit(ctx context.Context, unitID, actorID string, records []*models.Unavailability, snapshot []byte) (created int, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin publish: %w", err)
	}
	defer tx.Rollback()

	for _, record := range records {
		inserted, err := insertUnavailability(ctx, tx, record)
		if err != nil {
			return 0, err
		}
		if inserted {
			created++
		}
	}

	now := time.Now().UTC()
	const publishSessions = `UPDATE sessions SET is_published = TRUE, updated_at = $2 WHERE unit_id = $1`
	if _, err := tx.ExecContext(ctx, publishSessions, unitID, now); err != nil {
		return 0, fmt.Errorf("publish sessions: %w", err)
	}

	const publishUnit = `
UPDATE units
SET schedule_status = $2, published_at = $3, published_by = $4,
    published_snapshot = $5, updated_at = $3
WHERE id = $1`
	if _, err := tx.ExecContext(ctx, publishUnit, unitID, models.SchedulePublished, now, actorID, snapshot); err != nil {
		return 0, fmt.Errorf("publish unit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit publish: %w", err)
	}
	return created, nil
}

// UnpublishUnit reverts the unit to draft in one transaction: every
// system-generated unavailability sourced from the unit's sessions is
// removed, any swap still in flight against the unit is force-rejected with
// the given note, sessions are unflagged and the unit records who reverted.
// The rejected swaps are returned so callers can notify the people involved.
func (r *ScheduleRepository) UnpublishUnit(ctx context.Context, unitID, actorID, rejectionNote string) (removed int, rejected []models.SwapRequest, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("begin unpublish: %w", err)
	}
	defer tx.Rollback()

	var sessionIDs []string
	const sessionQuery = `SELECT id FROM sessions WHERE unit_id = $1`
	if err := tx.SelectContext(ctx, &sessionIDs, sessionQuery, unitID); err != nil {
		return 0, nil, fmt.Errorf("list unit sessions: %w", err)
	}

	now := time.Now().UTC()
	if len(sessionIDs) > 0 {
		const dropQuery = `DELETE FROM unavailability WHERE source_session_id = ANY($1)`
		result, err := tx.ExecContext(ctx, dropQuery, pq.Array(sessionIDs))
		if err != nil {
			return 0, nil, fmt.Errorf("drop generated unavailability: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return 0, nil, fmt.Errorf("check dropped unavailability rows: %w", err)
		}
		removed = int(affected)

		const rejectQuery = `
UPDATE swap_requests
SET status = $1, response_note = $2, reviewed_by = $3, reviewed_at = $4, updated_at = $4
WHERE status IN ($5, $6, $7)
  AND requester_assignment_id IN (
	SELECT a.id FROM session_assignments a WHERE a.session_id = ANY($8)
  )
RETURNING *`
		if err := tx.SelectContext(ctx, &rejected, rejectQuery,
			models.SwapRejected, rejectionNote, actorID, now,
			models.SwapPending, models.SwapFacilitatorPending, models.SwapCoordinatorPending,
			pq.Array(sessionIDs)); err != nil {
			return 0, nil, fmt.Errorf("reject open swaps: %w", err)
		}
	}

	const draftSessions = `UPDATE sessions SET is_published = FALSE, updated_at = $2 WHERE unit_id = $1`
	if _, err := tx.ExecContext(ctx, draftSessions, unitID, now); err != nil {
		return 0, nil, fmt.Errorf("draft sessions: %w", err)
	}

	const draftUnit = `
UPDATE units
SET schedule_status = $2, unpublished_at = $3, unpublished_by = $4, updated_at = $3
WHERE id = $1`
	if _, err := tx.ExecContext(ctx, draftUnit, unitID, models.ScheduleDraft, now, actorID); err != nil {
		return 0, nil, fmt.Errorf("draft unit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, nil, fmt.Errorf("commit unpublish: %w", err)
	}
	return removed, rejected, nil
}
