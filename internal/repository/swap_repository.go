package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/uniflow/facilitation-api/internal/models"
)

// ErrOpenSwapExists signals that the assignment already has a swap in flight.
var ErrOpenSwapExists = errors.New("open swap request already exists for assignment")

const swapDetailColumns = `
sw.id, sw.requester_id, sw.target_id, sw.requester_assignment_id, sw.target_assignment_id,
sw.execution_mode, sw.status, sw.reason, sw.response_note, sw.reviewed_by, sw.reviewed_at,
sw.created_at, sw.updated_at,
req.full_name AS requester_name, tgt.full_name AS target_name,
s.unit_id, un.code AS unit_code, s.id AS session_id, s.session_type, s.date AS session_date`

const swapDetailJoins = `
FROM swap_requests sw
JOIN users req ON req.id = sw.requester_id
JOIN users tgt ON tgt.id = sw.target_id
JOIN session_assignments a ON a.id = sw.requester_assignment_id
JOIN sessions s ON s.id = a.session_id
JOIN units un ON un.id = s.unit_id`

// SwapRepository persists swap requests and executes their state machine.
type SwapRepository struct {
	db *sqlx.DB
}

// NewSwapRepository constructs the repository.
func NewSwapRepository(db *sqlx.DB) *SwapRepository {
	return &SwapRepository{db: db}
}

// GetByID loads a swap request by primary key.
func (r *SwapRepository) GetByID(ctx context.Context, id string) (*models.SwapRequest, error) {
	const query = `SELECT * FROM swap_requests WHERE id = $1`
	var swap models.SwapRequest
	if err := r.db.GetContext(ctx, &swap, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get swap request: %w", err)
	}
	return &swap, nil
}

// GetDetail loads a swap request with names and session context.
func (r *SwapRepository) GetDetail(ctx context.Context, id string) (*models.SwapRequestDetail, error) {
	query := `SELECT ` + swapDetailColumns + swapDetailJoins + ` WHERE sw.id = $1`
	var detail models.SwapRequestDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get swap detail: %w", err)
	}
	return &detail, nil
}

// ListByUser returns swaps where the user is requester or target.
func (r *SwapRepository) ListByUser(ctx context.Context, userID string, status models.SwapStatus) ([]models.SwapRequestDetail, error) {
	query := `SELECT ` + swapDetailColumns + swapDetailJoins + ` WHERE (sw.requester_id = $1 OR sw.target_id = $1)`
	args := []interface{}{userID}
	if status != "" {
		args = append(args, status)
		query += fmt.Sprintf(" AND sw.status = $%d", len(args))
	}
	query += " ORDER BY sw.created_at DESC"
	var details []models.SwapRequestDetail
	if err := r.db.SelectContext(ctx, &details, query, args...); err != nil {
		return nil, fmt.Errorf("list swaps by user: %w", err)
	}
	return details, nil
}

// ListByUnit returns swaps touching the unit's assignments.
func (r *SwapRepository) ListByUnit(ctx context.Context, unitID string, status models.SwapStatus) ([]models.SwapRequestDetail, error) {
	query := `SELECT ` + swapDetailColumns + swapDetailJoins + ` WHERE s.unit_id = $1`
	args := []interface{}{unitID}
	if status != "" {
		args = append(args, status)
		query += fmt.Sprintf(" AND sw.status = $%d", len(args))
	}
	query += " ORDER BY sw.created_at DESC"
	var details []models.SwapRequestDetail
	if err := r.db.SelectContext(ctx, &details, query, args...); err != nil {
		return nil, fmt.Errorf("list swaps by unit: %w", err)
	}
	return details, nil
}

// CreateExchange inserts a two-stage exchange request guarding against a
// second open swap on the same assignment.
func (r *SwapRepository) CreateExchange(ctx context.Context, swap *models.SwapRequest) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create swap: %w", err)
	}
	defer tx.Rollback()

	if err := ensureNoOpenSwap(ctx, tx, swap.RequesterAssignmentID); err != nil {
		return err
	}
	if err := insertSwap(ctx, tx, swap); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create swap: %w", err)
	}
	return nil
}

// ExecuteTransfer records an auto-approved transfer swap and moves the
// assignment to the target in one transaction. When rolledUnavailability is
// non-nil the requester's system-generated unavailability for the session is
// removed and the provided record inserted for the new holder.
func (r *SwapRepository) ExecuteTransfer(ctx context.Context, swap *models.SwapRequest, rolledUnavailability *models.Unavailability) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transfer swap: %w", err)
	}
	defer tx.Rollback()

	if err := ensureNoOpenSwap(ctx, tx, swap.RequesterAssignmentID); err != nil {
		return err
	}
	if err := insertSwap(ctx, tx, swap); err != nil {
		return err
	}

	const moveQuery = `
UPDATE session_assignments
SET facilitator_id = $1, updated_at = $2
WHERE id = $3 AND facilitator_id = $4`
	result, err := tx.ExecContext(ctx, moveQuery, swap.TargetID, time.Now().UTC(), swap.RequesterAssignmentID, swap.RequesterID)
	if err != nil {
		return fmt.Errorf("transfer assignment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check transferred assignment rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	if rolledUnavailability != nil {
		const dropQuery = `DELETE FROM unavailability WHERE user_id = $1 AND source_session_id = $2`
		if _, err := tx.ExecContext(ctx, dropQuery, swap.RequesterID, *rolledUnavailability.SourceSessionID); err != nil {
			return fmt.Errorf("drop old auto unavailability: %w", err)
		}
		if _, err := insertUnavailability(ctx, tx, rolledUnavailability); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transfer swap: %w", err)
	}
	return nil
}

// ApproveTransfer finalises a legacy PENDING transfer: the coordinator
// approval is recorded and the assignment moves to the target. When
// rolledUnavailability is non-nil the requester's system-generated record is
// replaced by one for the new holder.
func (r *SwapRepository) ApproveTransfer(ctx context.Context, swapID, reviewerID string, rolledUnavailability *models.Unavailability) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin approve transfer: %w", err)
	}
	defer tx.Rollback()

	const lockQuery = `SELECT * FROM swap_requests WHERE id = $1 FOR UPDATE`
	var swap models.SwapRequest
	if err := tx.GetContext(ctx, &swap, lockQuery, swapID); err != nil {
		if err == sql.ErrNoRows {
			return err
		}
		return fmt.Errorf("lock swap request: %w", err)
	}
	if swap.Status != models.SwapPending {
		return sql.ErrNoRows
	}

	now := time.Now().UTC()
	const approveQuery = `
UPDATE swap_requests
SET status = $1, reviewed_by = $2, reviewed_at = $3, updated_at = $3
WHERE id = $4 AND status = $5`
	result, err := tx.ExecContext(ctx, approveQuery, models.SwapApproved, reviewerID, now, swapID, models.SwapPending)
	if err != nil {
		return fmt.Errorf("approve swap: %w", err)
	}
	if affected, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("check approved swap rows: %w", err)
	} else if affected == 0 {
		return sql.ErrNoRows
	}

	const moveQuery = `
UPDATE session_assignments
SET facilitator_id = $1, updated_at = $2
WHERE id = $3 AND facilitator_id = $4`
	moved, err := tx.ExecContext(ctx, moveQuery, swap.TargetID, now, swap.RequesterAssignmentID, swap.RequesterID)
	if err != nil {
		return fmt.Errorf("transfer assignment: %w", err)
	}
	if affected, err := moved.RowsAffected(); err != nil {
		return fmt.Errorf("check transferred assignment rows: %w", err)
	} else if affected == 0 {
		return sql.ErrNoRows
	}

	if rolledUnavailability != nil {
		const dropQuery = `DELETE FROM unavailability WHERE user_id = $1 AND source_session_id = $2`
		if _, err := tx.ExecContext(ctx, dropQuery, swap.RequesterID, *rolledUnavailability.SourceSessionID); err != nil {
			return fmt.Errorf("drop old auto unavailability: %w", err)
		}
		if _, err := insertUnavailability(ctx, tx, rolledUnavailability); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit approve transfer: %w", err)
	}
	return nil
}

// TransitionStatus moves a swap between states with a compare-and-swap
// guard. Zero matched rows surface as sql.ErrNoRows so callers can report a
// state conflict.
func (r *SwapRepository) TransitionStatus(ctx context.Context, id string, from, to models.SwapStatus, note, reviewedBy *string) error {
	const query = `
UPDATE swap_requests
SET status = $1, response_note = COALESCE($2, response_note),
    reviewed_by = COALESCE($3, reviewed_by),
    reviewed_at = CASE WHEN $3::text IS NULL THEN reviewed_at ELSE $4 END,
    updated_at = $4
WHERE id = $5 AND status = $6`
	result, err := r.db.ExecContext(ctx, query, to, note, reviewedBy, time.Now().UTC(), id, from)
	if err != nil {
		return fmt.Errorf("transition swap status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check transitioned swap rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ApproveExchange finalises a two-stage exchange: the coordinator approval is
// recorded and the two assignments trade facilitators atomically.
func (r *SwapRepository) ApproveExchange(ctx context.Context, swapID, reviewerID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin approve exchange: %w", err)
	}
	defer tx.Rollback()

	const lockQuery = `SELECT * FROM swap_requests WHERE id = $1 FOR UPDATE`
	var swap models.SwapRequest
	if err := tx.GetContext(ctx, &swap, lockQuery, swapID); err != nil {
		if err == sql.ErrNoRows {
			return err
		}
		return fmt.Errorf("lock swap request: %w", err)
	}
	if swap.Status != models.SwapCoordinatorPending || swap.TargetAssignmentID == nil {
		return sql.ErrNoRows
	}

	now := time.Now().UTC()
	const approveQuery = `
UPDATE swap_requests
SET status = $1, reviewed_by = $2, reviewed_at = $3, updated_at = $3
WHERE id = $4 AND status = $5`
	result, err := tx.ExecContext(ctx, approveQuery, models.SwapApproved, reviewerID, now, swapID, models.SwapCoordinatorPending)
	if err != nil {
		return fmt.Errorf("approve swap: %w", err)
	}
	if affected, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("check approved swap rows: %w", err)
	} else if affected == 0 {
		return sql.ErrNoRows
	}

	const exchangeQuery = `
UPDATE session_assignments
SET facilitator_id = $1, updated_at = $2
WHERE id = $3 AND facilitator_id = $4`
	for _, move := range []struct {
		assignmentID string
		from, to     string
	}{
		{*swap.TargetAssignmentID, swap.TargetID, swap.RequesterID},
		{swap.RequesterAssignmentID, swap.RequesterID, swap.TargetID},
	} {
		result, err := tx.ExecContext(ctx, exchangeQuery, move.to, now, move.assignmentID, move.from)
		if err != nil {
			return fmt.Errorf("exchange assignment: %w", err)
		}
		if affected, err := result.RowsAffected(); err != nil {
			return fmt.Errorf("check exchanged assignment rows: %w", err)
		} else if affected == 0 {
			return sql.ErrNoRows
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit approve exchange: %w", err)
	}
	return nil
}

func ensureNoOpenSwap(ctx context.Context, tx *sqlx.Tx, assignmentID string) error {
	const query = `
SELECT 1 FROM swap_requests
WHERE requester_assignment_id = $1
  AND status IN ($2, $3, $4)
LIMIT 1`
	var open int
	err := tx.GetContext(ctx, &open, query, assignmentID,
		models.SwapPending, models.SwapFacilitatorPending, models.SwapCoordinatorPending)
	if err == nil {
		return ErrOpenSwapExists
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("check open swaps: %w", err)
	}
	return nil
}

func insertSwap(ctx context.Context, tx *sqlx.Tx, swap *models.SwapRequest) error {
	if swap.ID == "" {
		swap.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if swap.CreatedAt.IsZero() {
		swap.CreatedAt = now
	}
	swap.UpdatedAt = now
	const query = `
INSERT INTO swap_requests (id, requester_id, target_id, requester_assignment_id, target_assignment_id,
	execution_mode, status, reason, response_note, reviewed_by, reviewed_at, created_at, updated_at)
VALUES (:id, :requester_id, :target_id, :requester_assignment_id, :target_assignment_id,
	:execution_mode, :status, :reason, :response_note, :reviewed_by, :reviewed_at, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, swap); err != nil {
		return fmt.Errorf("insert swap request: %w", err)
	}
	return nil
}
