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

// UnavailabilityRepository persists facilitator unavailability records.
type UnavailabilityRepository struct {
	db *sqlx.DB
}

// NewUnavailabilityRepository constructs the repository.
func NewUnavailabilityRepository(db *sqlx.DB) *UnavailabilityRepository {
	return &UnavailabilityRepository{db: db}
}

// GetByID loads a record by primary key.
func (r *UnavailabilityRepository) GetByID(ctx context.Context, id string) (*models.Unavailability, error) {
	const query = `SELECT * FROM unavailability WHERE id = $1`
	var record models.Unavailability
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get unavailability: %w", err)
	}
	return &record, nil
}

// CreateForDate inserts the records for a single owner and date in one
// transaction. With replaceExisting, the owner's manual records on that date
// are removed first. Records matching an existing tuple are skipped and
// counted as duplicates rather than failing the batch.
func (r *UnavailabilityRepository) CreateForDate(ctx context.Context, records []*models.Unavailability, replaceExisting bool) (created, duplicates int, err error) {
	if len(records) == 0 {
		return 0, 0, nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin unavailability batch: %w", err)
	}
	defer tx.Rollback()

	if replaceExisting {
		const clearQuery = `
DELETE FROM unavailability
WHERE user_id = $1 AND date = $2 AND source_session_id IS NULL`
		if _, err := tx.ExecContext(ctx, clearQuery, records[0].UserID, dateOnlyUTC(records[0].Date)); err != nil {
			return 0, 0, fmt.Errorf("clear unavailability for date: %w", err)
		}
	}

	for _, record := range records {
		inserted, err := insertUnavailability(ctx, tx, record)
		if err != nil {
			return 0, 0, err
		}
		if inserted {
			created++
		} else {
			duplicates++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit unavailability batch: %w", err)
	}
	return created, duplicates, nil
}

// CreateMany inserts pre-expanded recurring records, skipping duplicates.
func (r *UnavailabilityRepository) CreateMany(ctx context.Context, records []*models.Unavailability) (created []models.Unavailability, duplicates int, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("begin recurring batch: %w", err)
	}
	defer tx.Rollback()

	for _, record := range records {
		inserted, err := insertUnavailability(ctx, tx, record)
		if err != nil {
			return nil, 0, err
		}
		if inserted {
			created = append(created, *record)
		} else {
			duplicates++
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, 0, fmt.Errorf("commit recurring batch: %w", err)
	}
	return created, duplicates, nil
}

func insertUnavailability(ctx context.Context, tx *sqlx.Tx, record *models.Unavailability) (bool, error) {
	const dupQuery = `
SELECT 1 FROM unavailability
WHERE user_id = $1
  AND unit_id IS NOT DISTINCT FROM $2
  AND date = $3
  AND start_time IS NOT DISTINCT FROM $4
  AND end_time IS NOT DISTINCT FROM $5
LIMIT 1`
	record.Date = dateOnlyUTC(record.Date)
	var exists int
	err := tx.GetContext(ctx, &exists, dupQuery, record.UserID, record.UnitID, record.Date, record.StartTime, record.EndTime)
	if err == nil {
		return false, nil
	}
	if err != sql.ErrNoRows {
		return false, fmt.Errorf("check duplicate unavailability: %w", err)
	}

	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	const insertQuery = `
INSERT INTO unavailability (id, user_id, unit_id, date, is_full_day, start_time, end_time, reason,
	is_recurring, recurring_pattern, recurring_interval, recurring_end_date, source_session_id,
	created_at, updated_at)
VALUES (:id, :user_id, :unit_id, :date, :is_full_day, :start_time, :end_time, :reason,
	:is_recurring, :recurring_pattern, :recurring_interval, :recurring_end_date, :source_session_id,
	:created_at, :updated_at)
ON CONFLICT DO NOTHING`
	result, err := tx.NamedExecContext(ctx, insertQuery, record)
	if err != nil {
		return false, fmt.Errorf("insert unavailability: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check inserted unavailability rows: %w", err)
	}
	return affected > 0, nil
}

// Update persists mutable fields of a manual record.
func (r *UnavailabilityRepository) Update(ctx context.Context, record *models.Unavailability) error {
	record.Date = dateOnlyUTC(record.Date)
	record.UpdatedAt = time.Now().UTC()
	const query = `
UPDATE unavailability
SET date = :date, is_full_day = :is_full_day, start_time = :start_time, end_time = :end_time,
    reason = :reason, updated_at = :updated_at
WHERE id = :id AND source_session_id IS NULL`
	result, err := r.db.NamedExecContext(ctx, query, record)
	if err != nil {
		return fmt.Errorf("update unavailability: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check updated unavailability rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a record by id.
func (r *UnavailabilityRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM unavailability WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete unavailability: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check deleted unavailability rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteManualByOwner clears every user-created record for the owner,
// returning the number removed. System-generated rows are untouched.
func (r *UnavailabilityRepository) DeleteManualByOwner(ctx context.Context, userID string) (int, error) {
	const query = `DELETE FROM unavailability WHERE user_id = $1 AND source_session_id IS NULL`
	result, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("clear unavailability: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check cleared unavailability rows: %w", err)
	}
	return int(affected), nil
}

// ListByOwner returns the owner's records filtered by optional date bounds.
func (r *UnavailabilityRepository) ListByOwner(ctx context.Context, userID string, from, to *time.Time, includeSystem bool) ([]models.Unavailability, error) {
	query := `SELECT * FROM unavailability WHERE user_id = $1`
	args := []interface{}{userID}
	if from != nil {
		args = append(args, dateOnlyUTC(*from))
		query += fmt.Sprintf(" AND date >= $%d", len(args))
	}
	if to != nil {
		args = append(args, dateOnlyUTC(*to))
		query += fmt.Sprintf(" AND date <= $%d", len(args))
	}
	if !includeSystem {
		query += " AND source_session_id IS NULL"
	}
	query += " ORDER BY date ASC, start_time ASC NULLS FIRST"

	var records []models.Unavailability
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("list unavailability: %w", err)
	}
	return records, nil
}

// ListByOwnerOnDate returns every record (manual and system) for the day.
func (r *UnavailabilityRepository) ListByOwnerOnDate(ctx context.Context, userID string, date time.Time) ([]models.Unavailability, error) {
	const query = `
SELECT * FROM unavailability
WHERE user_id = $1 AND date = $2
ORDER BY start_time ASC NULLS FIRST`
	var records []models.Unavailability
	if err := r.db.SelectContext(ctx, &records, query, userID, dateOnlyUTC(date)); err != nil {
		return nil, fmt.Errorf("list unavailability on date: %w", err)
	}
	return records, nil
}

// ListByUnitRoster returns records of every facilitator linked to the unit,
// for coordinator visibility.
func (r *UnavailabilityRepository) ListByUnitRoster(ctx context.Context, unitID string, from, to *time.Time) ([]models.Unavailability, error) {
	query := `
SELECT ua.* FROM unavailability ua
JOIN unit_facilitators uf ON uf.user_id = ua.user_id
WHERE uf.unit_id = $1`
	args := []interface{}{unitID}
	if from != nil {
		args = append(args, dateOnlyUTC(*from))
		query += fmt.Sprintf(" AND ua.date >= $%d", len(args))
	}
	if to != nil {
		args = append(args, dateOnlyUTC(*to))
		query += fmt.Sprintf(" AND ua.date <= $%d", len(args))
	}
	query += " ORDER BY ua.date ASC, ua.user_id ASC"

	var records []models.Unavailability
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("list unit unavailability: %w", err)
	}
	return records, nil
}

// FindBySourceSession returns the system-generated record for a session and
// holder, if present.
func (r *UnavailabilityRepository) FindBySourceSession(ctx context.Context, userID, sessionID string) (*models.Unavailability, error) {
	const query = `SELECT * FROM unavailability WHERE user_id = $1 AND source_session_id = $2`
	var record models.Unavailability
	if err := r.db.GetContext(ctx, &record, query, userID, sessionID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find unavailability by source session: %w", err)
	}
	return &record, nil
}
