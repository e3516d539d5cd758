package models

import (
	"time"

	"github.com/uniflow/facilitation-api/internal/recurrence"
	"github.com/uniflow/facilitation-api/internal/timeslot"
)

// UnavailabilityScope distinguishes records visible everywhere from records
// attached to a single unit. Stored as a nullable unit_id column.
type UnavailabilityScope struct {
	UnitID *string
}

// Global reports whether the record applies across all units.
func (s UnavailabilityScope) Global() bool {
	return s.UnitID == nil
}

// Unavailability is a facilitator's declared (or system-generated) block of
// time they cannot be scheduled.
type Unavailability struct {
	ID        string              `db:"id" json:"id"`
	UserID    string              `db:"user_id" json:"user_id"`
	UnitID    *string             `db:"unit_id" json:"unit_id,omitempty"`
	Date      time.Time           `db:"date" json:"date"`
	IsFullDay bool                `db:"is_full_day" json:"is_full_day"`
	StartTime *timeslot.TimeOfDay `db:"start_time" json:"start_time,omitempty"`
	EndTime   *timeslot.TimeOfDay `db:"end_time" json:"end_time,omitempty"`
	Reason    string              `db:"reason" json:"reason"`

	IsRecurring       bool                `db:"is_recurring" json:"is_recurring"`
	RecurringPattern  *recurrence.Pattern `db:"recurring_pattern" json:"recurring_pattern,omitempty"`
	RecurringInterval *int                `db:"recurring_interval" json:"recurring_interval,omitempty"`
	RecurringEndDate  *time.Time          `db:"recurring_end_date" json:"recurring_end_date,omitempty"`

	// SourceSessionID marks system-generated records created by schedule
	// publication. Set implies the record is immutable to users.
	SourceSessionID *string `db:"source_session_id" json:"source_session_id,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// SystemGenerated reports whether the record was produced by publication.
func (u *Unavailability) SystemGenerated() bool {
	return u.SourceSessionID != nil
}

// Scope returns the record's visibility scope.
func (u *Unavailability) Scope() UnavailabilityScope {
	return UnavailabilityScope{UnitID: u.UnitID}
}

// Blocks reports whether this record makes the [reqStart, reqEnd] window on
// its date unusable: a full-day block always does, a timed block only when it
// fully contains the requested window.
func (u *Unavailability) Blocks(reqStart, reqEnd timeslot.TimeOfDay) bool {
	if u.IsFullDay {
		return true
	}
	if u.StartTime == nil || u.EndTime == nil {
		return false
	}
	return timeslot.Covers(*u.StartTime, *u.EndTime, reqStart, reqEnd)
}

// RecurringSkip records a date a recurring expansion could not materialise
// and why.
type RecurringSkip struct {
	Date   time.Time `json:"date"`
	Reason string    `json:"reason"`
}

// RecurringGenerationResult summarises a generate-recurring run.
type RecurringGenerationResult struct {
	Created      []Unavailability `json:"created"`
	Duplicates   int              `json:"duplicates_skipped"`
	SkippedDates []RecurringSkip  `json:"skipped_dates,omitempty"`
}

// AssignmentConflict is the advisory warning attached to an unavailability
// create when the facilitator already holds an overlapping assignment.
type AssignmentConflict struct {
	AssignmentID string             `json:"assignment_id"`
	SessionID    string             `json:"session_id"`
	UnitCode     string             `json:"unit_code"`
	SessionType  string             `json:"session_type"`
	Date         time.Time          `json:"date"`
	StartTime    timeslot.TimeOfDay `json:"start_time"`
	EndTime      timeslot.TimeOfDay `json:"end_time"`
}
