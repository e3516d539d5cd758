package models

import (
	"time"

	"github.com/uniflow/facilitation-api/internal/timeslot"
)

// AssignmentRole distinguishes the lead facilitator from support staff.
type AssignmentRole string

const (
	AssignmentLead    AssignmentRole = "lead"
	AssignmentSupport AssignmentRole = "support"
)

// SessionAssignment binds a facilitator to a session.
type SessionAssignment struct {
	ID            string         `db:"id" json:"id"`
	SessionID     string         `db:"session_id" json:"session_id"`
	FacilitatorID string         `db:"facilitator_id" json:"facilitator_id"`
	Role          AssignmentRole `db:"role" json:"role"`
	Score         *float64       `db:"score" json:"score,omitempty"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}

// AssignmentDetail joins an assignment with its session schedule fields.
type AssignmentDetail struct {
	SessionAssignment
	UnitID      string             `db:"unit_id" json:"unit_id"`
	UnitCode    string             `db:"unit_code" json:"unit_code"`
	ModuleID    string             `db:"module_id" json:"module_id"`
	ModuleName  string             `db:"module_name" json:"module_name"`
	SessionType string             `db:"session_type" json:"session_type"`
	Date        time.Time          `db:"date" json:"date"`
	StartTime   timeslot.TimeOfDay `db:"start_time" json:"start_time"`
	EndTime     timeslot.TimeOfDay `db:"end_time" json:"end_time"`
	IsPublished bool               `db:"is_published" json:"is_published"`
}

// AssignmentProposal is the tuple an external optimizer hands over when a
// unit's roster is replaced in bulk.
type AssignmentProposal struct {
	SessionID     string         `json:"session_id" validate:"required"`
	FacilitatorID string         `json:"facilitator_id" validate:"required"`
	Role          AssignmentRole `json:"role" validate:"required,oneof=lead support"`
	Score         *float64       `json:"score,omitempty"`
}
