package models

import (
	"time"

	"github.com/uniflow/facilitation-api/internal/timeslot"
)

// ScheduleStatus tracks the publication state of a unit's session schedule.
type ScheduleStatus string

const (
	ScheduleDraft     ScheduleStatus = "DRAFT"
	SchedulePublished ScheduleStatus = "PUBLISHED"
)

// Unit represents an academic unit whose sessions get scheduled.
type Unit struct {
	ID             string         `db:"id" json:"id"`
	Code           string         `db:"code" json:"code"`
	Name           string         `db:"name" json:"name"`
	CoordinatorID  string         `db:"coordinator_id" json:"coordinator_id"`
	Year           int            `db:"year" json:"year"`
	Semester       string         `db:"semester" json:"semester"`
	ScheduleStatus ScheduleStatus `db:"schedule_status" json:"schedule_status"`
	PublishedAt    *time.Time     `db:"published_at" json:"published_at,omitempty"`
	PublishedBy    *string        `db:"published_by" json:"published_by,omitempty"`
	UnpublishedAt  *time.Time     `db:"unpublished_at" json:"unpublished_at,omitempty"`
	UnpublishedBy  *string        `db:"unpublished_by" json:"unpublished_by,omitempty"`
	// PublishedSnapshot holds the facilitator -> session ids map captured at
	// the moment of the last publish, stored as JSONB.
	PublishedSnapshot []byte    `db:"published_snapshot" json:"-"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// Module groups sessions inside a unit (e.g. a workshop stream).
type Module struct {
	ID     string `db:"id" json:"id"`
	UnitID string `db:"unit_id" json:"unit_id"`
	Name   string `db:"name" json:"name"`
}

// Session is a single scheduled occurrence within a unit module.
type Session struct {
	ID          string             `db:"id" json:"id"`
	UnitID      string             `db:"unit_id" json:"unit_id"`
	ModuleID    string             `db:"module_id" json:"module_id"`
	SessionType string             `db:"session_type" json:"session_type"`
	Date        time.Time          `db:"date" json:"date"`
	StartTime   timeslot.TimeOfDay `db:"start_time" json:"start_time"`
	EndTime     timeslot.TimeOfDay `db:"end_time" json:"end_time"`
	Location    string             `db:"location" json:"location"`
	IsPublished bool               `db:"is_published" json:"is_published"`
	CreatedAt   time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time          `db:"updated_at" json:"updated_at"`
}

// SessionDetail joins a session with its unit and module labels.
type SessionDetail struct {
	Session
	UnitCode   string `db:"unit_code" json:"unit_code"`
	UnitName   string `db:"unit_name" json:"unit_name"`
	ModuleName string `db:"module_name" json:"module_name"`
}
