package models

import (
	"time"

	"github.com/uniflow/facilitation-api/internal/timeslot"
)

// PublishConflict flags a facilitator who declared unavailability colliding
// with a still-assigned session since the schedule was last unpublished.
// Advisory only: publication proceeds regardless.
type PublishConflict struct {
	FacilitatorID   string             `json:"facilitator_id"`
	FacilitatorName string             `json:"facilitator_name"`
	SessionID       string             `json:"session_id"`
	Date            time.Time          `json:"date"`
	StartTime       timeslot.TimeOfDay `json:"start_time"`
	EndTime         timeslot.TimeOfDay `json:"end_time"`
	Reason          string             `json:"reason"`
}

// PublishResult summarises a schedule publication run.
type PublishResult struct {
	UnitID              string            `json:"unit_id"`
	SessionsPublished   int               `json:"sessions_published"`
	UnavailabilityAdded int               `json:"unavailability_added"`
	Conflicts           []PublishConflict `json:"conflicts,omitempty"`
	NotifiedCount       int               `json:"notified_count"`
	ReportURL           string            `json:"report_url,omitempty"`
	PublishedAt         time.Time         `json:"published_at"`
}

// UnpublishResult summarises reverting a unit to draft.
type UnpublishResult struct {
	UnitID                string    `json:"unit_id"`
	UnavailabilityRemoved int       `json:"unavailability_removed"`
	SwapsRejected         int       `json:"swaps_rejected"`
	NotifiedCount         int       `json:"notified_count"`
	UnpublishedAt         time.Time `json:"unpublished_at"`
}
