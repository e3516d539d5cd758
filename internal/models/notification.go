package models

import "time"

// EventKind labels notification events emitted by the domain services.
type EventKind string

const (
	EventSwapExecuted        EventKind = "swap_executed"
	EventSwapRequested       EventKind = "swap_requested"
	EventSwapResolved        EventKind = "swap_resolved"
	EventSchedulePublished   EventKind = "schedule_published"
	EventScheduleUnpublished EventKind = "schedule_unpublished"
)

// Event is a notification handed to the dispatcher. Delivery transport is
// pluggable; the payload carries everything a sender template needs.
type Event struct {
	Kind        EventKind              `json:"kind"`
	RecipientID string                 `json:"recipient_id"`
	UnitID      string                 `json:"unit_id,omitempty"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
	OccurredAt  time.Time              `json:"occurred_at"`
}
