package dto

// PublishScheduleRequest triggers publication of a unit's schedule.
type PublishScheduleRequest struct {
	// NotifyFacilitatorIDs limits notification fan-out; empty notifies every
	// facilitator holding an assignment in the unit.
	NotifyFacilitatorIDs []string `json:"notify_facilitator_ids"`
	GenerateReport       bool     `json:"generate_report"`
}

// ReplaceAssignmentsRequest installs an optimizer-produced roster for a unit.
type ReplaceAssignmentsRequest struct {
	Assignments []AssignmentProposalPayload `json:"assignments" validate:"required,dive"`
}

// AssignmentProposalPayload is one optimizer tuple in a roster replace.
type AssignmentProposalPayload struct {
	SessionID     string   `json:"session_id" validate:"required"`
	FacilitatorID string   `json:"facilitator_id" validate:"required"`
	Role          string   `json:"role" validate:"required,oneof=lead support"`
	Score         *float64 `json:"score,omitempty"`
}
