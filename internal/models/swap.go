package models

import "time"

// SwapStatus tracks a swap request through its state machine.
type SwapStatus string

const (
	// SwapPending is the legacy single-stage state awaiting coordinator review.
	SwapPending SwapStatus = "PENDING"
	// SwapFacilitatorPending awaits the target facilitator's response.
	SwapFacilitatorPending SwapStatus = "FACILITATOR_PENDING"
	// SwapCoordinatorPending awaits the unit coordinator's review.
	SwapCoordinatorPending SwapStatus = "COORDINATOR_PENDING"
	SwapApproved           SwapStatus = "APPROVED"
	SwapFacilitatorDecline SwapStatus = "FACILITATOR_DECLINED"
	SwapCoordinatorDecline SwapStatus = "COORDINATOR_DECLINED"
	SwapRejected           SwapStatus = "REJECTED"
)

// Terminal reports whether no further transitions are possible.
func (s SwapStatus) Terminal() bool {
	switch s {
	case SwapApproved, SwapFacilitatorDecline, SwapCoordinatorDecline, SwapRejected:
		return true
	}
	return false
}

// SwapExecutionMode describes how an approved swap mutates assignments.
type SwapExecutionMode string

const (
	// SwapModeTransfer hands the requester's assignment to the target in one
	// direction, auto-approved at creation.
	SwapModeTransfer SwapExecutionMode = "transfer"
	// SwapModeExchange trades two assignments after the two-stage approval.
	SwapModeExchange SwapExecutionMode = "exchange"
)

// SwapRequest is a facilitator's request to move a session assignment.
type SwapRequest struct {
	ID                    string            `db:"id" json:"id"`
	RequesterID           string            `db:"requester_id" json:"requester_id"`
	TargetID              string            `db:"target_id" json:"target_id"`
	RequesterAssignmentID string            `db:"requester_assignment_id" json:"requester_assignment_id"`
	TargetAssignmentID    *string           `db:"target_assignment_id" json:"target_assignment_id,omitempty"`
	ExecutionMode         SwapExecutionMode `db:"execution_mode" json:"execution_mode"`
	Status                SwapStatus        `db:"status" json:"status"`
	Reason                string            `db:"reason" json:"reason"`
	ResponseNote          *string           `db:"response_note" json:"response_note,omitempty"`
	ReviewedBy            *string           `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt            *time.Time        `db:"reviewed_at" json:"reviewed_at,omitempty"`
	CreatedAt             time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time         `db:"updated_at" json:"updated_at"`
}

// SwapRequestDetail enriches a swap with the people and session involved.
type SwapRequestDetail struct {
	SwapRequest
	RequesterName string    `db:"requester_name" json:"requester_name"`
	TargetName    string    `db:"target_name" json:"target_name"`
	UnitID        string    `db:"unit_id" json:"unit_id"`
	UnitCode      string    `db:"unit_code" json:"unit_code"`
	SessionID     string    `db:"session_id" json:"session_id"`
	SessionType   string    `db:"session_type" json:"session_type"`
	SessionDate   time.Time `db:"session_date" json:"session_date"`
}
