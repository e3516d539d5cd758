package dto

// CreateSwapRequest starts a direct (transfer) swap: the requester hands
// their assignment to the chosen facilitator.
type CreateSwapRequest struct {
	AssignmentID string `json:"assignment_id" validate:"required"`
	TargetID     string `json:"target_id" validate:"required"`
	Reason       string `json:"reason" validate:"required,max=500"`
	HasDiscussed bool   `json:"has_discussed"`
}

// CreateExchangeSwapRequest starts a two-stage exchange swap between the
// requester's assignment and the target's assignment.
type CreateExchangeSwapRequest struct {
	AssignmentID       string `json:"assignment_id" validate:"required"`
	TargetAssignmentID string `json:"target_assignment_id" validate:"required"`
	Reason             string `json:"reason" validate:"required,max=500"`
}

// SwapResponseRequest carries an approve/decline decision.
type SwapResponseRequest struct {
	Approve bool   `json:"approve"`
	Note    string `json:"note" validate:"max=500"`
}

// SwapQuery filters swap listings.
type SwapQuery struct {
	Status string
	UnitID string
	Role   string // "requester" | "target"
}
