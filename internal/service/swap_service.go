package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/uniflow/facilitation-api/internal/dto"
	"github.com/uniflow/facilitation-api/internal/models"
	"github.com/uniflow/facilitation-api/internal/repository"
	"github.com/uniflow/facilitation-api/internal/timeslot"
	appErrors "github.com/uniflow/facilitation-api/pkg/errors"
)

type swapRepo interface {
	GetByID(ctx context.Context, id string) (*models.SwapRequest, error)
	GetDetail(ctx context.Context, id string) (*models.SwapRequestDetail, error)
	ListByUser(ctx context.Context, userID string, status models.SwapStatus) ([]models.SwapRequestDetail, error)
	ListByUnit(ctx context.Context, unitID string, status models.SwapStatus) ([]models.SwapRequestDetail, error)
	CreateExchange(ctx context.Context, swap *models.SwapRequest) error
	ExecuteTransfer(ctx context.Context, swap *models.SwapRequest, rolledUnavailability *models.Unavailability) error
	ApproveTransfer(ctx context.Context, swapID, reviewerID string, rolledUnavailability *models.Unavailability) error
	ApproveExchange(ctx context.Context, swapID, reviewerID string) error
	TransitionStatus(ctx context.Context, id string, from, to models.SwapStatus, note, reviewedBy *string) error
}

type assignmentDetailReader interface {
	GetDetail(ctx context.Context, id string) (*models.AssignmentDetail, error)
}

type skillLevelReader interface {
	GetLevel(ctx context.Context, facilitatorID, moduleID string) (models.SkillLevel, error)
}

type unitReader interface {
	FindByID(ctx context.Context, id string) (*models.Unit, error)
	IsCoordinator(ctx context.Context, userID, unitID string) (bool, error)
}

type availabilityChecker interface {
	Check(ctx context.Context, facilitatorID string, date time.Time, start, end timeslot.TimeOfDay, excludeSessionID string) (*AvailabilityResult, error)
	InvalidateListings(ctx context.Context)
}

// SwapService drives the swap request state machine.
type SwapService struct {
	swaps        swapRepo
	assignments  assignmentDetailReader
	users        userReader
	units        unitReader
	skills       skillLevelReader
	availability availabilityChecker
	notifier     *NotificationService
	metrics      *MetricsService
	validator    *validator.Validate
	logger       *zap.Logger
	now          func() time.Time
}

// NewSwapService creates the service.
func NewSwapService(
	swaps swapRepo,
	assignments assignmentDetailReader,
	users userReader,
	units unitReader,
	skills skillLevelReader,
	availability availabilityChecker,
	notifier *NotificationService,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
) *SwapService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SwapService{
		swaps:        swaps,
		assignments:  assignments,
		users:        users,
		units:        units,
		skills:       skills,
		availability: availability,
		notifier:     notifier,
		metrics:      metrics,
		validator:    validate,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Create starts a direct transfer swap: the requester hands their assignment
// to the chosen facilitator. The target must be on the unit roster, not have
// declared no interest in the module, and be free for the slot. The swap is
// executed immediately and recorded as APPROVED.
func (s *SwapService) Create(ctx context.Context, actor models.ActingAs, req dto.CreateSwapRequest) (*models.SwapRequestDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid swap payload")
	}
	if !req.HasDiscussed {
		return nil, appErrors.Clone(appErrors.ErrValidation, "confirm you have discussed the swap with the other facilitator")
	}

	assignment, err := s.loadOwnedFutureAssignment(ctx, actor, req.AssignmentID)
	if err != nil {
		return nil, err
	}
	target, err := s.loadSwapTarget(ctx, actor, req.TargetID, assignment)
	if err != nil {
		return nil, err
	}

	check, err := s.availability.Check(ctx, target.ID, assignment.Date, assignment.StartTime, assignment.EndTime, assignment.SessionID)
	if err != nil {
		return nil, err
	}
	if !check.Available {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("%s is %s", target.FullName, check.Reason))
	}

	now := s.now()
	swap := &models.SwapRequest{
		RequesterID:           actor.UserID,
		TargetID:              target.ID,
		RequesterAssignmentID: assignment.ID,
		TargetAssignmentID:    &assignment.ID,
		ExecutionMode:         models.SwapModeTransfer,
		Status:                models.SwapApproved,
		Reason:                req.Reason,
		ReviewedAt:            &now,
	}

	var rolled *models.Unavailability
	if assignment.IsPublished {
		rolled = scheduledUnavailability(target.ID, assignment)
	}

	if err := s.swaps.ExecuteTransfer(ctx, swap, rolled); err != nil {
		return nil, s.mapSwapWriteError(err)
	}

	s.metrics.RecordSwapRequested(string(models.SwapModeTransfer))
	s.metrics.RecordSwapExecuted()
	s.availability.InvalidateListings(ctx)
	s.emitToBoth(swap, models.EventSwapExecuted, assignment.UnitID, map[string]interface{}{
		"session_id": assignment.SessionID,
		"unit_code":  assignment.UnitCode,
		"date":       assignment.Date.Format(dateLayout),
	})

	return s.detailOf(ctx, swap.ID)
}

// CreateExchange starts the two-stage exchange protocol between the
// requester's assignment and the target's assignment in the same unit. The
// request waits on the target facilitator first.
func (s *SwapService) CreateExchange(ctx context.Context, actor models.ActingAs, req dto.CreateExchangeSwapRequest) (*models.SwapRequestDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid swap payload")
	}

	assignment, err := s.loadOwnedFutureAssignment(ctx, actor, req.AssignmentID)
	if err != nil {
		return nil, err
	}
	targetAssignment, err := s.assignments.GetDetail(ctx, req.TargetAssignmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "target assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load target assignment")
	}
	if targetAssignment.UnitID != assignment.UnitID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "exchange swaps must stay within one unit")
	}
	if targetAssignment.FacilitatorID == actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cannot swap with your own assignment")
	}

	swap := &models.SwapRequest{
		RequesterID:           actor.UserID,
		TargetID:              targetAssignment.FacilitatorID,
		RequesterAssignmentID: assignment.ID,
		TargetAssignmentID:    &targetAssignment.ID,
		ExecutionMode:         models.SwapModeExchange,
		Status:                models.SwapFacilitatorPending,
		Reason:                req.Reason,
	}
	if err := s.swaps.CreateExchange(ctx, swap); err != nil {
		return nil, s.mapSwapWriteError(err)
	}

	s.metrics.RecordSwapRequested(string(models.SwapModeExchange))
	s.notifier.Emit(models.Event{
		Kind:        models.EventSwapRequested,
		RecipientID: swap.TargetID,
		UnitID:      assignment.UnitID,
		Payload:     map[string]interface{}{"swap_id": swap.ID, "requester_id": actor.UserID},
	})

	return s.detailOf(ctx, swap.ID)
}

// FacilitatorRespond lets the target facilitator approve or decline a swap
// waiting on them. Approval re-checks their availability for the requester's
// slot first; if they are no longer free the request stays untouched.
func (s *SwapService) FacilitatorRespond(ctx context.Context, actor models.ActingAs, swapID string, req dto.SwapResponseRequest) (*models.SwapRequestDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid response payload")
	}
	swap, err := s.loadSwap(ctx, swapID)
	if err != nil {
		return nil, err
	}
	if swap.TargetID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the requested facilitator may respond")
	}
	if swap.Status != models.SwapFacilitatorPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "swap request is not awaiting facilitator response")
	}

	note := optionalNote(req.Note)
	if !req.Approve {
		if err := s.swaps.TransitionStatus(ctx, swapID, models.SwapFacilitatorPending, models.SwapFacilitatorDecline, note, nil); err != nil {
			return nil, s.mapSwapWriteError(err)
		}
		s.notifySwapResolved(swap, "declined by facilitator")
		return s.detailOf(ctx, swapID)
	}

	requesterAssignment, err := s.assignments.GetDetail(ctx, swap.RequesterAssignmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	excludeSession := ""
	if swap.TargetAssignmentID != nil {
		if targetAssignment, err := s.assignments.GetDetail(ctx, *swap.TargetAssignmentID); err == nil {
			excludeSession = targetAssignment.SessionID
		}
	}
	check, err := s.availability.Check(ctx, actor.UserID, requesterAssignment.Date, requesterAssignment.StartTime, requesterAssignment.EndTime, excludeSession)
	if err != nil {
		return nil, err
	}
	if !check.Available {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("you are %s", check.Reason))
	}

	if err := s.swaps.TransitionStatus(ctx, swapID, models.SwapFacilitatorPending, models.SwapCoordinatorPending, note, nil); err != nil {
		return nil, s.mapSwapWriteError(err)
	}

	if unit, err := s.units.FindByID(ctx, requesterAssignment.UnitID); err == nil {
		s.notifier.Emit(models.Event{
			Kind:        models.EventSwapRequested,
			RecipientID: unit.CoordinatorID,
			UnitID:      unit.ID,
			Payload:     map[string]interface{}{"swap_id": swapID, "stage": "coordinator_review"},
		})
	}
	return s.detailOf(ctx, swapID)
}

// CoordinatorRespond lets the unit coordinator (or an admin) resolve a swap
// in COORDINATOR_PENDING. Approval executes the exchange atomically.
func (s *SwapService) CoordinatorRespond(ctx context.Context, actor models.ActingAs, swapID string, req dto.SwapResponseRequest) (*models.SwapRequestDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid response payload")
	}
	detail, err := s.loadSwapDetail(ctx, swapID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureCoordinator(ctx, actor, detail.UnitID); err != nil {
		return nil, err
	}
	if detail.Status != models.SwapCoordinatorPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "swap request is not awaiting coordinator review")
	}

	note := optionalNote(req.Note)
	reviewer := actor.UserID
	if !req.Approve {
		if err := s.swaps.TransitionStatus(ctx, swapID, models.SwapCoordinatorPending, models.SwapCoordinatorDecline, note, &reviewer); err != nil {
			return nil, s.mapSwapWriteError(err)
		}
		s.notifySwapResolved(&detail.SwapRequest, "declined by coordinator")
		return s.detailOf(ctx, swapID)
	}

	if err := s.swaps.ApproveExchange(ctx, swapID, reviewer); err != nil {
		return nil, s.mapSwapWriteError(err)
	}
	s.metrics.RecordSwapExecuted()
	s.availability.InvalidateListings(ctx)
	s.emitToBoth(&detail.SwapRequest, models.EventSwapExecuted, detail.UnitID, map[string]interface{}{
		"swap_id": swapID,
	})
	return s.detailOf(ctx, swapID)
}

// ResolvePending resolves a legacy single-stage PENDING request. Approval
// executes the transfer; rejection records the note.
func (s *SwapService) ResolvePending(ctx context.Context, actor models.ActingAs, swapID string, req dto.SwapResponseRequest) (*models.SwapRequestDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid response payload")
	}
	detail, err := s.loadSwapDetail(ctx, swapID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureCoordinator(ctx, actor, detail.UnitID); err != nil {
		return nil, err
	}
	if detail.Status != models.SwapPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "swap request is not pending review")
	}

	reviewer := actor.UserID
	if !req.Approve {
		if err := s.swaps.TransitionStatus(ctx, swapID, models.SwapPending, models.SwapRejected, optionalNote(req.Note), &reviewer); err != nil {
			return nil, s.mapSwapWriteError(err)
		}
		s.notifySwapResolved(&detail.SwapRequest, "rejected by coordinator")
		return s.detailOf(ctx, swapID)
	}

	assignment, err := s.assignments.GetDetail(ctx, detail.RequesterAssignmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	var rolled *models.Unavailability
	if assignment.IsPublished {
		rolled = scheduledUnavailability(detail.TargetID, assignment)
	}
	if err := s.swaps.ApproveTransfer(ctx, swapID, reviewer, rolled); err != nil {
		return nil, s.mapSwapWriteError(err)
	}
	s.metrics.RecordSwapExecuted()
	s.availability.InvalidateListings(ctx)
	s.emitToBoth(&detail.SwapRequest, models.EventSwapExecuted, detail.UnitID, map[string]interface{}{
		"swap_id": swapID,
	})
	return s.detailOf(ctx, swapID)
}

// ListMine returns swaps where the actor is requester or target.
func (s *SwapService) ListMine(ctx context.Context, actor models.ActingAs, query dto.SwapQuery) ([]models.SwapRequestDetail, error) {
	return s.listOrWrap(s.swaps.ListByUser(ctx, actor.UserID, models.SwapStatus(query.Status)))
}

// ListUnit returns swaps touching the unit, for its coordinator.
func (s *SwapService) ListUnit(ctx context.Context, actor models.ActingAs, unitID string, query dto.SwapQuery) ([]models.SwapRequestDetail, error) {
	if err := s.ensureCoordinator(ctx, actor, unitID); err != nil {
		return nil, err
	}
	return s.listOrWrap(s.swaps.ListByUnit(ctx, unitID, models.SwapStatus(query.Status)))
}

// Get returns one swap visible to the actor.
func (s *SwapService) Get(ctx context.Context, actor models.ActingAs, swapID string) (*models.SwapRequestDetail, error) {
	detail, err := s.loadSwapDetail(ctx, swapID)
	if err != nil {
		return nil, err
	}
	if detail.RequesterID == actor.UserID || detail.TargetID == actor.UserID {
		return detail, nil
	}
	if err := s.ensureCoordinator(ctx, actor, detail.UnitID); err != nil {
		return nil, err
	}
	return detail, nil
}

func (s *SwapService) loadOwnedFutureAssignment(ctx context.Context, actor models.ActingAs, assignmentID string) (*models.AssignmentDetail, error) {
	assignment, err := s.assignments.GetDetail(ctx, assignmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	if assignment.FacilitatorID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "you can only swap your own assignments")
	}
	sessionStart := time.Date(assignment.Date.Year(), assignment.Date.Month(), assignment.Date.Day(),
		assignment.StartTime.Hour, assignment.StartTime.Minute, 0, 0, time.UTC)
	if !sessionStart.After(s.now()) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cannot swap a session that has already started")
	}
	return assignment, nil
}

func (s *SwapService) loadSwapTarget(ctx context.Context, actor models.ActingAs, targetID string, assignment *models.AssignmentDetail) (*models.User, error) {
	if targetID == actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cannot swap with yourself")
	}
	target, err := s.users.FindByID(ctx, targetID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "target facilitator not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load target facilitator")
	}
	linked, err := s.users.IsLinkedToUnit(ctx, targetID, assignment.UnitID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check unit link")
	}
	if !linked {
		return nil, appErrors.Clone(appErrors.ErrValidation, "target facilitator is not on this unit's roster")
	}
	level, err := s.skills.GetLevel(ctx, targetID, assignment.ModuleID)
	if err != nil && err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load skill level")
	}
	if level == models.SkillNoInterest {
		return nil, appErrors.Clone(appErrors.ErrValidation, "target facilitator declared no interest in this module")
	}
	return target, nil
}

func (s *SwapService) ensureCoordinator(ctx context.Context, actor models.ActingAs, unitID string) error {
	if actor.Role == models.RoleAdmin {
		return nil
	}
	if actor.Role == models.RoleUnitCoordinator {
		coordinates, err := s.units.IsCoordinator(ctx, actor.UserID, unitID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check coordinator")
		}
		if coordinates {
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrForbidden, "only the unit coordinator may review this swap")
}

func (s *SwapService) loadSwap(ctx context.Context, swapID string) (*models.SwapRequest, error) {
	swap, err := s.swaps.GetByID(ctx, swapID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "swap request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load swap request")
	}
	return swap, nil
}

func (s *SwapService) loadSwapDetail(ctx context.Context, swapID string) (*models.SwapRequestDetail, error) {
	detail, err := s.swaps.GetDetail(ctx, swapID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "swap request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load swap request")
	}
	return detail, nil
}

func (s *SwapService) detailOf(ctx context.Context, swapID string) (*models.SwapRequestDetail, error) {
	detail, err := s.swaps.GetDetail(ctx, swapID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload swap request")
	}
	return detail, nil
}

func (s *SwapService) listOrWrap(details []models.SwapRequestDetail, err error) ([]models.SwapRequestDetail, error) {
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list swap requests")
	}
	return details, nil
}

func (s *SwapService) mapSwapWriteError(err error) error {
	switch {
	case errors.Is(err, repository.ErrOpenSwapExists):
		return appErrors.Clone(appErrors.ErrConflict, "an open swap request already exists for this assignment")
	case err == sql.ErrNoRows:
		return appErrors.Clone(appErrors.ErrConflict, "swap request is no longer in the expected state")
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to write swap request")
	}
}

func (s *SwapService) emitToBoth(swap *models.SwapRequest, kind models.EventKind, unitID string, payload map[string]interface{}) {
	for _, recipient := range []string{swap.RequesterID, swap.TargetID} {
		s.notifier.Emit(models.Event{
			Kind:        kind,
			RecipientID: recipient,
			UnitID:      unitID,
			Payload:     payload,
		})
	}
}

func (s *SwapService) notifySwapResolved(swap *models.SwapRequest, outcome string) {
	s.notifier.Emit(models.Event{
		Kind:        models.EventSwapResolved,
		RecipientID: swap.RequesterID,
		Payload:     map[string]interface{}{"swap_id": swap.ID, "outcome": outcome},
	})
}

func optionalNote(note string) *string {
	if note == "" {
		return nil
	}
	return &note
}
