package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uniflow/facilitation-api/internal/dto"
	"github.com/uniflow/facilitation-api/internal/models"
	"github.com/uniflow/facilitation-api/internal/repository"
	"github.com/uniflow/facilitation-api/internal/timeslot"
	appErrors "github.com/uniflow/facilitation-api/pkg/errors"
)

type fakeSwapRepo struct {
	seq     int
	byID    map[string]*models.SwapRequest
	details map[string]*models.SwapRequestDetail

	executed        *models.SwapRequest
	executedRolled  *models.Unavailability
	createdExchange *models.SwapRequest
	transferRolled  *models.Unavailability
	executeErr      error

	approvedExchangeID string
	approvedTransferID string
	transitions        []string
}

func newFakeSwapRepo() *fakeSwapRepo {
	return &fakeSwapRepo{
		byID:    map[string]*models.SwapRequest{},
		details: map[string]*models.SwapRequestDetail{},
	}
}

func (f *fakeSwapRepo) install(swap *models.SwapRequest, unitID string) {
	f.byID[swap.ID] = swap
	f.details[swap.ID] = &models.SwapRequestDetail{SwapRequest: *swap, UnitID: unitID}
}

func (f *fakeSwapRepo) GetByID(_ context.Context, id string) (*models.SwapRequest, error) {
	swap, ok := f.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *swap
	return &clone, nil
}

func (f *fakeSwapRepo) GetDetail(_ context.Context, id string) (*models.SwapRequestDetail, error) {
	detail, ok := f.details[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *detail
	return &clone, nil
}

func (f *fakeSwapRepo) ListByUser(_ context.Context, _ string, _ models.SwapStatus) ([]models.SwapRequestDetail, error) {
	return nil, nil
}

func (f *fakeSwapRepo) ListByUnit(_ context.Context, _ string, _ models.SwapStatus) ([]models.SwapRequestDetail, error) {
	return nil, nil
}

func (f *fakeSwapRepo) CreateExchange(_ context.Context, swap *models.SwapRequest) error {
	if f.executeErr != nil {
		return f.executeErr
	}
	f.seq++
	swap.ID = fmt.Sprintf("swap-%d", f.seq)
	f.createdExchange = swap
	f.install(swap, "unit-1")
	return nil
}

func (f *fakeSwapRepo) ExecuteTransfer(_ context.Context, swap *models.SwapRequest, rolled *models.Unavailability) error {
	if f.executeErr != nil {
		return f.executeErr
	}
	f.seq++
	swap.ID = fmt.Sprintf("swap-%d", f.seq)
	f.executed = swap
	f.executedRolled = rolled
	f.install(swap, "unit-1")
	return nil
}

func (f *fakeSwapRepo) ApproveTransfer(_ context.Context, swapID, reviewerID string, rolled *models.Unavailability) error {
	f.approvedTransferID = swapID
	f.transferRolled = rolled
	f.byID[swapID].Status = models.SwapApproved
	f.byID[swapID].ReviewedBy = &reviewerID
	f.details[swapID].Status = models.SwapApproved
	return nil
}

func (f *fakeSwapRepo) ApproveExchange(_ context.Context, swapID, reviewerID string) error {
	f.approvedExchangeID = swapID
	f.byID[swapID].Status = models.SwapApproved
	f.byID[swapID].ReviewedBy = &reviewerID
	f.details[swapID].Status = models.SwapApproved
	return nil
}

func (f *fakeSwapRepo) TransitionStatus(_ context.Context, id string, from, to models.SwapStatus, note, reviewedBy *string) error {
	swap, ok := f.byID[id]
	if !ok || swap.Status != from {
		return sql.ErrNoRows
	}
	swap.Status = to
	swap.ResponseNote = note
	swap.ReviewedBy = reviewedBy
	f.details[id].Status = to
	f.details[id].ResponseNote = note
	f.details[id].ReviewedBy = reviewedBy
	f.transitions = append(f.transitions, fmt.Sprintf("%s->%s", from, to))
	return nil
}

type fakeAssignmentCatalog struct {
	details map[string]*models.AssignmentDetail
}

func (f *fakeAssignmentCatalog) GetDetail(_ context.Context, id string) (*models.AssignmentDetail, error) {
	detail, ok := f.details[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return detail, nil
}

type fakeUnitCatalog struct {
	units       map[string]*models.Unit
	coordinates bool
}

func (f *fakeUnitCatalog) FindByID(_ context.Context, id string) (*models.Unit, error) {
	unit, ok := f.units[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return unit, nil
}

func (f *fakeUnitCatalog) IsCoordinator(_ context.Context, _, _ string) (bool, error) {
	return f.coordinates, nil
}

type fakeSkillLevels struct {
	levels map[string]models.SkillLevel
}

func (f *fakeSkillLevels) GetLevel(_ context.Context, facilitatorID, _ string) (models.SkillLevel, error) {
	level, ok := f.levels[facilitatorID]
	if !ok {
		return "", sql.ErrNoRows
	}
	return level, nil
}

type fakeAvailability struct {
	result        *AvailabilityResult
	invalidations int
}

func (f *fakeAvailability) Check(_ context.Context, _ string, _ time.Time, _, _ timeslot.TimeOfDay, _ string) (*AvailabilityResult, error) {
	if f.result == nil {
		return &AvailabilityResult{Available: true}, nil
	}
	return f.result, nil
}

func (f *fakeAvailability) InvalidateListings(_ context.Context) {
	f.invalidations++
}

type swapFixture struct {
	repo         *fakeSwapRepo
	assignments  *fakeAssignmentCatalog
	users        *fakeUserDirectory
	units        *fakeUnitCatalog
	skills       *fakeSkillLevels
	availability *fakeAvailability
	svc          *SwapService
}

func newSwapFixture() *swapFixture {
	f := &swapFixture{
		repo: newFakeSwapRepo(),
		assignments: &fakeAssignmentCatalog{details: map[string]*models.AssignmentDetail{
			"assign-1": {
				SessionAssignment: models.SessionAssignment{ID: "assign-1", SessionID: "sess-1", FacilitatorID: "fac-1"},
				UnitID:            "unit-1",
				UnitCode:          "COS30045",
				ModuleID:          "mod-1",
				ModuleName:        "Data Visualisation",
				SessionType:       "workshop",
				Date:              time.Date(2025, 7, 14, 0, 0, 0, 0, time.UTC),
				StartTime:         timeslot.TimeOfDay{Hour: 9},
				EndTime:           timeslot.TimeOfDay{Hour: 11},
			},
			"assign-2": {
				SessionAssignment: models.SessionAssignment{ID: "assign-2", SessionID: "sess-2", FacilitatorID: "fac-2"},
				UnitID:            "unit-1",
				UnitCode:          "COS30045",
				ModuleID:          "mod-1",
				ModuleName:        "Data Visualisation",
				SessionType:       "lab",
				Date:              time.Date(2025, 7, 16, 0, 0, 0, 0, time.UTC),
				StartTime:         timeslot.TimeOfDay{Hour: 14},
				EndTime:           timeslot.TimeOfDay{Hour: 16},
			},
		}},
		users: &fakeUserDirectory{
			users: map[string]*models.User{
				"fac-1": {ID: "fac-1", FullName: "Riley Requester"},
				"fac-2": {ID: "fac-2", FullName: "Tara Target"},
			},
			linked: true,
		},
		units: &fakeUnitCatalog{units: map[string]*models.Unit{
			"unit-1": {ID: "unit-1", Code: "COS30045", CoordinatorID: "coord-1"},
		}},
		skills:       &fakeSkillLevels{levels: map[string]models.SkillLevel{}},
		availability: &fakeAvailability{},
	}
	f.svc = NewSwapService(f.repo, f.assignments, f.users, f.units, f.skills, f.availability, nil, nil, nil, nil)
	f.svc.now = func() time.Time { return time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC) }
	return f
}

func transferRequest() dto.CreateSwapRequest {
	return dto.CreateSwapRequest{
		AssignmentID: "assign-1",
		TargetID:     "fac-2",
		Reason:       "family commitment",
		HasDiscussed: true,
	}
}

func TestSwapCreateTransferExecutesImmediately(t *testing.T) {
	f := newSwapFixture()

	detail, err := f.svc.Create(context.Background(), facilitatorActor("fac-1"), transferRequest())
	require.NoError(t, err)
	assert.Equal(t, models.SwapApproved, detail.Status)
	assert.Equal(t, models.SwapModeTransfer, f.repo.executed.ExecutionMode)
	assert.Equal(t, "fac-2", f.repo.executed.TargetID)
	// Unpublished session, nothing to roll into unavailability.
	assert.Nil(t, f.repo.executedRolled)
	assert.Equal(t, 1, f.availability.invalidations)
}

func TestSwapCreateRequiresDiscussion(t *testing.T) {
	f := newSwapFixture()
	req := transferRequest()
	req.HasDiscussed = false

	_, err := f.svc.Create(context.Background(), facilitatorActor("fac-1"), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSwapCreateOnlyOwnAssignment(t *testing.T) {
	f := newSwapFixture()

	_, err := f.svc.Create(context.Background(), facilitatorActor("fac-2"), transferRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestSwapCreatePastSessionRejected(t *testing.T) {
	f := newSwapFixture()
	f.svc.now = func() time.Time { return time.Date(2025, 7, 14, 9, 0, 0, 0, time.UTC) }

	_, err := f.svc.Create(context.Background(), facilitatorActor("fac-1"), transferRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSwapCreateTargetValidation(t *testing.T) {
	f := newSwapFixture()
	req := transferRequest()
	req.TargetID = "fac-1"
	_, err := f.svc.Create(context.Background(), facilitatorActor("fac-1"), req)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	f = newSwapFixture()
	f.users.linked = false
	_, err = f.svc.Create(context.Background(), facilitatorActor("fac-1"), transferRequest())
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	f = newSwapFixture()
	f.skills.levels["fac-2"] = models.SkillNoInterest
	_, err = f.svc.Create(context.Background(), facilitatorActor("fac-1"), transferRequest())
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSwapCreateTargetUnavailableIsConflict(t *testing.T) {
	f := newSwapFixture()
	f.availability.result = &AvailabilityResult{Reason: "unavailable for the whole day"}

	_, err := f.svc.Create(context.Background(), facilitatorActor("fac-1"), transferRequest())
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Equal(t, "Tara Target is unavailable for the whole day", appErr.Message)
}

func TestSwapCreatePublishedRollsUnavailability(t *testing.T) {
	f := newSwapFixture()
	f.assignments.details["assign-1"].IsPublished = true

	_, err := f.svc.Create(context.Background(), facilitatorActor("fac-1"), transferRequest())
	require.NoError(t, err)
	require.NotNil(t, f.repo.executedRolled)
	assert.Equal(t, "fac-2", f.repo.executedRolled.UserID)
	require.NotNil(t, f.repo.executedRolled.SourceSessionID)
	assert.Equal(t, "sess-1", *f.repo.executedRolled.SourceSessionID)
	assert.Equal(t, "Scheduled: COS30045 - Data Visualisation (workshop)", f.repo.executedRolled.Reason)
}

func TestSwapCreateOpenSwapExists(t *testing.T) {
	f := newSwapFixture()
	f.repo.executeErr = repository.ErrOpenSwapExists

	_, err := f.svc.Create(context.Background(), facilitatorActor("fac-1"), transferRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestExchangeLifecycle(t *testing.T) {
	f := newSwapFixture()

	detail, err := f.svc.CreateExchange(context.Background(), facilitatorActor("fac-1"), dto.CreateExchangeSwapRequest{
		AssignmentID:       "assign-1",
		TargetAssignmentID: "assign-2",
		Reason:             "trading the late lab",
	})
	require.NoError(t, err)
	assert.Equal(t, models.SwapFacilitatorPending, detail.Status)
	assert.Equal(t, models.SwapModeExchange, f.repo.createdExchange.ExecutionMode)
	swapID := detail.ID

	detail, err = f.svc.FacilitatorRespond(context.Background(), facilitatorActor("fac-2"), swapID, dto.SwapResponseRequest{Approve: true})
	require.NoError(t, err)
	assert.Equal(t, models.SwapCoordinatorPending, detail.Status)

	coordinator := models.ActingAs{UserID: "coord-1", Role: models.RoleUnitCoordinator}
	f.units.coordinates = true
	detail, err = f.svc.CoordinatorRespond(context.Background(), coordinator, swapID, dto.SwapResponseRequest{Approve: true})
	require.NoError(t, err)
	assert.Equal(t, models.SwapApproved, detail.Status)
	assert.Equal(t, swapID, f.repo.approvedExchangeID)
	assert.Equal(t, 1, f.availability.invalidations)
}

func TestExchangeMustStayInUnit(t *testing.T) {
	f := newSwapFixture()
	f.assignments.details["assign-2"].UnitID = "unit-2"

	_, err := f.svc.CreateExchange(context.Background(), facilitatorActor("fac-1"), dto.CreateExchangeSwapRequest{
		AssignmentID:       "assign-1",
		TargetAssignmentID: "assign-2",
		Reason:             "trading the late lab",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestFacilitatorRespondOnlyTarget(t *testing.T) {
	f := newSwapFixture()
	f.repo.install(&models.SwapRequest{
		ID: "swap-1", RequesterID: "fac-1", TargetID: "fac-2",
		RequesterAssignmentID: "assign-1",
		Status:                models.SwapFacilitatorPending,
	}, "unit-1")

	_, err := f.svc.FacilitatorRespond(context.Background(), facilitatorActor("fac-3"), "swap-1", dto.SwapResponseRequest{Approve: true})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestFacilitatorRespondDecline(t *testing.T) {
	f := newSwapFixture()
	f.repo.install(&models.SwapRequest{
		ID: "swap-1", RequesterID: "fac-1", TargetID: "fac-2",
		RequesterAssignmentID: "assign-1",
		Status:                models.SwapFacilitatorPending,
	}, "unit-1")

	detail, err := f.svc.FacilitatorRespond(context.Background(), facilitatorActor("fac-2"), "swap-1", dto.SwapResponseRequest{
		Note: "covering another class that day",
	})
	require.NoError(t, err)
	assert.Equal(t, models.SwapFacilitatorDecline, detail.Status)
}

func TestFacilitatorRespondUnavailableBlocksApproval(t *testing.T) {
	f := newSwapFixture()
	f.repo.install(&models.SwapRequest{
		ID: "swap-1", RequesterID: "fac-1", TargetID: "fac-2",
		RequesterAssignmentID: "assign-1",
		Status:                models.SwapFacilitatorPending,
	}, "unit-1")
	f.availability.result = &AvailabilityResult{Reason: "already assigned to COS10009 lab (09:00-11:00)"}

	_, err := f.svc.FacilitatorRespond(context.Background(), facilitatorActor("fac-2"), "swap-1", dto.SwapResponseRequest{Approve: true})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	// The request stays where it was.
	assert.Equal(t, models.SwapFacilitatorPending, f.repo.byID["swap-1"].Status)
	assert.Empty(t, f.repo.transitions)
}

func TestCoordinatorRespondRequiresCoordinator(t *testing.T) {
	f := newSwapFixture()
	f.repo.install(&models.SwapRequest{
		ID: "swap-1", RequesterID: "fac-1", TargetID: "fac-2",
		RequesterAssignmentID: "assign-1",
		Status:                models.SwapCoordinatorPending,
	}, "unit-1")

	_, err := f.svc.CoordinatorRespond(context.Background(), facilitatorActor("fac-9"), "swap-1", dto.SwapResponseRequest{Approve: true})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = f.svc.CoordinatorRespond(context.Background(),
		models.ActingAs{UserID: "coord-9", Role: models.RoleUnitCoordinator}, "swap-1", dto.SwapResponseRequest{Approve: true})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestResolvePendingApproveExecutesTransfer(t *testing.T) {
	f := newSwapFixture()
	f.assignments.details["assign-1"].IsPublished = true
	f.repo.install(&models.SwapRequest{
		ID: "swap-1", RequesterID: "fac-1", TargetID: "fac-2",
		RequesterAssignmentID: "assign-1",
		ExecutionMode:         models.SwapModeTransfer,
		Status:                models.SwapPending,
	}, "unit-1")

	admin := models.ActingAs{UserID: "admin-1", Role: models.RoleAdmin}
	detail, err := f.svc.ResolvePending(context.Background(), admin, "swap-1", dto.SwapResponseRequest{Approve: true})
	require.NoError(t, err)
	assert.Equal(t, models.SwapApproved, detail.Status)
	assert.Equal(t, "swap-1", f.repo.approvedTransferID)
	require.NotNil(t, f.repo.transferRolled)
	assert.Equal(t, "fac-2", f.repo.transferRolled.UserID)
}

func TestResolvePendingReject(t *testing.T) {
	f := newSwapFixture()
	f.repo.install(&models.SwapRequest{
		ID: "swap-1", RequesterID: "fac-1", TargetID: "fac-2",
		RequesterAssignmentID: "assign-1",
		Status:                models.SwapPending,
	}, "unit-1")

	admin := models.ActingAs{UserID: "admin-1", Role: models.RoleAdmin}
	detail, err := f.svc.ResolvePending(context.Background(), admin, "swap-1", dto.SwapResponseRequest{Note: "too close to the exam"})
	require.NoError(t, err)
	assert.Equal(t, models.SwapRejected, detail.Status)
	require.NotNil(t, detail.ReviewedBy)
	assert.Equal(t, "admin-1", *detail.ReviewedBy)
}

func TestSwapGetVisibility(t *testing.T) {
	f := newSwapFixture()
	f.repo.install(&models.SwapRequest{
		ID: "swap-1", RequesterID: "fac-1", TargetID: "fac-2",
		RequesterAssignmentID: "assign-1",
		Status:                models.SwapFacilitatorPending,
	}, "unit-1")

	_, err := f.svc.Get(context.Background(), facilitatorActor("fac-1"), "swap-1")
	assert.NoError(t, err)
	_, err = f.svc.Get(context.Background(), facilitatorActor("fac-2"), "swap-1")
	assert.NoError(t, err)

	_, err = f.svc.Get(context.Background(), facilitatorActor("fac-9"), "swap-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = f.svc.Get(context.Background(), models.ActingAs{UserID: "admin-1", Role: models.RoleAdmin}, "swap-1")
	assert.NoError(t, err)
}
