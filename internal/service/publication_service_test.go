package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uniflow/facilitation-api/internal/dto"
	"github.com/uniflow/facilitation-api/internal/models"
	"github.com/uniflow/facilitation-api/internal/timeslot"
	appErrors "github.com/uniflow/facilitation-api/pkg/errors"
)

type fakeScheduleRepo struct {
	publishedRecords []*models.Unavailability
	snapshot         []byte
	unpublishCalled  bool
	rejectionNote    string
	removed          int
	rejected         []models.SwapRequest
}

func (f *fakeScheduleRepo) PublishUnit(_ context.Context, _, _ string, records []*models.Unavailability, snapshot []byte) (int, error) {
	f.publishedRecords = records
	f.snapshot = snapshot
	return len(records), nil
}

func (f *fakeScheduleRepo) UnpublishUnit(_ context.Context, _, _ string, rejectionNote string) (int, []models.SwapRequest, error) {
	f.unpublishCalled = true
	f.rejectionNote = rejectionNote
	return f.removed, f.rejected, nil
}

type fakeUnitSchedule struct {
	units       map[string]*models.Unit
	coordinates bool
	sessions    []models.SessionDetail
}

func (f *fakeUnitSchedule) FindByID(_ context.Context, id string) (*models.Unit, error) {
	unit, ok := f.units[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return unit, nil
}

func (f *fakeUnitSchedule) IsCoordinator(_ context.Context, _, _ string) (bool, error) {
	return f.coordinates, nil
}

func (f *fakeUnitSchedule) ListSessions(_ context.Context, _ string) ([]models.SessionDetail, error) {
	return f.sessions, nil
}

type fakeUnitAssignments struct {
	assignments []models.AssignmentDetail
	replaced    []models.AssignmentProposal
}

func (f *fakeUnitAssignments) ListByUnit(_ context.Context, _ string) ([]models.AssignmentDetail, error) {
	return f.assignments, nil
}

func (f *fakeUnitAssignments) ReplaceForUnit(_ context.Context, _ string, proposals []models.AssignmentProposal) error {
	f.replaced = proposals
	return nil
}

type publicationFixture struct {
	schedule       *fakeScheduleRepo
	units          *fakeUnitSchedule
	assignments    *fakeUnitAssignments
	unavailability *fakeUnavailabilityRepo
	users          *fakeUserDirectory
	listings       *fakeInvalidator
	svc            *PublicationService
}

func assignmentFor(id, sessionID, facilitatorID string, date time.Time) models.AssignmentDetail {
	return models.AssignmentDetail{
		SessionAssignment: models.SessionAssignment{ID: id, SessionID: sessionID, FacilitatorID: facilitatorID, Role: models.AssignmentLead},
		UnitID:            "unit-1",
		UnitCode:          "COS30045",
		ModuleName:        "Data Visualisation",
		SessionType:       "workshop",
		Date:              date,
		StartTime:         timeslot.TimeOfDay{Hour: 9},
		EndTime:           timeslot.TimeOfDay{Hour: 11},
	}
}

func newPublicationFixture() *publicationFixture {
	monday := time.Date(2025, 7, 14, 0, 0, 0, 0, time.UTC)
	f := &publicationFixture{
		schedule: &fakeScheduleRepo{},
		units: &fakeUnitSchedule{units: map[string]*models.Unit{
			"unit-1": {ID: "unit-1", Code: "COS30045", CoordinatorID: "coord-1", ScheduleStatus: models.ScheduleDraft},
		}},
		assignments: &fakeUnitAssignments{assignments: []models.AssignmentDetail{
			assignmentFor("assign-1", "sess-1", "fac-1", monday),
			assignmentFor("assign-2", "sess-2", "fac-2", monday.AddDate(0, 0, 2)),
		}},
		unavailability: &fakeUnavailabilityRepo{onDate: map[string][]models.Unavailability{}},
		users: &fakeUserDirectory{users: map[string]*models.User{
			"fac-1": {ID: "fac-1", FullName: "Fay Cilitator"},
			"fac-2": {ID: "fac-2", FullName: "Sam Support"},
		}},
		listings: &fakeInvalidator{},
	}
	f.svc = NewPublicationService(
		f.schedule, f.units, f.assignments, f.unavailability, f.users,
		f.listings, nil, nil, nil, nil, nil, nil, nil,
	)
	return f
}

func coordinatorActor() models.ActingAs {
	return models.ActingAs{UserID: "coord-1", Role: models.RoleUnitCoordinator}
}

func TestPublishCreatesScheduledBlocks(t *testing.T) {
	f := newPublicationFixture()
	f.units.coordinates = true

	result, err := f.svc.Publish(context.Background(), coordinatorActor(), "unit-1", dto.PublishScheduleRequest{})
	require.NoError(t, err)
	assert.Equal(t, 2, result.SessionsPublished)
	assert.Equal(t, 2, result.UnavailabilityAdded)
	assert.Equal(t, 2, result.NotifiedCount)
	assert.Empty(t, result.Conflicts)

	require.Len(t, f.schedule.publishedRecords, 2)
	record := f.schedule.publishedRecords[0]
	assert.Equal(t, "fac-1", record.UserID)
	require.NotNil(t, record.SourceSessionID)
	assert.Equal(t, "sess-1", *record.SourceSessionID)
	assert.Equal(t, "Scheduled: COS30045 - Data Visualisation (workshop)", record.Reason)

	var snapshot map[string][]string
	require.NoError(t, json.Unmarshal(f.schedule.snapshot, &snapshot))
	assert.Equal(t, []string{"sess-1"}, snapshot["fac-1"])
	assert.Equal(t, []string{"sess-2"}, snapshot["fac-2"])
	assert.Equal(t, 1, f.listings.calls)
}

func TestPublishRequiresAssignments(t *testing.T) {
	f := newPublicationFixture()
	f.units.coordinates = true
	f.assignments.assignments = nil

	_, err := f.svc.Publish(context.Background(), coordinatorActor(), "unit-1", dto.PublishScheduleRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestPublishRequiresCoordinator(t *testing.T) {
	f := newPublicationFixture()

	_, err := f.svc.Publish(context.Background(), facilitatorActor("fac-1"), "unit-1", dto.PublishScheduleRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestPublishNotifyFilter(t *testing.T) {
	f := newPublicationFixture()
	f.units.coordinates = true

	result, err := f.svc.Publish(context.Background(), coordinatorActor(), "unit-1", dto.PublishScheduleRequest{
		NotifyFacilitatorIDs: []string{"fac-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.NotifiedCount)
}

func TestPublishReportsRepublishConflicts(t *testing.T) {
	f := newPublicationFixture()
	f.units.coordinates = true
	unpublishedAt := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	f.units.units["unit-1"].UnpublishedAt = &unpublishedAt

	start, end := mustSlot(t, "09:00"), mustSlot(t, "12:00")
	sourceSession := "sess-old"
	f.unavailability.onDate["fac-1"] = []models.Unavailability{
		{
			// Declared after the unpublish and covering the session slot.
			UserID:    "fac-1",
			Date:      time.Date(2025, 7, 14, 0, 0, 0, 0, time.UTC),
			StartTime: &start,
			EndTime:   &end,
			Reason:    "conference travel",
			CreatedAt: unpublishedAt.AddDate(0, 0, 3),
		},
		{
			// System-generated rows never count as conflicts.
			UserID:          "fac-1",
			Date:            time.Date(2025, 7, 14, 0, 0, 0, 0, time.UTC),
			IsFullDay:       true,
			SourceSessionID: &sourceSession,
			CreatedAt:       unpublishedAt.AddDate(0, 0, 3),
		},
	}

	result, err := f.svc.Publish(context.Background(), coordinatorActor(), "unit-1", dto.PublishScheduleRequest{})
	require.NoError(t, err)
	require.Len(t, result.Conflicts, 1)
	conflict := result.Conflicts[0]
	assert.Equal(t, "fac-1", conflict.FacilitatorID)
	assert.Equal(t, "Fay Cilitator", conflict.FacilitatorName)
	assert.Equal(t, "sess-1", conflict.SessionID)
	assert.Equal(t, "conference travel", conflict.Reason)
}

func TestPublishIgnoresStaleUnavailability(t *testing.T) {
	f := newPublicationFixture()
	f.units.coordinates = true
	unpublishedAt := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	f.units.units["unit-1"].UnpublishedAt = &unpublishedAt

	start, end := mustSlot(t, "09:00"), mustSlot(t, "12:00")
	f.unavailability.onDate["fac-1"] = []models.Unavailability{{
		// Predates the unpublish, so the coordinator already saw it.
		UserID:    "fac-1",
		Date:      time.Date(2025, 7, 14, 0, 0, 0, 0, time.UTC),
		StartTime: &start,
		EndTime:   &end,
		CreatedAt: unpublishedAt.AddDate(0, 0, -10),
	}}

	result, err := f.svc.Publish(context.Background(), coordinatorActor(), "unit-1", dto.PublishScheduleRequest{})
	require.NoError(t, err)
	assert.Empty(t, result.Conflicts)
}

func TestUnpublishDraftIsNoop(t *testing.T) {
	f := newPublicationFixture()
	f.units.coordinates = true

	result, err := f.svc.Unpublish(context.Background(), coordinatorActor(), "unit-1")
	require.NoError(t, err)
	assert.False(t, f.schedule.unpublishCalled)
	assert.Zero(t, result.UnavailabilityRemoved)
	assert.Zero(t, result.SwapsRejected)
}

func TestUnpublishRevertsAndRejectsSwaps(t *testing.T) {
	f := newPublicationFixture()
	f.units.coordinates = true
	f.units.units["unit-1"].ScheduleStatus = models.SchedulePublished
	f.schedule.removed = 5
	f.schedule.rejected = []models.SwapRequest{
		{ID: "swap-1", RequesterID: "fac-1", TargetID: "fac-9"},
	}

	result, err := f.svc.Unpublish(context.Background(), coordinatorActor(), "unit-1")
	require.NoError(t, err)
	assert.True(t, f.schedule.unpublishCalled)
	assert.Equal(t, "Schedule unpublished by coordinator", f.schedule.rejectionNote)
	assert.Equal(t, 5, result.UnavailabilityRemoved)
	assert.Equal(t, 1, result.SwapsRejected)
	// fac-1 and fac-2 hold assignments, fac-9 was a swap target.
	assert.Equal(t, 3, result.NotifiedCount)
	assert.Equal(t, 1, f.listings.calls)
}

func TestReplaceAssignmentsBlockedWhenPublished(t *testing.T) {
	f := newPublicationFixture()
	f.units.coordinates = true
	f.units.units["unit-1"].ScheduleStatus = models.SchedulePublished

	req := dto.ReplaceAssignmentsRequest{Assignments: []dto.AssignmentProposalPayload{
		{SessionID: "sess-1", FacilitatorID: "fac-1", Role: "lead"},
	}}
	_, err := f.svc.ReplaceAssignments(context.Background(), coordinatorActor(), "unit-1", req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestReplaceAssignmentsInstallsProposals(t *testing.T) {
	f := newPublicationFixture()
	f.units.coordinates = true

	score := 0.82
	req := dto.ReplaceAssignmentsRequest{Assignments: []dto.AssignmentProposalPayload{
		{SessionID: "sess-1", FacilitatorID: "fac-1", Role: "lead", Score: &score},
		{SessionID: "sess-1", FacilitatorID: "fac-2", Role: "support"},
	}}
	installed, err := f.svc.ReplaceAssignments(context.Background(), coordinatorActor(), "unit-1", req)
	require.NoError(t, err)
	assert.Equal(t, 2, installed)
	require.Len(t, f.assignments.replaced, 2)
	assert.Equal(t, models.AssignmentLead, f.assignments.replaced[0].Role)
	assert.Equal(t, 1, f.listings.calls)
}

func TestListScheduleUnknownUnit(t *testing.T) {
	f := newPublicationFixture()

	_, err := f.svc.ListSchedule(context.Background(), facilitatorActor("fac-1"), "unit-404")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestOpenReportDisabledWithoutSigner(t *testing.T) {
	f := newPublicationFixture()

	_, err := f.svc.OpenReport("token")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
