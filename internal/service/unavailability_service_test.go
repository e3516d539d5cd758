package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uniflow/facilitation-api/internal/dto"
	"github.com/uniflow/facilitation-api/internal/models"
	"github.com/uniflow/facilitation-api/internal/timeslot"
	appErrors "github.com/uniflow/facilitation-api/pkg/errors"
)

func mustSlot(t *testing.T, value string) timeslot.TimeOfDay {
	t.Helper()
	parsed, err := timeslot.Parse(value)
	require.NoError(t, err)
	return parsed
}

type fakeUnavailabilityRepo struct {
	byID   map[string]*models.Unavailability
	onDate map[string][]models.Unavailability

	forDateAllDuplicates bool
	createdForDate       []*models.Unavailability
	createdMany          []*models.Unavailability
	updated              *models.Unavailability
	deletedID            string
	clearedUser          string
	clearCount           int
	listed               []models.Unavailability
}

func (f *fakeUnavailabilityRepo) GetByID(_ context.Context, id string) (*models.Unavailability, error) {
	record, ok := f.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *record
	return &copy, nil
}

func (f *fakeUnavailabilityRepo) CreateForDate(_ context.Context, records []*models.Unavailability, _ bool) (int, int, error) {
	if f.forDateAllDuplicates {
		return 0, len(records), nil
	}
	f.createdForDate = append(f.createdForDate, records...)
	return len(records), 0, nil
}

func (f *fakeUnavailabilityRepo) CreateMany(_ context.Context, records []*models.Unavailability) ([]models.Unavailability, int, error) {
	f.createdMany = append(f.createdMany, records...)
	created := make([]models.Unavailability, 0, len(records))
	for _, r := range records {
		created = append(created, *r)
	}
	return created, 0, nil
}

func (f *fakeUnavailabilityRepo) Update(_ context.Context, record *models.Unavailability) error {
	f.updated = record
	return nil
}

func (f *fakeUnavailabilityRepo) Delete(_ context.Context, id string) error {
	f.deletedID = id
	return nil
}

func (f *fakeUnavailabilityRepo) DeleteManualByOwner(_ context.Context, userID string) (int, error) {
	f.clearedUser = userID
	return f.clearCount, nil
}

func (f *fakeUnavailabilityRepo) ListByOwner(_ context.Context, _ string, _, _ *time.Time, _ bool) ([]models.Unavailability, error) {
	return f.listed, nil
}

func (f *fakeUnavailabilityRepo) ListByOwnerOnDate(_ context.Context, userID string, date time.Time) ([]models.Unavailability, error) {
	var out []models.Unavailability
	for _, record := range f.onDate[userID] {
		if record.Date.Equal(date) {
			out = append(out, record)
		}
	}
	return out, nil
}

func (f *fakeUnavailabilityRepo) ListByUnitRoster(_ context.Context, _ string, _, _ *time.Time) ([]models.Unavailability, error) {
	return f.listed, nil
}

type fakeUserDirectory struct {
	users  map[string]*models.User
	linked bool
}

func (f *fakeUserDirectory) FindByID(_ context.Context, id string) (*models.User, error) {
	user, ok := f.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

func (f *fakeUserDirectory) IsLinkedToUnit(_ context.Context, _, _ string) (bool, error) {
	return f.linked, nil
}

type fakeCoordinatorUnits struct {
	coordinates bool
}

func (f *fakeCoordinatorUnits) IsCoordinator(_ context.Context, _, _ string) (bool, error) {
	return f.coordinates, nil
}

type fakeInvalidator struct {
	calls int
}

func (f *fakeInvalidator) InvalidateListings(_ context.Context) {
	f.calls++
}

type unavailabilityFixture struct {
	repo        *fakeUnavailabilityRepo
	users       *fakeUserDirectory
	units       *fakeCoordinatorUnits
	assignments *stubAssignmentDays
	listings    *fakeInvalidator
	svc         *UnavailabilityService
}

func newUnavailabilityFixture() *unavailabilityFixture {
	f := &unavailabilityFixture{
		repo: &fakeUnavailabilityRepo{byID: map[string]*models.Unavailability{}, onDate: map[string][]models.Unavailability{}},
		users: &fakeUserDirectory{users: map[string]*models.User{
			"fac-1": {ID: "fac-1", FullName: "Fay Cilitator", Role: models.RoleFacilitator},
		}},
		units:       &fakeCoordinatorUnits{},
		assignments: &stubAssignmentDays{},
		listings:    &fakeInvalidator{},
	}
	f.svc = NewUnavailabilityService(f.repo, f.users, f.units, f.assignments, f.listings, nil, nil, nil)
	return f
}

func facilitatorActor(id string) models.ActingAs {
	return models.ActingAs{UserID: id, Role: models.RoleFacilitator}
}

func TestUnavailabilityCreateOwnRecord(t *testing.T) {
	f := newUnavailabilityFixture()

	result, err := f.svc.Create(context.Background(), facilitatorActor("fac-1"), dto.CreateUnavailabilityRequest{
		Date:      "2025-06-02",
		StartTime: "09:00",
		EndTime:   "11:00",
		Reason:    "medical appointment",
	})
	require.NoError(t, err)
	require.Len(t, result.Created, 1)
	assert.Equal(t, "fac-1", result.Created[0].UserID)
	assert.False(t, result.Created[0].IsFullDay)
	assert.Equal(t, 1, f.listings.calls)
}

func TestUnavailabilityCreateMultipleRanges(t *testing.T) {
	f := newUnavailabilityFixture()

	result, err := f.svc.Create(context.Background(), facilitatorActor("fac-1"), dto.CreateUnavailabilityRequest{
		Date: "2025-06-02",
		TimeRanges: []dto.TimeRangePayload{
			{StartTime: "09:00", EndTime: "10:00"},
			{StartTime: "14:00", EndTime: "16:00"},
		},
	})
	require.NoError(t, err)
	assert.Len(t, result.Created, 2)
	assert.Len(t, f.repo.createdForDate, 2)
}

func TestUnavailabilityCreateDuplicateIsConflict(t *testing.T) {
	f := newUnavailabilityFixture()
	f.repo.forDateAllDuplicates = true

	_, err := f.svc.Create(context.Background(), facilitatorActor("fac-1"), dto.CreateUnavailabilityRequest{
		Date:      "2025-06-02",
		IsFullDay: true,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestUnavailabilityCreateForOtherFacilitatorForbidden(t *testing.T) {
	f := newUnavailabilityFixture()

	_, err := f.svc.Create(context.Background(), facilitatorActor("fac-2"), dto.CreateUnavailabilityRequest{
		UserID:    "fac-1",
		Date:      "2025-06-02",
		IsFullDay: true,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestUnavailabilityCreateReportsAssignmentConflicts(t *testing.T) {
	f := newUnavailabilityFixture()
	f.assignments.byFacilitator = map[string][]models.AssignmentDetail{
		"fac-1": {{
			SessionAssignment: models.SessionAssignment{ID: "assign-1", SessionID: "sess-1"},
			UnitCode:          "COS10009",
			SessionType:       "lab",
			StartTime:         mustSlot(t, "09:30"),
			EndTime:           mustSlot(t, "11:30"),
		}},
	}

	result, err := f.svc.Create(context.Background(), facilitatorActor("fac-1"), dto.CreateUnavailabilityRequest{
		Date:      "2025-06-02",
		StartTime: "09:00",
		EndTime:   "10:00",
	})
	require.NoError(t, err)
	// The write succeeds; the overlap with the lab comes back advisory.
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, "assign-1", result.Conflicts[0].AssignmentID)
}

func TestUnavailabilityUpdateSystemGeneratedForbidden(t *testing.T) {
	f := newUnavailabilityFixture()
	sourceSession := "sess-9"
	f.repo.byID["rec-1"] = &models.Unavailability{
		ID:              "rec-1",
		UserID:          "fac-1",
		IsFullDay:       true,
		SourceSessionID: &sourceSession,
	}

	reason := "changed my mind"
	_, err := f.svc.Update(context.Background(), facilitatorActor("fac-1"), "rec-1", dto.UpdateUnavailabilityRequest{Reason: &reason})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	err = f.svc.Delete(context.Background(), facilitatorActor("fac-1"), "rec-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestUnavailabilityUpdateRejectsInvertedWindow(t *testing.T) {
	f := newUnavailabilityFixture()
	start, end := mustSlot(t, "09:00"), mustSlot(t, "10:00")
	f.repo.byID["rec-1"] = &models.Unavailability{
		ID: "rec-1", UserID: "fac-1", StartTime: &start, EndTime: &end,
	}

	late := "12:00"
	early := "08:00"
	_, err := f.svc.Update(context.Background(), facilitatorActor("fac-1"), "rec-1", dto.UpdateUnavailabilityRequest{
		StartTime: &late, EndTime: &early,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUnavailabilityUpdateFullDayDropsTimes(t *testing.T) {
	f := newUnavailabilityFixture()
	start, end := mustSlot(t, "09:00"), mustSlot(t, "10:00")
	f.repo.byID["rec-1"] = &models.Unavailability{
		ID: "rec-1", UserID: "fac-1", StartTime: &start, EndTime: &end,
	}

	fullDay := true
	updated, err := f.svc.Update(context.Background(), facilitatorActor("fac-1"), "rec-1", dto.UpdateUnavailabilityRequest{
		IsFullDay: &fullDay,
	})
	require.NoError(t, err)
	assert.True(t, updated.IsFullDay)
	assert.Nil(t, updated.StartTime)
	assert.Nil(t, updated.EndTime)
}

func TestUnavailabilityClearAllLeavesSystemRows(t *testing.T) {
	f := newUnavailabilityFixture()
	f.repo.clearCount = 3

	removed, err := f.svc.ClearAll(context.Background(), facilitatorActor("fac-1"), "")
	require.NoError(t, err)
	assert.Equal(t, 3, removed)
	assert.Equal(t, "fac-1", f.repo.clearedUser)
	assert.Equal(t, 1, f.listings.calls)
}

func TestUnavailabilityListUnitRosterRequiresCoordinator(t *testing.T) {
	f := newUnavailabilityFixture()

	_, err := f.svc.ListUnitRoster(context.Background(), facilitatorActor("fac-1"), "unit-1", dto.UnavailabilityQuery{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	f.units.coordinates = true
	_, err = f.svc.ListUnitRoster(context.Background(),
		models.ActingAs{UserID: "coord-1", Role: models.RoleUnitCoordinator}, "unit-1", dto.UnavailabilityQuery{})
	assert.NoError(t, err)
}

func TestGenerateRecurringSkipsScheduledDates(t *testing.T) {
	f := newUnavailabilityFixture()
	sourceSession := "sess-7"
	blockedStart, blockedEnd := mustSlot(t, "09:00"), mustSlot(t, "11:00")
	// Every Monday 09:00-10:00 for three weeks; the middle Monday already
	// carries a system-generated block overlapping the window.
	f.repo.onDate["fac-1"] = []models.Unavailability{{
		UserID:          "fac-1",
		Date:            time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC),
		StartTime:       &blockedStart,
		EndTime:         &blockedEnd,
		SourceSessionID: &sourceSession,
	}}

	result, err := f.svc.GenerateRecurring(context.Background(), facilitatorActor("fac-1"), dto.GenerateRecurringRequest{
		StartDate: "2025-06-02",
		EndDate:   "2025-06-16",
		Pattern:   "weekly",
		Interval:  1,
		StartTime: "09:00",
		EndTime:   "10:00",
		Reason:    "teaching elsewhere",
	})
	require.NoError(t, err)
	require.Len(t, result.SkippedDates, 1)
	assert.Equal(t, time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC), result.SkippedDates[0].Date)
	assert.Len(t, result.Created, 2)
}

func TestGenerateRecurringCreatesRecords(t *testing.T) {
	f := newUnavailabilityFixture()

	result, err := f.svc.GenerateRecurring(context.Background(), facilitatorActor("fac-1"), dto.GenerateRecurringRequest{
		StartDate: "2025-06-02",
		EndDate:   "2025-06-16",
		Pattern:   "weekly",
		Interval:  1,
		IsFullDay: true,
		Reason:    "parental leave day",
	})
	require.NoError(t, err)
	require.Len(t, result.Created, 3)
	for _, record := range result.Created {
		assert.True(t, record.IsRecurring)
		assert.True(t, record.IsFullDay)
	}
	assert.Empty(t, result.SkippedDates)
}

func TestGenerateRecurringInvalidPattern(t *testing.T) {
	f := newUnavailabilityFixture()

	_, err := f.svc.GenerateRecurring(context.Background(), facilitatorActor("fac-1"), dto.GenerateRecurringRequest{
		StartDate: "2025-06-02",
		EndDate:   "2025-06-16",
		Pattern:   "yearly",
		Interval:  1,
		IsFullDay: true,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
