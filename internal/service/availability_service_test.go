package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uniflow/facilitation-api/internal/models"
	"github.com/uniflow/facilitation-api/internal/timeslot"
)

type stubUnavailabilityDays struct {
	byOwner map[string][]models.Unavailability
}

func (s *stubUnavailabilityDays) ListByOwnerOnDate(_ context.Context, userID string, _ time.Time) ([]models.Unavailability, error) {
	return s.byOwner[userID], nil
}

type stubAssignmentDays struct {
	byFacilitator map[string][]models.AssignmentDetail
	bySession     []models.SessionAssignment
}

func (s *stubAssignmentDays) ListByFacilitatorOnDate(_ context.Context, facilitatorID string, _ time.Time) ([]models.AssignmentDetail, error) {
	return s.byFacilitator[facilitatorID], nil
}

func (s *stubAssignmentDays) ListBySession(_ context.Context, _ string) ([]models.SessionAssignment, error) {
	return s.bySession, nil
}

type stubSessions struct {
	session     *models.SessionDetail
	coordinates bool
}

func (s *stubSessions) GetSessionDetail(_ context.Context, _ string) (*models.SessionDetail, error) {
	return s.session, nil
}

func (s *stubSessions) IsCoordinator(_ context.Context, _, _ string) (bool, error) {
	return s.coordinates, nil
}

type stubRoster struct {
	users  []models.User
	linked bool
}

func (s *stubRoster) ListUnitFacilitators(_ context.Context, _ string) ([]models.User, error) {
	return s.users, nil
}

func (s *stubRoster) IsLinkedToUnit(_ context.Context, _, _ string) (bool, error) {
	return s.linked, nil
}

type stubSkills struct {
	levels map[string]models.SkillLevel
}

func (s *stubSkills) MapLevelsByModule(_ context.Context, _ string) (map[string]models.SkillLevel, error) {
	return s.levels, nil
}

func timedBlock(userID, start, end string) models.Unavailability {
	s := timeslot.MustParse(start)
	e := timeslot.MustParse(end)
	return models.Unavailability{UserID: userID, StartTime: &s, EndTime: &e}
}

func newAvailabilityFixture(unavail *stubUnavailabilityDays, assignments *stubAssignmentDays) *AvailabilityService {
	if unavail == nil {
		unavail = &stubUnavailabilityDays{}
	}
	if assignments == nil {
		assignments = &stubAssignmentDays{}
	}
	return NewAvailabilityService(unavail, assignments, &stubSessions{}, &stubRoster{}, &stubSkills{}, nil, time.Minute, nil)
}

func TestCheckFullDayBlocks(t *testing.T) {
	svc := newAvailabilityFixture(&stubUnavailabilityDays{byOwner: map[string][]models.Unavailability{
		"fac-1": {{UserID: "fac-1", IsFullDay: true}},
	}}, nil)

	result, err := svc.Check(context.Background(), "fac-1", time.Now(), timeslot.MustParse("09:00"), timeslot.MustParse("10:00"), "")
	require.NoError(t, err)
	assert.False(t, result.Available)
	assert.Equal(t, "unavailable for the whole day", result.Reason)
}

func TestCheckTimedBlockRequiresContainment(t *testing.T) {
	// 09:30-10:30 only partially covers a 09:00-10:00 request, so the
	// facilitator still counts as free of unavailability.
	svc := newAvailabilityFixture(&stubUnavailabilityDays{byOwner: map[string][]models.Unavailability{
		"fac-1": {timedBlock("fac-1", "09:30", "10:30")},
	}}, nil)

	result, err := svc.Check(context.Background(), "fac-1", time.Now(), timeslot.MustParse("09:00"), timeslot.MustParse("10:00"), "")
	require.NoError(t, err)
	assert.True(t, result.Available)

	result, err = svc.Check(context.Background(), "fac-1", time.Now(), timeslot.MustParse("09:30"), timeslot.MustParse("10:00"), "")
	require.NoError(t, err)
	assert.False(t, result.Available)
	assert.Contains(t, result.Reason, "unavailable between")
}

func TestCheckAssignmentOverlapBlocks(t *testing.T) {
	svc := newAvailabilityFixture(nil, &stubAssignmentDays{byFacilitator: map[string][]models.AssignmentDetail{
		"fac-1": {{
			SessionAssignment: models.SessionAssignment{SessionID: "sess-2"},
			UnitCode:          "COS30045",
			SessionType:       "workshop",
			StartTime:         timeslot.MustParse("09:30"),
			EndTime:           timeslot.MustParse("11:30"),
		}},
	}})

	// Any true overlap with an assignment blocks, containment not required.
	result, err := svc.Check(context.Background(), "fac-1", time.Now(), timeslot.MustParse("09:00"), timeslot.MustParse("10:00"), "")
	require.NoError(t, err)
	assert.False(t, result.Available)
	assert.Contains(t, result.Reason, "COS30045")

	// Touching edges do not count as overlap.
	result, err = svc.Check(context.Background(), "fac-1", time.Now(), timeslot.MustParse("08:00"), timeslot.MustParse("09:30"), "")
	require.NoError(t, err)
	assert.True(t, result.Available)
}

func TestCheckExcludesSession(t *testing.T) {
	sessionID := "sess-1"
	svc := newAvailabilityFixture(
		&stubUnavailabilityDays{byOwner: map[string][]models.Unavailability{
			"fac-1": {{
				UserID:          "fac-1",
				IsFullDay:       true,
				SourceSessionID: &sessionID,
			}},
		}},
		&stubAssignmentDays{byFacilitator: map[string][]models.AssignmentDetail{
			"fac-1": {{
				SessionAssignment: models.SessionAssignment{SessionID: sessionID},
				StartTime:         timeslot.MustParse("09:00"),
				EndTime:           timeslot.MustParse("10:00"),
			}},
		}},
	)

	// Both the system-generated block and the assignment belong to the
	// session under reconsideration, so neither blocks.
	result, err := svc.Check(context.Background(), "fac-1", time.Now(), timeslot.MustParse("09:00"), timeslot.MustParse("10:00"), sessionID)
	require.NoError(t, err)
	assert.True(t, result.Available)

	// Without the exclusion they do.
	result, err = svc.Check(context.Background(), "fac-1", time.Now(), timeslot.MustParse("09:00"), timeslot.MustParse("10:00"), "")
	require.NoError(t, err)
	assert.False(t, result.Available)
}

func TestCheckRejectsInvalidWindow(t *testing.T) {
	svc := newAvailabilityFixture(nil, nil)
	_, err := svc.Check(context.Background(), "fac-1", time.Now(), timeslot.MustParse("10:00"), timeslot.MustParse("09:00"), "")
	assert.Error(t, err)
}

func TestAvailableFacilitators(t *testing.T) {
	session := &models.SessionDetail{
		Session: models.Session{
			ID:        "sess-1",
			UnitID:    "unit-1",
			ModuleID:  "mod-1",
			Date:      time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
			StartTime: timeslot.MustParse("09:00"),
			EndTime:   timeslot.MustParse("10:00"),
		},
	}
	roster := &stubRoster{users: []models.User{
		{ID: "fac-assigned", FullName: "Aaron Assigned"},
		{ID: "fac-busy", FullName: "Bree Busy"},
		{ID: "fac-free", FullName: "Cara Free"},
		{ID: "fac-none", FullName: "Dan NoInterest"},
		{ID: "fac-undeclared", FullName: "Abby Undeclared"},
	}}
	skills := &stubSkills{levels: map[string]models.SkillLevel{
		"fac-busy": models.SkillProficient,
		"fac-free": models.SkillLeader,
		"fac-none": models.SkillNoInterest,
	}}
	unavail := &stubUnavailabilityDays{byOwner: map[string][]models.Unavailability{
		"fac-busy": {{UserID: "fac-busy", IsFullDay: true}},
	}}
	assignments := &stubAssignmentDays{
		bySession: []models.SessionAssignment{{SessionID: "sess-1", FacilitatorID: "fac-assigned"}},
	}

	svc := NewAvailabilityService(unavail, assignments, &stubSessions{session: session}, roster, skills, nil, time.Minute, nil)
	actor := models.ActingAs{UserID: "admin-1", Role: models.RoleAdmin}

	result, err := svc.AvailableFacilitators(context.Background(), "sess-1", actor)
	require.NoError(t, err)
	require.Len(t, result, 3)

	// Available names sort first, then alphabetical; the assigned and
	// no-interest facilitators are absent entirely.
	assert.Equal(t, "fac-undeclared", result[0].UserID)
	assert.Equal(t, models.SkillInterested, result[0].SkillLevel)
	assert.Equal(t, "fac-free", result[1].UserID)
	assert.True(t, result[1].IsAvailable)
	assert.Equal(t, "fac-busy", result[2].UserID)
	assert.False(t, result[2].IsAvailable)
	assert.Equal(t, "unavailable for the whole day", result[2].Reason)
}

func TestAvailableFacilitatorsVisibility(t *testing.T) {
	session := &models.SessionDetail{Session: models.Session{
		ID: "sess-1", UnitID: "unit-1",
		StartTime: timeslot.MustParse("09:00"),
		EndTime:   timeslot.MustParse("10:00"),
	}}
	svc := NewAvailabilityService(
		&stubUnavailabilityDays{}, &stubAssignmentDays{},
		&stubSessions{session: session}, &stubRoster{linked: false}, &stubSkills{},
		nil, time.Minute, nil,
	)

	_, err := svc.AvailableFacilitators(context.Background(), "sess-1",
		models.ActingAs{UserID: "outsider", Role: models.RoleFacilitator})
	assert.Error(t, err)
}
