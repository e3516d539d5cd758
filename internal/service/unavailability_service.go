package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/uniflow/facilitation-api/internal/dto"
	"github.com/uniflow/facilitation-api/internal/models"
	"github.com/uniflow/facilitation-api/internal/recurrence"
	"github.com/uniflow/facilitation-api/internal/timeslot"
	appErrors "github.com/uniflow/facilitation-api/pkg/errors"
)

const dateLayout = "2006-01-02"

type unavailabilityRepo interface {
	GetByID(ctx context.Context, id string) (*models.Unavailability, error)
	CreateForDate(ctx context.Context, records []*models.Unavailability, replaceExisting bool) (created, duplicates int, err error)
	CreateMany(ctx context.Context, records []*models.Unavailability) (created []models.Unavailability, duplicates int, err error)
	Update(ctx context.Context, record *models.Unavailability) error
	Delete(ctx context.Context, id string) error
	DeleteManualByOwner(ctx context.Context, userID string) (int, error)
	ListByOwner(ctx context.Context, userID string, from, to *time.Time, includeSystem bool) ([]models.Unavailability, error)
	ListByOwnerOnDate(ctx context.Context, userID string, date time.Time) ([]models.Unavailability, error)
	ListByUnitRoster(ctx context.Context, unitID string, from, to *time.Time) ([]models.Unavailability, error)
}

type userReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	IsLinkedToUnit(ctx context.Context, userID, unitID string) (bool, error)
}

type coordinatorChecker interface {
	IsCoordinator(ctx context.Context, userID, unitID string) (bool, error)
}

type assignmentConflictReader interface {
	ListByFacilitatorOnDate(ctx context.Context, facilitatorID string, date time.Time) ([]models.AssignmentDetail, error)
}

type availabilityInvalidator interface {
	InvalidateListings(ctx context.Context)
}

// UnavailabilityCreateResult reports what a create call actually did, with
// advisory assignment conflicts attached.
type UnavailabilityCreateResult struct {
	Created    []models.Unavailability     `json:"created"`
	Duplicates int                         `json:"duplicates_skipped"`
	Conflicts  []models.AssignmentConflict `json:"assignment_conflicts,omitempty"`
}

// UnavailabilityService manages facilitator unavailability records.
type UnavailabilityService struct {
	repo        unavailabilityRepo
	users       userReader
	units       coordinatorChecker
	assignments assignmentConflictReader
	listings    availabilityInvalidator
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewUnavailabilityService creates the service.
func NewUnavailabilityService(
	repo unavailabilityRepo,
	users userReader,
	units coordinatorChecker,
	assignments assignmentConflictReader,
	listings availabilityInvalidator,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
) *UnavailabilityService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UnavailabilityService{
		repo:        repo,
		users:       users,
		units:       units,
		assignments: assignments,
		listings:    listings,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
	}
}

// CanEditFacilitatorData decides whether the actor may manage the target's
// records for the given scope: owners always can; coordinators and admins can
// for global records; unit-scoped records additionally require the actor to
// coordinate that unit and the target to be on its roster.
func (s *UnavailabilityService) CanEditFacilitatorData(ctx context.Context, actor models.ActingAs, targetUserID string, scope models.UnavailabilityScope) (bool, error) {
	if actor.UserID == targetUserID {
		return true, nil
	}
	if !actor.IsCoordinator() {
		return false, nil
	}
	if scope.Global() {
		return true, nil
	}
	if actor.Role != models.RoleAdmin {
		coordinates, err := s.units.IsCoordinator(ctx, actor.UserID, *scope.UnitID)
		if err != nil {
			return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check coordinator")
		}
		if !coordinates {
			return false, nil
		}
	}
	linked, err := s.users.IsLinkedToUnit(ctx, targetUserID, *scope.UnitID)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check unit link")
	}
	return linked, nil
}

// Create records one or more blocks on a single date. A duplicate of an
// existing record is a conflict when it is the only thing requested;
// otherwise duplicates are skipped and counted. Overlaps with existing
// assignments never block the write, they come back as advisory conflicts.
func (s *UnavailabilityService) Create(ctx context.Context, actor models.ActingAs, req dto.CreateUnavailabilityRequest) (*UnavailabilityCreateResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid unavailability payload")
	}
	targetID := req.UserID
	if targetID == "" {
		targetID = actor.UserID
	}
	if err := s.ensureEditable(ctx, actor, targetID, models.UnavailabilityScope{}); err != nil {
		return nil, err
	}
	if _, err := s.users.FindByID(ctx, targetID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "facilitator not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load facilitator")
	}

	date, err := parseDate(req.Date)
	if err != nil {
		return nil, err
	}
	records, err := buildRecordsForDate(targetID, date, req)
	if err != nil {
		return nil, err
	}

	created, duplicates, err := s.repo.CreateForDate(ctx, records, req.ReplaceExisting)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create unavailability")
	}
	if created == 0 && duplicates > 0 {
		return nil, appErrors.Clone(appErrors.ErrConflict, "unavailability already recorded for this time")
	}

	result := &UnavailabilityCreateResult{Duplicates: duplicates}
	for _, record := range records {
		result.Created = append(result.Created, *record)
	}
	conflicts, err := s.advisoryConflicts(ctx, targetID, date, records)
	if err != nil {
		s.logger.Warn("failed to compute assignment conflicts", zap.String("user_id", targetID), zap.Error(err))
	} else {
		result.Conflicts = conflicts
	}

	s.metrics.RecordUnavailabilityCreated(created)
	s.listings.InvalidateListings(ctx)
	return result, nil
}

// Update modifies a manual record in place. System-generated records are
// immutable to every caller, coordinators included.
func (s *UnavailabilityService) Update(ctx context.Context, actor models.ActingAs, id string, req dto.UpdateUnavailabilityRequest) (*models.Unavailability, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid unavailability payload")
	}
	record, err := s.loadEditable(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	if req.Date != nil {
		date, err := parseDate(*req.Date)
		if err != nil {
			return nil, err
		}
		record.Date = date
	}
	if req.IsFullDay != nil {
		record.IsFullDay = *req.IsFullDay
	}
	if req.StartTime != nil {
		start, err := parseTimeField("start_time", *req.StartTime)
		if err != nil {
			return nil, err
		}
		record.StartTime = &start
	}
	if req.EndTime != nil {
		end, err := parseTimeField("end_time", *req.EndTime)
		if err != nil {
			return nil, err
		}
		record.EndTime = &end
	}
	if req.Reason != nil {
		record.Reason = *req.Reason
	}
	if record.IsFullDay {
		record.StartTime, record.EndTime = nil, nil
	} else {
		if record.StartTime == nil || record.EndTime == nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "start and end times are required unless the block is full-day")
		}
		if !record.StartTime.Before(*record.EndTime) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "start time must be before end time")
		}
	}

	if err := s.repo.Update(ctx, record); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "unavailability record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update unavailability")
	}
	s.listings.InvalidateListings(ctx)
	return record, nil
}

// Delete removes a manual record.
func (s *UnavailabilityService) Delete(ctx context.Context, actor models.ActingAs, id string) error {
	if _, err := s.loadEditable(ctx, actor, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "unavailability record not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete unavailability")
	}
	s.listings.InvalidateListings(ctx)
	return nil
}

// ClearAll removes every manual record the target owns. System-generated
// rows survive; only unpublishing a schedule removes those.
func (s *UnavailabilityService) ClearAll(ctx context.Context, actor models.ActingAs, targetUserID string) (int, error) {
	if targetUserID == "" {
		targetUserID = actor.UserID
	}
	if err := s.ensureEditable(ctx, actor, targetUserID, models.UnavailabilityScope{}); err != nil {
		return 0, err
	}
	removed, err := s.repo.DeleteManualByOwner(ctx, targetUserID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear unavailability")
	}
	s.listings.InvalidateListings(ctx)
	return removed, nil
}

// List returns the target's records filtered by the query.
func (s *UnavailabilityService) List(ctx context.Context, actor models.ActingAs, targetUserID string, query dto.UnavailabilityQuery) ([]models.Unavailability, error) {
	if targetUserID == "" {
		targetUserID = actor.UserID
	}
	if err := s.ensureEditable(ctx, actor, targetUserID, models.UnavailabilityScope{}); err != nil {
		return nil, err
	}
	records, err := s.repo.ListByOwner(ctx, targetUserID, query.From, query.To, query.IncludeSystem)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list unavailability")
	}
	return records, nil
}

// ListUnitRoster returns records across a unit's roster for coordinators.
func (s *UnavailabilityService) ListUnitRoster(ctx context.Context, actor models.ActingAs, unitID string, query dto.UnavailabilityQuery) ([]models.Unavailability, error) {
	if actor.Role != models.RoleAdmin {
		coordinates, err := s.units.IsCoordinator(ctx, actor.UserID, unitID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check coordinator")
		}
		if !coordinates {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "only the unit coordinator may view roster unavailability")
		}
	}
	records, err := s.repo.ListByUnitRoster(ctx, unitID, query.From, query.To)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list unit unavailability")
	}
	return records, nil
}

// GenerateRecurring expands a recurring rule into concrete records. Dates
// already covered by an identical record are skipped silently and counted;
// dates colliding with a scheduled (system-generated) block are skipped and
// reported so the caller can show which occurrences were dropped.
func (s *UnavailabilityService) GenerateRecurring(ctx context.Context, actor models.ActingAs, req dto.GenerateRecurringRequest) (*models.RecurringGenerationResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid recurring payload")
	}
	targetID := req.UserID
	if targetID == "" {
		targetID = actor.UserID
	}
	if err := s.ensureEditable(ctx, actor, targetID, models.UnavailabilityScope{}); err != nil {
		return nil, err
	}

	startDate, err := parseDate(req.StartDate)
	if err != nil {
		return nil, err
	}
	endDate, err := parseDate(req.EndDate)
	if err != nil {
		return nil, err
	}
	interval := req.Interval
	if interval == 0 {
		interval = 1
	}
	pattern := recurrence.Pattern(req.Pattern)
	dates, err := recurrence.Expand(startDate, pattern, interval, endDate)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	var start, end *timeslot.TimeOfDay
	if !req.IsFullDay {
		parsedStart, err := parseTimeField("start_time", req.StartTime)
		if err != nil {
			return nil, err
		}
		parsedEnd, err := parseTimeField("end_time", req.EndTime)
		if err != nil {
			return nil, err
		}
		if !parsedStart.Before(parsedEnd) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "start time must be before end time")
		}
		start, end = &parsedStart, &parsedEnd
	}

	result := &models.RecurringGenerationResult{}
	var records []*models.Unavailability
	for _, date := range dates {
		blocked, err := s.scheduledConflict(ctx, targetID, date, req.IsFullDay, start, end)
		if err != nil {
			return nil, err
		}
		if blocked {
			result.SkippedDates = append(result.SkippedDates, models.RecurringSkip{
				Date:   date,
				Reason: "conflicts with a scheduled session",
			})
			continue
		}
		records = append(records, &models.Unavailability{
			UserID:            targetID,
			Date:              date,
			IsFullDay:         req.IsFullDay,
			StartTime:         start,
			EndTime:           end,
			Reason:            req.Reason,
			IsRecurring:       true,
			RecurringPattern:  &pattern,
			RecurringInterval: &interval,
			RecurringEndDate:  &endDate,
		})
	}

	created, duplicates, err := s.repo.CreateMany(ctx, records)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create recurring unavailability")
	}
	result.Created = created
	result.Duplicates = duplicates

	s.metrics.RecordUnavailabilityCreated(len(created))
	s.listings.InvalidateListings(ctx)
	return result, nil
}

func (s *UnavailabilityService) scheduledConflict(ctx context.Context, userID string, date time.Time, fullDay bool, start, end *timeslot.TimeOfDay) (bool, error) {
	existing, err := s.repo.ListByOwnerOnDate(ctx, userID, date)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load unavailability")
	}
	for _, record := range existing {
		if !record.SystemGenerated() {
			continue
		}
		if fullDay || record.IsFullDay {
			return true, nil
		}
		if record.StartTime != nil && record.EndTime != nil &&
			timeslot.Overlaps(*start, *end, *record.StartTime, *record.EndTime) {
			return true, nil
		}
	}
	return false, nil
}

func (s *UnavailabilityService) advisoryConflicts(ctx context.Context, userID string, date time.Time, records []*models.Unavailability) ([]models.AssignmentConflict, error) {
	assignments, err := s.assignments.ListByFacilitatorOnDate(ctx, userID, date)
	if err != nil {
		return nil, err
	}
	var conflicts []models.AssignmentConflict
	for _, assignment := range assignments {
		for _, record := range records {
			overlaps := record.IsFullDay ||
				(record.StartTime != nil && record.EndTime != nil &&
					timeslot.Overlaps(*record.StartTime, *record.EndTime, assignment.StartTime, assignment.EndTime))
			if !overlaps {
				continue
			}
			conflicts = append(conflicts, models.AssignmentConflict{
				AssignmentID: assignment.ID,
				SessionID:    assignment.SessionID,
				UnitCode:     assignment.UnitCode,
				SessionType:  assignment.SessionType,
				Date:         assignment.Date,
				StartTime:    assignment.StartTime,
				EndTime:      assignment.EndTime,
			})
			break
		}
	}
	return conflicts, nil
}

func (s *UnavailabilityService) ensureEditable(ctx context.Context, actor models.ActingAs, targetUserID string, scope models.UnavailabilityScope) error {
	allowed, err := s.CanEditFacilitatorData(ctx, actor, targetUserID, scope)
	if err != nil {
		return err
	}
	if !allowed {
		return appErrors.Clone(appErrors.ErrForbidden, "cannot manage this facilitator's unavailability")
	}
	return nil
}

func (s *UnavailabilityService) loadEditable(ctx context.Context, actor models.ActingAs, id string) (*models.Unavailability, error) {
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "unavailability record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load unavailability")
	}
	if record.SystemGenerated() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "system-generated unavailability cannot be modified")
	}
	if err := s.ensureEditable(ctx, actor, record.UserID, record.Scope()); err != nil {
		return nil, err
	}
	return record, nil
}

func buildRecordsForDate(userID string, date time.Time, req dto.CreateUnavailabilityRequest) ([]*models.Unavailability, error) {
	if req.IsFullDay {
		return []*models.Unavailability{{
			UserID:    userID,
			Date:      date,
			IsFullDay: true,
			Reason:    req.Reason,
		}}, nil
	}

	ranges := req.TimeRanges
	if len(ranges) == 0 {
		ranges = []dto.TimeRangePayload{{StartTime: req.StartTime, EndTime: req.EndTime}}
	}
	records := make([]*models.Unavailability, 0, len(ranges))
	for _, tr := range ranges {
		start, err := parseTimeField("start_time", tr.StartTime)
		if err != nil {
			return nil, err
		}
		end, err := parseTimeField("end_time", tr.EndTime)
		if err != nil {
			return nil, err
		}
		if !start.Before(end) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "start time must be before end time")
		}
		startCopy, endCopy := start, end
		records = append(records, &models.Unavailability{
			UserID:    userID,
			Date:      date,
			StartTime: &startCopy,
			EndTime:   &endCopy,
			Reason:    req.Reason,
		})
	}
	return records, nil
}

func parseDate(value string) (time.Time, error) {
	parsed, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", value))
	}
	return parsed.UTC(), nil
}

func parseTimeField(field, value string) (timeslot.TimeOfDay, error) {
	parsed, err := timeslot.Parse(value)
	if err != nil {
		return timeslot.TimeOfDay{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid %s: %v", field, err))
	}
	return parsed, nil
}
