package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/uniflow/facilitation-api/internal/models"
	"github.com/uniflow/facilitation-api/internal/timeslot"
	appErrors "github.com/uniflow/facilitation-api/pkg/errors"
)

type unavailabilityDayReader interface {
	ListByOwnerOnDate(ctx context.Context, userID string, date time.Time) ([]models.Unavailability, error)
}

type assignmentDayReader interface {
	ListByFacilitatorOnDate(ctx context.Context, facilitatorID string, date time.Time) ([]models.AssignmentDetail, error)
	ListBySession(ctx context.Context, sessionID string) ([]models.SessionAssignment, error)
}

type sessionReader interface {
	GetSessionDetail(ctx context.Context, sessionID string) (*models.SessionDetail, error)
	IsCoordinator(ctx context.Context, userID, unitID string) (bool, error)
}

type rosterReader interface {
	ListUnitFacilitators(ctx context.Context, unitID string) ([]models.User, error)
	IsLinkedToUnit(ctx context.Context, userID, unitID string) (bool, error)
}

type skillReader interface {
	MapLevelsByModule(ctx context.Context, moduleID string) (map[string]models.SkillLevel, error)
}

// AvailabilityResult is the outcome of a conflict check. Unavailable is a
// structured answer, never an error.
type AvailabilityResult struct {
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

// AvailabilityService is the single source of truth for "can this
// facilitator take this slot": swap creation, swap approval and the
// available-facilitators listing all route through it.
type AvailabilityService struct {
	unavailability unavailabilityDayReader
	assignments    assignmentDayReader
	sessions       sessionReader
	roster         rosterReader
	skills         skillReader
	cache          *CacheService
	cacheTTL       time.Duration
	logger         *zap.Logger
}

// NewAvailabilityService creates the service.
func NewAvailabilityService(
	unavailability unavailabilityDayReader,
	assignments assignmentDayReader,
	sessions sessionReader,
	roster rosterReader,
	skills skillReader,
	cache *CacheService,
	cacheTTL time.Duration,
	logger *zap.Logger,
) *AvailabilityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 2 * time.Minute
	}
	return &AvailabilityService{
		unavailability: unavailability,
		assignments:    assignments,
		sessions:       sessions,
		roster:         roster,
		skills:         skills,
		cache:          cache,
		cacheTTL:       cacheTTL,
		logger:         logger,
	}
}

// Check answers whether the facilitator can take the [start, end] slot on
// date. Unavailability blocks only when it fully contains the requested
// window (or is full-day); assignments block on any true overlap. When
// excludeSessionID is set, the system-generated unavailability and the
// assignment belonging to that session are ignored, so a facilitator is not
// reported busy with the very session being reconsidered.
func (s *AvailabilityService) Check(ctx context.Context, facilitatorID string, date time.Time, start, end timeslot.TimeOfDay, excludeSessionID string) (*AvailabilityResult, error) {
	if !start.Before(end) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start time must be before end time")
	}

	records, err := s.unavailability.ListByOwnerOnDate(ctx, facilitatorID, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load unavailability")
	}
	for i := range records {
		record := &records[i]
		if excludeSessionID != "" && record.SourceSessionID != nil && *record.SourceSessionID == excludeSessionID {
			continue
		}
		if !record.Blocks(start, end) {
			continue
		}
		if record.IsFullDay {
			return &AvailabilityResult{Reason: "unavailable for the whole day"}, nil
		}
		return &AvailabilityResult{
			Reason: fmt.Sprintf("unavailable between %s and %s", record.StartTime, record.EndTime),
		}, nil
	}

	assignments, err := s.assignments.ListByFacilitatorOnDate(ctx, facilitatorID, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignments")
	}
	for _, assignment := range assignments {
		if excludeSessionID != "" && assignment.SessionID == excludeSessionID {
			continue
		}
		if timeslot.Overlaps(start, end, assignment.StartTime, assignment.EndTime) {
			return &AvailabilityResult{
				Reason: fmt.Sprintf("already assigned to %s %s (%s-%s)",
					assignment.UnitCode, assignment.SessionType, assignment.StartTime, assignment.EndTime),
			}, nil
		}
	}

	return &AvailabilityResult{Available: true}, nil
}

// AvailableFacilitators lists the unit roster annotated with availability for
// the session's slot, excluding facilitators who declared no interest in the
// module and anyone already assigned to the session. Results are cached
// briefly; unavailability and swap writes invalidate them.
func (s *AvailabilityService) AvailableFacilitators(ctx context.Context, sessionID string, actor models.ActingAs) ([]models.AvailableFacilitator, error) {
	session, err := s.sessions.GetSessionDetail(ctx, sessionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}

	if err := s.ensureUnitVisibility(ctx, actor, session.UnitID); err != nil {
		return nil, err
	}

	cacheKey := fmt.Sprintf("availability:session:%s", sessionID)
	var cached []models.AvailableFacilitator
	if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
		return cached, nil
	}

	roster, err := s.roster.ListUnitFacilitators(ctx, session.UnitID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load unit roster")
	}
	levels, err := s.skills.MapLevelsByModule(ctx, session.ModuleID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load skill levels")
	}
	assigned, err := s.assignments.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session assignments")
	}
	assignedSet := make(map[string]struct{}, len(assigned))
	for _, a := range assigned {
		assignedSet[a.FacilitatorID] = struct{}{}
	}

	var result []models.AvailableFacilitator
	for _, user := range roster {
		if _, taken := assignedSet[user.ID]; taken {
			continue
		}
		level, declared := levels[user.ID]
		if !declared {
			level = models.SkillInterested
		}
		if level == models.SkillNoInterest {
			continue
		}
		check, err := s.Check(ctx, user.ID, session.Date, session.StartTime, session.EndTime, sessionID)
		if err != nil {
			return nil, err
		}
		result = append(result, models.AvailableFacilitator{
			UserID:      user.ID,
			FullName:    user.FullName,
			Email:       user.Email,
			SkillLevel:  level,
			IsAvailable: check.Available,
			Reason:      check.Reason,
		})
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].IsAvailable != result[j].IsAvailable {
			return result[i].IsAvailable
		}
		return result[i].FullName < result[j].FullName
	})

	if err := s.cache.Set(ctx, cacheKey, result, s.cacheTTL); err != nil {
		s.logger.Warn("failed to cache available facilitators", zap.String("session_id", sessionID), zap.Error(err))
	}
	return result, nil
}

// InvalidateListings busts cached availability listings after a write that
// could change them.
func (s *AvailabilityService) InvalidateListings(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, "availability:session:*"); err != nil {
		s.logger.Warn("failed to invalidate availability cache", zap.Error(err))
	}
}

func (s *AvailabilityService) ensureUnitVisibility(ctx context.Context, actor models.ActingAs, unitID string) error {
	if actor.Role == models.RoleAdmin {
		return nil
	}
	if actor.Role == models.RoleUnitCoordinator {
		coordinates, err := s.sessions.IsCoordinator(ctx, actor.UserID, unitID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check coordinator")
		}
		if coordinates {
			return nil
		}
	}
	linked, err := s.roster.IsLinkedToUnit(ctx, actor.UserID, unitID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check unit link")
	}
	if !linked {
		return appErrors.Clone(appErrors.ErrForbidden, "not a member of this unit")
	}
	return nil
}
