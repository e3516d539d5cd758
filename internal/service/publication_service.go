package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/uniflow/facilitation-api/internal/dto"
	"github.com/uniflow/facilitation-api/internal/models"
	appErrors "github.com/uniflow/facilitation-api/pkg/errors"
	"github.com/uniflow/facilitation-api/pkg/export"
	"github.com/uniflow/facilitation-api/pkg/storage"
)

type scheduleRepo interface {
	PublishUnit(ctx context.Context, unitID, actorID string, records []*models.Unavailability, snapshot []byte) (int, error)
	UnpublishUnit(ctx context.Context, unitID, actorID, rejectionNote string) (int, []models.SwapRequest, error)
}

type unitScheduleReader interface {
	FindByID(ctx context.Context, id string) (*models.Unit, error)
	IsCoordinator(ctx context.Context, userID, unitID string) (bool, error)
	ListSessions(ctx context.Context, unitID string) ([]models.SessionDetail, error)
}

type unitAssignmentReader interface {
	ListByUnit(ctx context.Context, unitID string) ([]models.AssignmentDetail, error)
	ReplaceForUnit(ctx context.Context, unitID string, proposals []models.AssignmentProposal) error
}

const unpublishRejectionNote = "Schedule unpublished by coordinator"

// PublicationService synchronizes schedule publication with facilitator
// unavailability: publishing materialises system-generated blocks for every
// assigned session, unpublishing reverts exactly those and force-rejects
// in-flight swaps.
type PublicationService struct {
	schedule       scheduleRepo
	units          unitScheduleReader
	assignments    unitAssignmentReader
	unavailability unavailabilityDayReader
	users          userReader
	listings       availabilityInvalidator
	notifier       *NotificationService
	metrics        *MetricsService
	pdf            *export.PDFExporter
	files          *storage.LocalStorage
	signer         *storage.SignedURLSigner
	validator      *validator.Validate
	logger         *zap.Logger
}

// NewPublicationService creates the service. The pdf/files/signer trio is
// optional; without it publish skips report generation.
func NewPublicationService(
	schedule scheduleRepo,
	units unitScheduleReader,
	assignments unitAssignmentReader,
	unavailability unavailabilityDayReader,
	users userReader,
	listings availabilityInvalidator,
	notifier *NotificationService,
	metrics *MetricsService,
	pdf *export.PDFExporter,
	files *storage.LocalStorage,
	signer *storage.SignedURLSigner,
	validate *validator.Validate,
	logger *zap.Logger,
) *PublicationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublicationService{
		schedule:       schedule,
		units:          units,
		assignments:    assignments,
		unavailability: unavailability,
		users:          users,
		listings:       listings,
		notifier:       notifier,
		metrics:        metrics,
		pdf:            pdf,
		files:          files,
		signer:         signer,
		validator:      validate,
		logger:         logger,
	}
}

// ReplaceAssignments installs an optimizer-produced roster for a draft unit.
// The optimizer itself lives elsewhere; this only consumes its proposal
// tuples.
func (s *PublicationService) ReplaceAssignments(ctx context.Context, actor models.ActingAs, unitID string, req dto.ReplaceAssignmentsRequest) (int, error) {
	if err := s.validator.Struct(req); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignments payload")
	}
	unit, err := s.loadUnit(ctx, unitID)
	if err != nil {
		return 0, err
	}
	if err := s.ensureCoordinator(ctx, actor, unitID); err != nil {
		return 0, err
	}
	if unit.ScheduleStatus == models.SchedulePublished {
		return 0, appErrors.Clone(appErrors.ErrConflict, "unpublish the schedule before replacing assignments")
	}

	proposals := make([]models.AssignmentProposal, 0, len(req.Assignments))
	for _, p := range req.Assignments {
		proposals = append(proposals, models.AssignmentProposal{
			SessionID:     p.SessionID,
			FacilitatorID: p.FacilitatorID,
			Role:          models.AssignmentRole(p.Role),
			Score:         p.Score,
		})
	}
	if err := s.assignments.ReplaceForUnit(ctx, unitID, proposals); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to replace assignments")
	}
	s.listings.InvalidateListings(ctx)
	return len(proposals), nil
}

// ListSchedule returns the unit's sessions for anyone on the roster.
func (s *PublicationService) ListSchedule(ctx context.Context, actor models.ActingAs, unitID string) ([]models.SessionDetail, error) {
	if _, err := s.loadUnit(ctx, unitID); err != nil {
		return nil, err
	}
	sessions, err := s.units.ListSessions(ctx, unitID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	return sessions, nil
}

// Publish flips the unit's schedule to PUBLISHED: every assigned session
// gets a system-generated unavailability for its facilitator (existing ones
// are kept, so re-publishing is idempotent), the facilitator -> sessions
// snapshot is stored, facilitators are notified and an optional PDF roster
// report is rendered. Manual unavailability declared since the last
// unpublish that collides with a still-assigned session is reported as an
// advisory conflict, never a failure.
func (s *PublicationService) Publish(ctx context.Context, actor models.ActingAs, unitID string, req dto.PublishScheduleRequest) (*models.PublishResult, error) {
	unit, err := s.loadUnit(ctx, unitID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureCoordinator(ctx, actor, unitID); err != nil {
		return nil, err
	}

	assignments, err := s.assignments.ListByUnit(ctx, unitID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}
	if len(assignments) == 0 {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "unit has no assignments to publish")
	}

	records := make([]*models.Unavailability, 0, len(assignments))
	snapshot := make(map[string][]string)
	for i := range assignments {
		assignment := &assignments[i]
		records = append(records, scheduledUnavailability(assignment.FacilitatorID, assignment))
		snapshot[assignment.FacilitatorID] = append(snapshot[assignment.FacilitatorID], assignment.SessionID)
	}
	snapshotJSON, err := json.Marshal(snapshot)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode snapshot")
	}

	conflicts, err := s.republishConflicts(ctx, unit, assignments)
	if err != nil {
		s.logger.Warn("failed to compute republish conflicts", zap.String("unit_id", unitID), zap.Error(err))
	}

	created, err := s.schedule.PublishUnit(ctx, unitID, actor.UserID, records, snapshotJSON)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to publish schedule")
	}

	notified := s.notifyPublished(unit, snapshot, req.NotifyFacilitatorIDs)

	result := &models.PublishResult{
		UnitID:              unitID,
		SessionsPublished:   len(assignments),
		UnavailabilityAdded: created,
		Conflicts:           conflicts,
		NotifiedCount:       notified,
		PublishedAt:         time.Now().UTC(),
	}
	if req.GenerateReport {
		if url, err := s.renderReport(ctx, unit, assignments); err != nil {
			s.logger.Warn("failed to render schedule report", zap.String("unit_id", unitID), zap.Error(err))
		} else {
			result.ReportURL = url
		}
	}

	s.metrics.RecordSchedulePublished()
	s.metrics.RecordUnavailabilityCreated(created)
	s.listings.InvalidateListings(ctx)
	return result, nil
}

// Unpublish reverts the unit to DRAFT: system-generated unavailability
// sourced from its sessions is removed, open swaps against the unit are
// force-rejected and everyone affected is notified. Unpublishing a draft
// unit is a no-op.
func (s *PublicationService) Unpublish(ctx context.Context, actor models.ActingAs, unitID string) (*models.UnpublishResult, error) {
	unit, err := s.loadUnit(ctx, unitID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureCoordinator(ctx, actor, unitID); err != nil {
		return nil, err
	}
	if unit.ScheduleStatus == models.ScheduleDraft {
		return &models.UnpublishResult{UnitID: unitID, UnpublishedAt: time.Now().UTC()}, nil
	}

	removed, rejected, err := s.schedule.UnpublishUnit(ctx, unitID, actor.UserID, unpublishRejectionNote)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to unpublish schedule")
	}

	notified := s.notifyUnpublished(ctx, unit, rejected)

	s.metrics.RecordScheduleUnpublished()
	s.listings.InvalidateListings(ctx)
	return &models.UnpublishResult{
		UnitID:                unitID,
		UnavailabilityRemoved: removed,
		SwapsRejected:         len(rejected),
		NotifiedCount:         notified,
		UnpublishedAt:         time.Now().UTC(),
	}, nil
}

// OpenReport validates a signed report token and returns the stored path.
func (s *PublicationService) OpenReport(token string) (string, error) {
	if s.signer == nil || s.files == nil {
		return "", appErrors.Clone(appErrors.ErrNotFound, "report downloads are disabled")
	}
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "invalid report token")
	}
	return s.files.Path(relPath), nil
}

func (s *PublicationService) republishConflicts(ctx context.Context, unit *models.Unit, assignments []models.AssignmentDetail) ([]models.PublishConflict, error) {
	if unit.UnpublishedAt == nil {
		return nil, nil
	}
	names := make(map[string]string)
	var conflicts []models.PublishConflict
	for i := range assignments {
		assignment := &assignments[i]
		records, err := s.unavailability.ListByOwnerOnDate(ctx, assignment.FacilitatorID, assignment.Date)
		if err != nil {
			return nil, err
		}
		for _, record := range records {
			if record.SystemGenerated() || record.CreatedAt.Before(*unit.UnpublishedAt) {
				continue
			}
			if !record.Blocks(assignment.StartTime, assignment.EndTime) {
				continue
			}
			name, ok := names[assignment.FacilitatorID]
			if !ok {
				if user, err := s.users.FindByID(ctx, assignment.FacilitatorID); err == nil {
					name = user.FullName
				}
				names[assignment.FacilitatorID] = name
			}
			conflicts = append(conflicts, models.PublishConflict{
				FacilitatorID:   assignment.FacilitatorID,
				FacilitatorName: name,
				SessionID:       assignment.SessionID,
				Date:            assignment.Date,
				StartTime:       assignment.StartTime,
				EndTime:         assignment.EndTime,
				Reason:          record.Reason,
			})
			break
		}
	}
	return conflicts, nil
}

func (s *PublicationService) notifyPublished(unit *models.Unit, snapshot map[string][]string, only []string) int {
	allowed := map[string]struct{}{}
	for _, id := range only {
		allowed[id] = struct{}{}
	}
	notified := 0
	for facilitatorID, sessionIDs := range snapshot {
		if len(only) > 0 {
			if _, ok := allowed[facilitatorID]; !ok {
				continue
			}
		}
		s.notifier.Emit(models.Event{
			Kind:        models.EventSchedulePublished,
			RecipientID: facilitatorID,
			UnitID:      unit.ID,
			Payload: map[string]interface{}{
				"unit_code":   unit.Code,
				"session_ids": sessionIDs,
			},
		})
		notified++
	}
	return notified
}

func (s *PublicationService) notifyUnpublished(ctx context.Context, unit *models.Unit, rejected []models.SwapRequest) int {
	recipients := map[string]struct{}{}
	assignments, err := s.assignments.ListByUnit(ctx, unit.ID)
	if err != nil {
		s.logger.Warn("failed to list assignments for notifications", zap.String("unit_id", unit.ID), zap.Error(err))
	}
	for _, assignment := range assignments {
		recipients[assignment.FacilitatorID] = struct{}{}
	}
	for _, swap := range rejected {
		recipients[swap.RequesterID] = struct{}{}
		recipients[swap.TargetID] = struct{}{}
	}
	for recipient := range recipients {
		s.notifier.Emit(models.Event{
			Kind:        models.EventScheduleUnpublished,
			RecipientID: recipient,
			UnitID:      unit.ID,
			Payload:     map[string]interface{}{"unit_code": unit.Code},
		})
	}
	return len(recipients)
}

func (s *PublicationService) renderReport(ctx context.Context, unit *models.Unit, assignments []models.AssignmentDetail) (string, error) {
	if s.pdf == nil || s.files == nil || s.signer == nil {
		return "", nil
	}
	names := make(map[string]string)
	headers := []string{"Date", "Time", "Module", "Type", "Facilitator", "Role"}
	rows := make([]map[string]string, 0, len(assignments))
	for _, assignment := range assignments {
		name, ok := names[assignment.FacilitatorID]
		if !ok {
			if user, err := s.users.FindByID(ctx, assignment.FacilitatorID); err == nil {
				name = user.FullName
			}
			names[assignment.FacilitatorID] = name
		}
		rows = append(rows, map[string]string{
			"Date":        assignment.Date.Format(dateLayout),
			"Time":        fmt.Sprintf("%s-%s", assignment.StartTime, assignment.EndTime),
			"Module":      assignment.ModuleName,
			"Type":        assignment.SessionType,
			"Facilitator": name,
			"Role":        string(assignment.Role),
		})
	}

	payload, err := s.pdf.Render(export.Dataset{Headers: headers, Rows: rows},
		fmt.Sprintf("%s schedule", unit.Code))
	if err != nil {
		return "", err
	}
	filename := fmt.Sprintf("schedules/%s-%d.pdf", unit.ID, time.Now().UTC().Unix())
	if _, err := s.files.Save(filename, payload); err != nil {
		return "", err
	}
	token, _, err := s.signer.Generate(unit.ID, filename)
	if err != nil {
		return "", err
	}
	return "/api/v1/schedule-reports/" + token, nil
}

func (s *PublicationService) loadUnit(ctx context.Context, unitID string) (*models.Unit, error) {
	unit, err := s.units.FindByID(ctx, unitID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "unit not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load unit")
	}
	return unit, nil
}

func (s *PublicationService) ensureCoordinator(ctx context.Context, actor models.ActingAs, unitID string) error {
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
	return appErrors.Clone(appErrors.ErrForbidden, "only the unit coordinator may manage publication")
}

// scheduledUnavailability builds the system-generated block that publication
// (or a swap of a published session) installs for the session's holder.
func scheduledUnavailability(facilitatorID string, assignment *models.AssignmentDetail) *models.Unavailability {
	sessionID := assignment.SessionID
	start, end := assignment.StartTime, assignment.EndTime
	return &models.Unavailability{
		UserID:          facilitatorID,
		Date:            assignment.Date,
		StartTime:       &start,
		EndTime:         &end,
		Reason:          fmt.Sprintf("Scheduled: %s - %s (%s)", assignment.UnitCode, assignment.ModuleName, assignment.SessionType),
		SourceSessionID: &sessionID,
	}
}
