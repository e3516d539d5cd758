package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/uniflow/facilitation-api/internal/models"
	"github.com/uniflow/facilitation-api/pkg/jobs"
)

// Sender delivers a notification event to its recipient. Delivery transport
// (email, push) is pluggable; the default just logs.
type Sender interface {
	Send(ctx context.Context, event models.Event) error
}

// LogSender is the default Sender writing events to the structured log.
type LogSender struct {
	Logger *zap.Logger
}

// Send logs the event.
func (s LogSender) Send(_ context.Context, event models.Event) error {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("notification",
		zap.String("kind", string(event.Kind)),
		zap.String("recipient_id", event.RecipientID),
		zap.String("unit_id", event.UnitID),
		zap.Any("payload", event.Payload),
	)
	return nil
}

// NotificationService fans domain events out to a Sender through the
// background queue so request handling never waits on delivery.
type NotificationService struct {
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewNotificationService wires the dispatch queue around the sender.
func NewNotificationService(sender Sender, cfg jobs.QueueConfig, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	handler := func(ctx context.Context, job jobs.Job) error {
		event, ok := job.Payload.(models.Event)
		if !ok {
			logger.Warn("dropping notification with unexpected payload", zap.String("job_id", job.ID))
			return nil
		}
		return sender.Send(ctx, event)
	}
	queue := jobs.NewQueue("notifications", handler, cfg)
	return &NotificationService{queue: queue, logger: logger}
}

// Start launches the dispatch workers.
func (s *NotificationService) Start(ctx context.Context) {
	if s == nil {
		return
	}
	s.queue.Start(ctx)
}

// Stop drains the workers.
func (s *NotificationService) Stop() {
	if s == nil {
		return
	}
	s.queue.Stop()
}

// Emit enqueues an event for delivery. Failures are logged, never surfaced:
// the triggering operation has already committed.
func (s *NotificationService) Emit(event models.Event) {
	if s == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	job := jobs.Job{
		ID:      uuid.NewString(),
		Type:    string(event.Kind),
		Payload: event,
	}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("failed to enqueue notification",
			zap.String("kind", string(event.Kind)),
			zap.String("recipient_id", event.RecipientID),
			zap.Error(err),
		)
	}
}
