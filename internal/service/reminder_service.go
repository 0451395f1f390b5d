package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ricirt/appointment-reminders/internal/domain"
	"github.com/ricirt/appointment-reminders/internal/queue"
	"github.com/ricirt/appointment-reminders/internal/repository"
)

// JobPublisher is the producer side of the reminder pipeline.
type JobPublisher interface {
	Publish(ctx context.Context, job domain.NotificationJob) error
	ScheduleAppointmentReminder(ctx context.Context, payload domain.AppointmentReminderPayload, appointmentDate time.Time) error
}

// DeadLetterStore is the operator view of failed deliveries.
type DeadLetterStore interface {
	Add(ctx context.Context, dl queue.DeadLetter) (string, error)
	List(ctx context.Context, limit int64) ([]queue.DeadLetter, error)
	Take(ctx context.Context, id string) (*queue.DeadLetter, error)
	Delete(ctx context.Context, id string) error
}

// ReminderService coordinates the appointment store, the publisher and the
// dead-letter store. HTTP handlers depend on this service, not on each other.
type ReminderService struct {
	appointments repository.LookupRepository
	publisher    JobPublisher
	deadLetters  DeadLetterStore
	logger       *zap.Logger
}

func NewReminderService(
	appointments repository.LookupRepository,
	publisher JobPublisher,
	deadLetters DeadLetterStore,
	logger *zap.Logger,
) *ReminderService {
	return &ReminderService{
		appointments: appointments,
		publisher:    publisher,
		deadLetters:  deadLetters,
		logger:       logger,
	}
}

// OnAppointmentSaved schedules the reminder for a freshly created or
// rescheduled appointment. Failures are logged, never returned: saving the
// appointment must succeed regardless of the reminder pipeline.
func (s *ReminderService) OnAppointmentSaved(ctx context.Context, appt domain.Appointment) {
	if err := s.publisher.ScheduleAppointmentReminder(ctx, appt.ReminderPayload(), appt.Date); err != nil {
		s.logger.Error("failed to schedule appointment reminder",
			zap.String("appointment_id", appt.ID),
			zap.Error(err),
		)
	}
}

// ScheduleForAppointment loads the appointment and schedules its reminder.
func (s *ReminderService) ScheduleForAppointment(ctx context.Context, id string) (*domain.Appointment, error) {
	appt, err := s.appointments.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.publisher.ScheduleAppointmentReminder(ctx, appt.ReminderPayload(), appt.Date); err != nil {
		return nil, fmt.Errorf("schedule reminder: %w", err)
	}
	return appt, nil
}

// Publish validates req and enqueues it without consulting the idempotency
// guard. The returned job carries its queue ID.
func (s *ReminderService) Publish(ctx context.Context, req domain.PublishJobRequest) (domain.NotificationJob, error) {
	if err := req.Validate(); err != nil {
		return domain.NotificationJob{}, err
	}

	job := req.Job()
	job.ID = uuid.NewString()
	if err := s.publisher.Publish(ctx, job); err != nil {
		return domain.NotificationJob{}, err
	}
	return job, nil
}

func (s *ReminderService) ListDeadLetters(ctx context.Context, limit int64) ([]queue.DeadLetter, error) {
	return s.deadLetters.List(ctx, limit)
}

// RequeueDeadLetter republishes a dead-lettered job for immediate delivery,
// restricted to the channel that failed. The entry is restored when the job
// cannot be published.
func (s *ReminderService) RequeueDeadLetter(ctx context.Context, id string) (domain.NotificationJob, error) {
	dl, err := s.deadLetters.Take(ctx, id)
	if err != nil {
		return domain.NotificationJob{}, err
	}

	var job domain.NotificationJob
	if err := json.Unmarshal(dl.Payload, &job); err != nil {
		s.restore(ctx, *dl)
		return domain.NotificationJob{}, fmt.Errorf("%w: dead letter %s: %v", domain.ErrInvalidPayload, id, err)
	}

	job.ID = uuid.NewString()
	job.SendAt = nil
	if ch := domain.Channel(dl.Source); ch.IsValid() {
		job.Channels = []domain.Channel{ch}
	}

	if err := s.publisher.Publish(ctx, job); err != nil {
		s.restore(ctx, *dl)
		return domain.NotificationJob{}, err
	}

	s.logger.Info("dead letter requeued",
		zap.String("dead_letter_id", id),
		zap.String("job_id", job.ID),
		zap.String("channel", dl.Source),
	)
	return job, nil
}

func (s *ReminderService) DiscardDeadLetter(ctx context.Context, id string) error {
	return s.deadLetters.Delete(ctx, id)
}

func (s *ReminderService) restore(ctx context.Context, dl queue.DeadLetter) {
	if _, err := s.deadLetters.Add(context.WithoutCancel(ctx), dl); err != nil {
		s.logger.Error("failed to restore dead letter", zap.String("dead_letter_id", dl.ID), zap.Error(err))
	}
}
