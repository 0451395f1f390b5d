// Package notification schedules appointment reminders onto the queue and
// fans dequeued jobs out over the user's delivery channels.
package notification

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ricirt/appointment-reminders/internal/domain"
	"github.com/ricirt/appointment-reminders/internal/queue"
)

// DefaultReminderLead is how long before an appointment its reminder fires.
const DefaultReminderLead = 60 * time.Minute

// minClaimTTL keeps a claim from being written without expiry when the lead
// is zero and the appointment is already due.
const minClaimTTL = time.Minute

// ClaimStore grants short-lived exclusive claims.
type ClaimStore interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Publisher is the producer side of the reminder pipeline.
type Publisher struct {
	queue  queue.MessageQueue[domain.NotificationJob]
	claims ClaimStore
	lead   time.Duration
	logger *zap.Logger
	now    func() time.Time

	onDuplicate func()
}

// PublisherOption customises a Publisher.
type PublisherOption func(*Publisher)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) PublisherOption {
	return func(p *Publisher) { p.now = now }
}

// WithDuplicateHook is called each time a schedule is suppressed.
func WithDuplicateHook(fn func()) PublisherOption {
	return func(p *Publisher) { p.onDuplicate = fn }
}

// NewPublisher builds a Publisher. A zero lead sends reminders at the
// appointment time; a negative lead falls back to DefaultReminderLead.
func NewPublisher(
	q queue.MessageQueue[domain.NotificationJob],
	claims ClaimStore,
	lead time.Duration,
	logger *zap.Logger,
	opts ...PublisherOption,
) *Publisher {
	if lead < 0 {
		lead = DefaultReminderLead
	}
	p := &Publisher{
		queue:       q,
		claims:      claims,
		lead:        lead,
		logger:      logger,
		now:         time.Now,
		onDuplicate: func() {},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish enqueues job as-is. It does not consult the idempotency guard.
func (p *Publisher) Publish(ctx context.Context, job domain.NotificationJob) error {
	msg := queue.EnsureID(queue.Message[domain.NotificationJob]{
		ID:      job.ID,
		Payload: job,
		SendAt:  job.SendAt,
	})
	msg.Payload.ID = msg.ID

	if err := p.queue.Publish(ctx, msg); err != nil {
		return fmt.Errorf("publish %s job: %w", job.Type, err)
	}
	return nil
}

// ScheduleAppointmentReminder publishes one reminder due lead before
// appointmentDate, or immediately when that moment has already passed.
// Repeated calls for the same appointment and date within the claim window
// publish nothing.
func (p *Publisher) ScheduleAppointmentReminder(
	ctx context.Context,
	payload domain.AppointmentReminderPayload,
	appointmentDate time.Time,
) error {
	now := p.now()
	sendAt := appointmentDate.Add(-p.lead)
	if !sendAt.After(now) {
		sendAt = now
	}

	if payload.AppointmentDate == "" {
		payload.AppointmentDate = appointmentDate.UTC().Format(time.RFC3339Nano)
	}

	key := ReminderClaimKey(payload.AppointmentID, appointmentDate)
	ttl := max(minClaimTTL, p.lead, appointmentDate.Sub(now)+p.lead)

	granted, err := p.claims.Claim(ctx, key, ttl)
	if err != nil {
		return fmt.Errorf("claim reminder for appointment %s: %w", payload.AppointmentID, err)
	}
	if !granted {
		p.onDuplicate()
		p.logger.Debug("appointment reminder already scheduled",
			zap.String("appointment_id", payload.AppointmentID),
			zap.String("key", key),
		)
		return nil
	}

	job, err := domain.NewAppointmentReminderJob(payload, &sendAt)
	if err != nil {
		return err
	}
	if err := p.Publish(ctx, job); err != nil {
		return err
	}

	p.logger.Info("appointment reminder scheduled",
		zap.String("appointment_id", payload.AppointmentID),
		zap.Time("send_at", sendAt),
	)
	return nil
}

// ReminderClaimKey identifies one reminder schedule for the idempotency
// guard, which adds its own namespace prefix.
func ReminderClaimKey(appointmentID string, appointmentDate time.Time) string {
	return fmt.Sprintf("appointment-reminder:%s:%s", appointmentID, appointmentDate.UTC().Format(time.RFC3339Nano))
}
