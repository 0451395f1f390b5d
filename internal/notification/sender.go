package notification

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ricirt/appointment-reminders/internal/domain"
	"github.com/ricirt/appointment-reminders/internal/repository"
)

// Sender turns a dequeued job into per-channel deliveries.
//
// A failing channel never stops the others and never fails Handle: channel
// errors are logged and summarised. Handle only returns errors from the
// lookups themselves (other than not-found).
type Sender struct {
	repo     repository.LookupRepository
	adapters map[domain.Channel]ChannelAdapter
	logger   *zap.Logger
}

// NewSender builds the channel table once. Channels without an adapter get
// an UnsupportedAdapter.
func NewSender(repo repository.LookupRepository, adapters map[domain.Channel]ChannelAdapter, logger *zap.Logger) *Sender {
	table := make(map[domain.Channel]ChannelAdapter, len(domain.Channels))
	for _, ch := range domain.Channels {
		if a, ok := adapters[ch]; ok && a != nil {
			table[ch] = a
			continue
		}
		table[ch] = NewUnsupportedAdapter(ch, logger)
	}
	return &Sender{repo: repo, adapters: table, logger: logger}
}

// Handle dispatches job by type. Unknown types are logged and ignored.
func (s *Sender) Handle(ctx context.Context, job domain.NotificationJob) error {
	switch job.Type {
	case domain.JobAppointmentReminder:
		return s.handleAppointmentReminder(ctx, job)
	default:
		s.logger.Warn("unhandled notification job type",
			zap.String("job_id", job.ID),
			zap.String("type", string(job.Type)),
		)
		return nil
	}
}

func (s *Sender) handleAppointmentReminder(ctx context.Context, job domain.NotificationJob) error {
	payload, err := job.AppointmentReminder()
	if err != nil {
		return err
	}
	log := s.logger.With(
		zap.String("job_id", job.ID),
		zap.String("appointment_id", payload.AppointmentID),
	)

	user, err := s.repo.GetUser(ctx, payload.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		log.Debug("reminder user no longer exists", zap.String("user_id", payload.UserID))
		return nil
	}
	if err != nil {
		return err
	}

	prefs := user.NotificationPreferences
	if !prefs.UpcomingAppointments.Enabled || len(prefs.Channels) == 0 {
		return nil
	}

	rc, err := s.buildContext(ctx, job, payload, user)
	if err != nil {
		return err
	}
	if rc == nil {
		log.Warn("appointment not found for reminder job")
		return nil
	}

	var failures *multierror.Error
	for _, ch := range selectChannels(prefs.Channels, job.Channels) {
		adapter, ok := s.adapters[ch]
		if !ok {
			log.Warn("adapter for channel not configured", zap.String("channel", string(ch)))
			continue
		}

		log.Info("sending notification",
			zap.String("channel", string(ch)),
			zap.String("type", string(job.Type)),
		)
		if err := deliver(ctx, adapter, *rc); err != nil {
			log.Error("channel delivery failed", zap.String("channel", string(ch)), zap.Error(err))
			failures = multierror.Append(failures, fmt.Errorf("%s: %w", ch, err))
		}
	}

	if failures != nil {
		log.Warn("appointment reminder delivered partially",
			zap.Int("failed_channels", failures.Len()),
			zap.Error(failures.ErrorOrNil()),
		)
	}
	return nil
}

// buildContext loads the appointment and, concurrently, the display names.
// It returns nil when the appointment is gone.
func (s *Sender) buildContext(
	ctx context.Context,
	job domain.NotificationJob,
	payload domain.AppointmentReminderPayload,
	user *domain.User,
) (*ReminderContext, error) {
	appt, err := s.repo.GetAppointment(ctx, payload.AppointmentID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rc := &ReminderContext{Job: job, User: *user, Appointment: *appt}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		pet, err := s.repo.GetPet(gctx, payload.PetID)
		if err != nil {
			return ignoreNotFound(err)
		}
		rc.PetName = pet.Name
		return nil
	})
	g.Go(func() error {
		svc, err := s.repo.GetService(gctx, payload.ServiceID)
		if err != nil {
			return ignoreNotFound(err)
		}
		rc.ServiceName = svc.Name
		return nil
	})
	g.Go(func() error {
		vet, err := s.repo.GetUser(gctx, payload.VetID)
		if err != nil {
			return ignoreNotFound(err)
		}
		rc.VetName = vet.FullName
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return rc, nil
}

// deliver runs one adapter and turns a panic into an error so the remaining
// channels still run.
func deliver(ctx context.Context, adapter ChannelAdapter, rc ReminderContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("adapter panic: %v", r)
		}
	}()
	return adapter.SendAppointmentReminder(ctx, rc)
}

// selectChannels deduplicates enabled, keeping its order, and narrows it to
// only when only is non-empty.
func selectChannels(enabled, only []domain.Channel) []domain.Channel {
	allowed := make(map[domain.Channel]bool, len(only))
	for _, ch := range only {
		allowed[ch] = true
	}

	seen := make(map[domain.Channel]bool, len(enabled))
	out := make([]domain.Channel, 0, len(enabled))
	for _, ch := range enabled {
		if seen[ch] || (len(only) > 0 && !allowed[ch]) {
			continue
		}
		seen[ch] = true
		out = append(out, ch)
	}
	return out
}

func ignoreNotFound(err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	return err
}
