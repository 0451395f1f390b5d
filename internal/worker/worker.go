package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/ricirt/appointment-reminders/internal/domain"
	"github.com/ricirt/appointment-reminders/internal/notification"
	"github.com/ricirt/appointment-reminders/internal/provider"
	"github.com/ricirt/appointment-reminders/internal/queue"
	"github.com/ricirt/appointment-reminders/internal/ratelimiter"
)

// DeadLetterSink records a delivery that ran out of attempts.
type DeadLetterSink interface {
	Add(ctx context.Context, dl queue.DeadLetter) (string, error)
}

// BreakerSettings configures the per-channel circuit breaker. The breaker
// trips once at least MinRequests calls were seen in the current interval
// and the failure ratio reaches FailureRate.
type BreakerSettings struct {
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
	MinRequests uint32
	FailureRate float64
}

// DeliveryWorker wraps one channel adapter with rate limiting, a circuit
// breaker and bounded retries. A delivery that still fails after the last
// backoff step is written to the dead-letter sink and the error is returned
// to the caller.
type DeliveryWorker struct {
	channel     domain.Channel
	next        notification.ChannelAdapter
	limiter     *ratelimiter.ChannelLimiters
	breaker     *gobreaker.CircuitBreaker
	backoff     []time.Duration
	deadLetters DeadLetterSink
	logger      *zap.Logger

	// Hooks for metrics, injected by main so the worker stays metrics-agnostic.
	onSent   func(channel domain.Channel, latency time.Duration)
	onRetry  func(channel domain.Channel)
	onFailed func(channel domain.Channel)
}

// NewDeliveryWorker constructs a guard for ch. deadLetters may be nil, in
// which case exhausted deliveries are only logged.
func NewDeliveryWorker(
	ch domain.Channel,
	next notification.ChannelAdapter,
	limiter *ratelimiter.ChannelLimiters,
	backoff []time.Duration,
	breaker BreakerSettings,
	deadLetters DeadLetterSink,
	logger *zap.Logger,
	hooks DeliveryHooks,
) *DeliveryWorker {
	w := &DeliveryWorker{
		channel:     ch,
		next:        next,
		limiter:     limiter,
		backoff:     backoff,
		deadLetters: deadLetters,
		logger:      logger.With(zap.String("channel", string(ch))),
		onSent:      hooks.OnSent,
		onRetry:     hooks.OnRetry,
		onFailed:    hooks.OnFailed,
	}
	if w.onSent == nil {
		w.onSent = func(domain.Channel, time.Duration) {}
	}
	if w.onRetry == nil {
		w.onRetry = func(domain.Channel) {}
	}
	if w.onFailed == nil {
		w.onFailed = func(domain.Channel) {}
	}
	w.breaker = newBreaker(string(ch), breaker, w.logger)
	return w
}

func newBreaker(name string, s BreakerSettings, logger *zap.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= s.FailureRate
		},
		// A rejected request says nothing about provider health.
		IsSuccessful: func(err error) bool {
			return err == nil || provider.IsPermanent(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
}

// BreakerState reports the current breaker state.
func (w *DeliveryWorker) BreakerState() gobreaker.State {
	return w.breaker.State()
}

// SendAppointmentReminder delivers rc through the wrapped adapter.
//
// Attempts run once plus once per backoff entry:
//
//	attempt 1 → immediately
//	attempt 2 → after backoff[0]  (default 250 ms)
//	attempt 3 → after backoff[1]  (default 1 s)
//	...
//
// Permanent provider errors and an open breaker end the loop early.
func (w *DeliveryWorker) SendAppointmentReminder(ctx context.Context, rc notification.ReminderContext) error {
	start := time.Now()
	log := w.logger.With(zap.String("job_id", rc.Job.ID))

	var (
		err      error
		attempts int
	)
	for {
		attempts++
		if err = w.limiter.Wait(ctx, w.channel); err != nil {
			break
		}

		_, err = w.breaker.Execute(func() (interface{}, error) {
			return nil, w.next.SendAppointmentReminder(ctx, rc)
		})
		if err == nil {
			elapsed := time.Since(start)
			w.onSent(w.channel, elapsed)
			log.Debug("reminder delivered", zap.Int("attempts", attempts), zap.Duration("latency", elapsed))
			return nil
		}

		if !retryable(err) || attempts > len(w.backoff) {
			break
		}

		w.onRetry(w.channel)
		log.Warn("reminder delivery failed, retrying",
			zap.Error(err),
			zap.Int("attempt", attempts),
			zap.Duration("backoff", w.backoff[attempts-1]),
		)
		if serr := sleep(ctx, w.backoff[attempts-1]); serr != nil {
			break
		}
	}

	w.onFailed(w.channel)
	w.deadLetter(ctx, rc.Job, attempts, err)
	return err
}

func (w *DeliveryWorker) deadLetter(ctx context.Context, job domain.NotificationJob, attempts int, cause error) {
	log := w.logger.With(zap.String("job_id", job.ID), zap.Int("attempts", attempts), zap.Error(cause))
	if w.deadLetters == nil {
		log.Error("reminder delivery exhausted")
		return
	}

	payload, err := json.Marshal(job)
	if err != nil {
		log.Error("failed to encode dead letter", zap.NamedError("encode_error", err))
		return
	}

	// The caller may be shutting down; the record must still land.
	id, err := w.deadLetters.Add(context.WithoutCancel(ctx), queue.DeadLetter{
		Source:   string(w.channel),
		Payload:  payload,
		Error:    cause.Error(),
		Attempts: attempts,
	})
	if err != nil {
		log.Error("failed to record dead letter", zap.NamedError("store_error", err))
		return
	}
	log.Warn("reminder delivery dead-lettered", zap.String("dead_letter_id", id))
}

func retryable(err error) bool {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState),
		errors.Is(err, gobreaker.ErrTooManyRequests),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return !provider.IsPermanent(err)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var _ notification.ChannelAdapter = (*DeliveryWorker)(nil)
