package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ricirt/appointment-reminders/internal/queue"
)

// QueueStats reports the depth of both queue tiers.
type QueueStats interface {
	Stats(ctx context.Context) (queue.Stats, error)
}

// DeadLetterCounter reports how many dead letters are waiting.
type DeadLetterCounter interface {
	Size(ctx context.Context) (int64, error)
}

// DepthSampler polls queue and dead-letter depths and hands each snapshot to
// a callback (normally metrics.SetDepths).
type DepthSampler struct {
	stats       QueueStats
	deadLetters DeadLetterCounter
	interval    time.Duration
	onSample    func(immediate, scheduled, deadLetters int64)
	logger      *zap.Logger
}

func NewDepthSampler(
	stats QueueStats,
	deadLetters DeadLetterCounter,
	interval time.Duration,
	onSample func(immediate, scheduled, deadLetters int64),
	logger *zap.Logger,
) *DepthSampler {
	return &DepthSampler{
		stats:       stats,
		deadLetters: deadLetters,
		interval:    interval,
		onSample:    onSample,
		logger:      logger,
	}
}

// Run samples once immediately and then every interval.
// Stops cleanly when ctx is cancelled.
func (s *DepthSampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("depth sampler started", zap.Duration("interval", s.interval))
	s.sample(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("depth sampler stopping")
			return
		case <-ticker.C:
			s.sample(ctx)
		}
	}
}

func (s *DepthSampler) sample(ctx context.Context) {
	st, err := s.stats.Stats(ctx)
	if err != nil {
		s.logger.Warn("queue depth sample failed", zap.Error(err))
		return
	}

	var dead int64
	if s.deadLetters != nil {
		if dead, err = s.deadLetters.Size(ctx); err != nil {
			s.logger.Warn("dead letter depth sample failed", zap.Error(err))
			return
		}
	}

	s.onSample(st.Immediate, st.Scheduled, dead)
}
