package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ricirt/appointment-reminders/internal/domain"
)

// DeliveryHooks carries the metric callback functions injected by main.
// Using a struct keeps the worker constructor signature clean.
type DeliveryHooks struct {
	OnSent   func(channel domain.Channel, latency time.Duration)
	OnRetry  func(channel domain.Channel)
	OnFailed func(channel domain.Channel)
}

// Runner is a background loop that returns once ctx is cancelled.
type Runner interface {
	Run(ctx context.Context)
}

// Pool manages the lifecycle of the background runners.
type Pool struct {
	runners []Runner
	logger  *zap.Logger
	wg      sync.WaitGroup
}

func NewPool(logger *zap.Logger, runners ...Runner) *Pool {
	return &Pool{runners: runners, logger: logger}
}

// Start launches every runner as a goroutine.
// Cancelling ctx triggers a graceful shutdown of the entire pool.
func (p *Pool) Start(ctx context.Context) {
	for _, r := range p.runners {
		p.wg.Add(1)
		go func(r Runner) {
			defer p.wg.Done()
			r.Run(ctx)
		}(r)
	}
	p.logger.Info("background workers started", zap.Int("count", len(p.runners)))
}

// Wait blocks until every runner has returned after ctx is cancelled.
func (p *Pool) Wait() {
	p.wg.Wait()
}
