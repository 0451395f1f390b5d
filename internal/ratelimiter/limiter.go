package ratelimiter

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/ricirt/appointment-reminders/internal/domain"
)

// ChannelLimiters holds one token bucket per delivery channel so a burst of
// reminders cannot exceed a provider's request quota.
type ChannelLimiters struct {
	limiters map[domain.Channel]*rate.Limiter
}

// New creates a limiter per known channel allowing ratePerSec sends per
// second with a burst of the same size.
func New(ratePerSec int) *ChannelLimiters {
	limiters := make(map[domain.Channel]*rate.Limiter, len(domain.Channels))
	for _, ch := range domain.Channels {
		limiters[ch] = rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec)
	}
	return &ChannelLimiters{limiters: limiters}
}

// Wait blocks until ch may send again. It fails when ctx ends first or the
// channel is unknown.
func (cl *ChannelLimiters) Wait(ctx context.Context, ch domain.Channel) error {
	l, ok := cl.limiters[ch]
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrInvalidChannel, ch)
	}
	return l.Wait(ctx)
}
