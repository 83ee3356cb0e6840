package ratelimiter

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter caps how many messages a run may send per minute, on top of the
// fixed delay between sends. Burst is 1 so sends never bunch up after an
// idle period. A nil Limiter never blocks.
type Limiter struct {
	l *rate.Limiter
}

// New creates a Limiter allowing perMinute sends per minute.
// perMinute <= 0 disables limiting and returns nil.
func New(perMinute int) *Limiter {
	if perMinute <= 0 {
		return nil
	}
	return &Limiter{l: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)}
}

// Wait blocks until the next send is allowed.
// Returns a non-nil error only if ctx is cancelled while waiting.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return ctx.Err()
	}
	return l.l.Wait(ctx)
}
