package lifecycle

import (
	"context"
	"math/rand"
	"time"
)

// Backoff implements exponential backoff with jitter. It is not safe for
// concurrent use.
type Backoff struct {
	initial time.Duration
	max     time.Duration
	current time.Duration
}

// NewBackoff creates a backoff starting at initial and capped at max.
func NewBackoff(initial, max time.Duration) *Backoff {
	return &Backoff{
		initial: initial,
		max:     max,
		current: initial,
	}
}

// Wait sleeps for the current duration, ±20% jitter, and doubles it for the
// next call. It returns false if ctx ended first.
func (b *Backoff) Wait(ctx context.Context) bool {
	jitter := float64(b.current) * 0.2 * (rand.Float64()*2 - 1)
	t := time.NewTimer(time.Duration(float64(b.current) + jitter))
	defer t.Stop()

	b.current *= 2
	if b.current > b.max {
		b.current = b.max
	}

	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Reset restores the initial duration.
func (b *Backoff) Reset() {
	b.current = b.initial
}

// Current returns the duration the next Wait sleeps, before jitter.
func (b *Backoff) Current() time.Duration {
	return b.current
}
