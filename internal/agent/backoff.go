package agent

import (
	"context"
	"time"
)

// Backoff is an exponential retry delay policy.
type Backoff struct {
	Base       time.Duration // Delay before the second attempt
	Multiplier float64       // Growth factor per further attempt
	Max        time.Duration // Upper bound on any single delay
}

// DefaultBackoff returns the standard policy: 2s base, doubling, capped at 10s.
func DefaultBackoff() Backoff {
	return Backoff{Base: 2 * time.Second, Multiplier: 2, Max: 10 * time.Second}
}

// Delay returns how long to wait after the given failed attempt (1-indexed).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 || b.Base <= 0 {
		return 0
	}
	mult := b.Multiplier
	if mult < 1 {
		mult = 1
	}
	delay := float64(b.Base)
	for i := 1; i < attempt; i++ {
		delay *= mult
		if b.Max > 0 && delay >= float64(b.Max) {
			return b.Max
		}
	}
	d := time.Duration(delay)
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}

// sleepContext blocks for d or until ctx is done.
// Returns nil on a completed wait, the context error if cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
