// Package humanize adds human-like pacing to page interactions.
package humanize

import (
	"context"
	"math/rand"
	"time"
)

// RandomDuration returns a random duration between min and max milliseconds.
func RandomDuration(minMs, maxMs int) time.Duration {
	if maxMs <= minMs {
		return time.Duration(minMs) * time.Millisecond
	}
	ms := minMs + rand.Intn(maxMs-minMs+1)
	return time.Duration(ms) * time.Millisecond
}

// Jitter returns base shifted by up to ±fraction of itself. fraction is
// clamped to [0, 1].
func Jitter(base time.Duration, fraction float64) time.Duration {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	spread := float64(base) * fraction
	d := time.Duration(float64(base) + (rand.Float64()*2-1)*spread)
	if d < 0 {
		return 0
	}
	return d
}

// RandomWait waits for a random duration between min and max milliseconds.
// It returns false if ctx ended first.
func RandomWait(ctx context.Context, minMs, maxMs int) bool {
	return sleepWithContext(ctx, RandomDuration(minMs, maxMs))
}

// sleepWithContext sleeps for d or until ctx is canceled.
// Returns true if the sleep completed normally.
func sleepWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
