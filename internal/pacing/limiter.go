// Package pacing provides a strictly periodic rate limiter shared by sender workers.
package pacing

import (
	"context"
	"sync/atomic"
	"time"
)

// Limiter hands out one permit per interval across all callers.
//
// Unlike a token bucket it never accumulates a burst: each Acquire reserves
// the next slot after the last reserved one, or now if the limiter has been
// idle. Reservations are made with a CAS loop on a single timestamp.
type Limiter struct {
	interval    time.Duration
	nextAllowed atomic.Int64 // unix nanos
	now         func() time.Time
}

// NewLimiter creates a limiter issuing permitsPerSecond permits per second.
// Returns nil if permitsPerSecond <= 0; a nil *Limiter never blocks.
func NewLimiter(permitsPerSecond float64) *Limiter {
	if permitsPerSecond <= 0 {
		return nil
	}
	interval := time.Duration(float64(time.Second) / permitsPerSecond)
	if interval < 1 {
		interval = 1
	}
	return &Limiter{interval: interval, now: time.Now}
}

// Interval returns the spacing between permits.
func (l *Limiter) Interval() time.Duration {
	if l == nil {
		return 0
	}
	return l.interval
}

// Reserve claims the next slot and returns how long the caller must wait for it.
func (l *Limiter) Reserve() time.Duration {
	if l == nil {
		return 0
	}
	for {
		now := l.now().UnixNano()
		prev := l.nextAllowed.Load()
		base := max(prev, now)
		if l.nextAllowed.CompareAndSwap(prev, base+int64(l.interval)) {
			return time.Duration(base - now)
		}
	}
}

// Acquire blocks until the caller's slot arrives or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	wait := l.Reserve()
	if wait <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
