// Package ratelimit provides a sliding-window rate limiter used to bound
// outbound calls to the DataForSEO API.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter admits at most maxRequests grants inside any window of the
// configured length. The window slides continuously; there are no fixed
// bucket resets. Safe for concurrent use.
type Limiter struct {
	maxRequests int
	window      time.Duration

	mu     sync.Mutex
	grants []time.Time

	now func() time.Time
}

func New(maxRequests int, window time.Duration) *Limiter {
	if maxRequests < 1 {
		maxRequests = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		maxRequests: maxRequests,
		window:      window,
		now:         time.Now,
	}
}

// Acquire blocks until a slot is available or ctx is done. A grant is never
// recorded while the window is saturated; after sleeping the ledger is
// re-checked because other callers may have been granted in the meantime.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := l.now()
		l.prune(now)
		if len(l.grants) < l.maxRequests {
			l.grants = append(l.grants, now)
			l.mu.Unlock()
			return nil
		}
		wait := l.window - now.Sub(l.grants[0])
		l.mu.Unlock()

		if wait <= 0 {
			continue
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// CurrentUsage reports how many grants fall inside the current window.
func (l *Limiter) CurrentUsage() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.now())
	return len(l.grants)
}

// TimeUntilNextSlot reports how long a caller would wait for the next slot.
// Zero means a slot is available now.
func (l *Limiter) TimeUntilNextSlot() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.prune(now)
	if len(l.grants) < l.maxRequests {
		return 0
	}
	remaining := l.window - now.Sub(l.grants[0])
	if remaining < 0 {
		return 0
	}
	return remaining
}

// prune drops grants older than the window. Callers must hold mu.
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	idx := 0
	for idx < len(l.grants) && !l.grants[idx].After(cutoff) {
		idx++
	}
	if idx > 0 {
		l.grants = append(l.grants[:0], l.grants[idx:]...)
	}
}
