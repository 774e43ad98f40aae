// Package ratelimit provides sliding-window request admission control
// keyed by an arbitrary string (synchronization controllers key by URL).
//
// Unlike a token bucket, the window is exact: CanRequest admits at most
// max requests per key within any rolling window, denies without recording
// once the window is full, and admits again as soon as the oldest recorded
// request slides out. Denial is soft backpressure - callers drop the
// request silently rather than surfacing an error.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a sliding-window rate limiter. Safe for concurrent use.
type Limiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	hits   map[string][]time.Time

	// now is swappable for tests.
	now func() time.Time
}

// New creates a limiter admitting at most max requests per key within any
// rolling window. max <= 0 disables limiting (every request admitted).
func New(max int, window time.Duration) *Limiter {
	return &Limiter{
		max:    max,
		window: window,
		hits:   make(map[string][]time.Time),
		now:    time.Now,
	}
}

// CanRequest reports whether a request for key is admitted right now.
// Admitted requests are recorded; denied requests are not, so a burst of
// denials does not extend the penalty window.
func (l *Limiter) CanRequest(key string) bool {
	if l.max <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	kept := l.hits[key][:0]
	for _, ts := range l.hits[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	l.hits[key] = kept

	if len(kept) >= l.max {
		return false
	}
	l.hits[key] = append(kept, now)
	return true
}

// Cleanup prunes stale timestamps and drops keys whose entries have all
// expired, bounding memory for long-lived processes. Intended to be called
// periodically by the owner.
func (l *Limiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	for key, times := range l.hits {
		kept := times[:0]
		for _, ts := range times {
			if ts.After(cutoff) {
				kept = append(kept, ts)
			}
		}
		if len(kept) == 0 {
			delete(l.hits, key)
			continue
		}
		l.hits[key] = kept
	}
}

// Keys returns the number of keys currently tracked. Useful for asserting
// that Cleanup bounds memory.
func (l *Limiter) Keys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.hits)
}

// SetClock replaces the limiter's time source. Test hook.
func (l *Limiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}
