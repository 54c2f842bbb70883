package ratelimit

import (
	"sync"
	"time"
)

// Limiter defines the rate limiting interface
type Limiter interface {
	// Allow checks if the action is allowed for the given key
	Allow(key string, limit int, window time.Duration) bool

	// RetryAfter returns the duration until the next request would pass
	RetryAfter(key string, limit int, window time.Duration) time.Duration
}

// SlidingWindow is an in-memory limiter that keeps the timestamps of
// recent hits per key and counts those inside the window.
type SlidingWindow struct {
	mu   sync.Mutex
	hits map[string][]time.Time
	now  func() time.Time
}

// NewSlidingWindow creates a new in-memory sliding window limiter
func NewSlidingWindow() *SlidingWindow {
	return &SlidingWindow{
		hits: make(map[string][]time.Time),
		now:  time.Now,
	}
}

func (l *SlidingWindow) Allow(key string, limit int, window time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	recent := l.prune(key, now, window)

	if len(recent) >= limit {
		l.hits[key] = recent
		return false
	}

	l.hits[key] = append(recent, now)
	return true
}

func (l *SlidingWindow) RetryAfter(key string, limit int, window time.Duration) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	recent := l.prune(key, now, window)
	l.hits[key] = recent

	if len(recent) < limit {
		return 0
	}

	// The oldest hit inside the window ages out first.
	return recent[0].Add(window).Sub(now)
}

// prune drops hits that fell out of the window. Caller holds the lock.
func (l *SlidingWindow) prune(key string, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	recent := l.hits[key]
	for len(recent) > 0 && !recent[0].After(cutoff) {
		recent = recent[1:]
	}
	return recent
}

// Cleanup removes keys with no recent hits to prevent unbounded growth
func (l *SlidingWindow) Cleanup(window time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-window)
	for key, hits := range l.hits {
		if len(hits) == 0 || !hits[len(hits)-1].After(cutoff) {
			delete(l.hits, key)
		}
	}
}

// StartCleanup starts a background goroutine that periodically drops idle keys
func (l *SlidingWindow) StartCleanup(interval, window time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for range ticker.C {
			l.Cleanup(window)
		}
	}()
}

// Ensure SlidingWindow implements Limiter
var _ Limiter = (*SlidingWindow)(nil)
