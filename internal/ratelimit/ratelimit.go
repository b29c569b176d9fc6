// Package ratelimit provides sliding-window request limiting for the HTTP API.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Default limits.
const (
	DefaultMaxRequests = 100
	DefaultWindow      = 60 * time.Second
)

// Decision is the outcome of a single Allow call.
type Decision struct {
	Allowed bool
	// RetryAfter is set when the request was denied.
	RetryAfter time.Duration
	Remaining  int
	Limit      int
}

// Backend decides whether a request for key fits the window.
type Backend interface {
	Allow(ctx context.Context, key string) (Decision, error)
	Clear(ctx context.Context) error
	Close() error
}

// MemoryBackend is a single-process sliding-window limiter.
type MemoryBackend struct {
	maxRequests int
	window      time.Duration
	now         func() time.Time

	mu       sync.Mutex
	requests map[string][]time.Time
}

// NewMemoryBackend returns a limiter allowing maxRequests per window.
// Non-positive arguments fall back to the defaults.
func NewMemoryBackend(maxRequests int, window time.Duration) *MemoryBackend {
	if maxRequests <= 0 {
		maxRequests = DefaultMaxRequests
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &MemoryBackend{
		maxRequests: maxRequests,
		window:      window,
		now:         time.Now,
		requests:    make(map[string][]time.Time),
	}
}

// Allow records a request for key if the window has room.
func (m *MemoryBackend) Allow(ctx context.Context, key string) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	windowStart := now.Add(-m.window)
	stamps := m.requests[key]
	i := 0
	for i < len(stamps) && stamps[i].Before(windowStart) {
		i++
	}
	stamps = stamps[i:]

	if len(stamps) >= m.maxRequests {
		m.requests[key] = stamps
		return Decision{
			RetryAfter: retryAfter(stamps[0].Add(m.window).Sub(now)),
			Remaining:  0,
			Limit:      m.maxRequests,
		}, nil
	}

	stamps = append(stamps, now)
	m.requests[key] = stamps
	return Decision{
		Allowed:   true,
		Remaining: m.maxRequests - len(stamps),
		Limit:     m.maxRequests,
	}, nil
}

// Clear forgets every recorded request.
func (m *MemoryBackend) Clear(ctx context.Context) error {
	m.mu.Lock()
	m.requests = make(map[string][]time.Time)
	m.mu.Unlock()
	return nil
}

// Close is a no-op.
func (m *MemoryBackend) Close() error { return nil }

// retryAfter rounds d up to whole seconds, at least one.
func retryAfter(d time.Duration) time.Duration {
	secs := int64(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	if secs < 1 {
		secs = 1
	}
	return time.Duration(secs) * time.Second
}
