package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a fixed-window counter. The ledger client uses one to keep
// relayer submissions inside the hosted service's quota.
type Limiter interface {
	// Allow reports whether one more action is permitted for key.
	Allow(key string, limit int, window time.Duration) bool

	// RetryAfter returns how long until the window for key resets.
	RetryAfter(key string, window time.Duration) time.Duration
}

type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	count   int
	resetAt time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{windows: make(map[string]*window)}
}

func (l *MemoryLimiter) Allow(key string, limit int, dur time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	w, ok := l.windows[key]
	if !ok || now.After(w.resetAt) {
		l.windows[key] = &window{count: 1, resetAt: now.Add(dur)}
		return true
	}

	if w.count >= limit {
		return false
	}
	w.count++
	return true
}

func (l *MemoryLimiter) RetryAfter(key string, dur time.Duration) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok {
		return 0
	}
	remaining := time.Until(w.resetAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}
