package rateLimiter

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter keeps last-accepted times in an expiring in-process map.
type MemoryLimiter struct {
	mu       sync.Mutex
	entries  map[string]time.Time
	interval time.Duration
	ttl      time.Duration
	now      func() time.Time

	cleanupInterval time.Duration

	stopCleanup chan struct{}
	closeOnce   sync.Once
}

type MemoryOption func(*MemoryLimiter)

// WithClock replaces time.Now, used by tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(l *MemoryLimiter) {
		l.now = now
	}
}

// WithEntryTTL sets how long an idle key is kept. Values below the interval are raised to it.
func WithEntryTTL(ttl time.Duration) MemoryOption {
	return func(l *MemoryLimiter) {
		l.ttl = ttl
	}
}

// WithCleanupInterval starts a sweeper that drops expired keys. Zero disables it.
func WithCleanupInterval(every time.Duration) MemoryOption {
	return func(l *MemoryLimiter) {
		l.cleanupInterval = every
	}
}

func NewMemoryLimiter(interval time.Duration, opts ...MemoryOption) *MemoryLimiter {
	if interval <= 0 {
		interval = DefaultInterval
	}

	l := &MemoryLimiter{
		entries:     make(map[string]time.Time),
		interval:    interval,
		ttl:         3 * interval,
		now:         time.Now,
		stopCleanup: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(l)
	}

	if l.ttl < l.interval {
		l.ttl = l.interval
	}

	if l.cleanupInterval > 0 {
		go l.cleanup(l.cleanupInterval)
	}

	return l
}

func (l *MemoryLimiter) Admit(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if last, ok := l.entries[key]; ok && now.Sub(last) < l.interval {
		return false, nil
	}

	l.entries[key] = now
	return true, nil
}

// Len returns the number of tracked keys.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Sweep removes keys idle for longer than the entry TTL.
func (l *MemoryLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, last := range l.entries {
		if now.Sub(last) >= l.ttl {
			delete(l.entries, key)
			removed++
		}
	}
	return removed
}

func (l *MemoryLimiter) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.Sweep()
		case <-l.stopCleanup:
			return
		}
	}
}

// Close stops the sweeper. Safe to call more than once.
func (l *MemoryLimiter) Close() {
	l.closeOnce.Do(func() {
		close(l.stopCleanup)
	})
}
