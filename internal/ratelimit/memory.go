package ratelimit

import (
	"context"
	"sync"
	"time"
)

// window is the fixed-window state for one rate-limit key.
type window struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter implements Limiter using an in-memory fixed window per key.
//
// Each key gets an independent {count, resetAt} pair guarded by one mutex,
// so concurrent check-and-increment from in-flight requests for the same
// key cannot lose updates. A background goroutine evicts expired entries
// every minute to bound memory.
//
// State is process-local: it resets on restart and is not shared across
// instances. Use RedisLimiter for multi-instance deployments.
type MemoryLimiter struct {
	limit  int
	period time.Duration

	mu      sync.Mutex
	windows map[string]*window

	now func() time.Time // injectable for tests

	stopOnce sync.Once
	done     chan struct{}
}

// NewMemoryLimiter creates a fixed-window limiter allowing limit requests
// per key per period. Call Close to stop the eviction goroutine.
func NewMemoryLimiter(limit int, period time.Duration) *MemoryLimiter {
	m := &MemoryLimiter{
		limit:   limit,
		period:  period,
		windows: make(map[string]*window),
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go m.cleanup()
	return m
}

// Allow consumes one slot from the key's current window. The first request
// after a window expires opens a fresh window with a full budget.
func (m *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	w, ok := m.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{count: 1, resetAt: now.Add(m.period)}
		m.windows[key] = w
		return m.result(true, w), nil
	}

	if w.count >= m.limit {
		return m.result(false, w), nil
	}
	w.count++
	return m.result(true, w), nil
}

func (m *MemoryLimiter) result(allowed bool, w *window) Result {
	remaining := m.limit - w.count
	if remaining < 0 {
		remaining = 0
	}
	return Result{Allowed: allowed, Limit: m.limit, Remaining: remaining, ResetAt: w.resetAt}
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (m *MemoryLimiter) Close() error {
	m.stopOnce.Do(func() { close(m.done) })
	return nil
}

// cleanup periodically evicts windows that have already expired.
func (m *MemoryLimiter) cleanup() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.evictExpired()
		}
	}
}

func (m *MemoryLimiter) evictExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for key, w := range m.windows {
		if !now.Before(w.resetAt) {
			delete(m.windows, key)
		}
	}
}
