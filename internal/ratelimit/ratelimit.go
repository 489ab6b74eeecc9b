// Package ratelimit provides a pluggable fixed-window rate limiting interface.
//
// The default deployment uses an in-memory window per key (MemoryLimiter).
// Multi-instance deployments substitute the Redis-backed implementation so
// all instances share one counter per key — the Limiter interface is the
// contract.
//
// Windows are fixed, not sliding: a burst straddling a window boundary can
// admit up to twice the nominal rate. Accepted imprecision for an internal
// admin tool.
package ratelimit

import (
	"context"
	"strconv"
	"time"
)

// Result describes the outcome of one Allow call.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// FormatHeaders returns the standard X-RateLimit response headers.
func (r Result) FormatHeaders() map[string]string {
	return map[string]string{
		"X-RateLimit-Limit":     strconv.Itoa(r.Limit),
		"X-RateLimit-Remaining": strconv.Itoa(r.Remaining),
		"X-RateLimit-Reset":     strconv.FormatInt(r.ResetAt.Unix(), 10),
	}
}

// Limiter decides whether a request identified by key should be allowed.
// Implementations must be safe for concurrent use.
type Limiter interface {
	// Allow consumes one slot from the key's current window.
	// The key is opaque — callers construct it (e.g. "exec:<principal-id>").
	// Returning an error signals a limiter malfunction; callers should
	// treat errors as fail-open (permit the request) rather than blocking traffic.
	Allow(ctx context.Context, key string) (Result, error)

	// Close releases resources (cleanup goroutines, connections).
	Close() error
}

// NoopLimiter permits every request. Used when rate limiting is disabled.
type NoopLimiter struct{}

// Allow always returns an allowed result.
func (NoopLimiter) Allow(context.Context, string) (Result, error) {
	return Result{Allowed: true}, nil
}

// Close is a no-op.
func (NoopLimiter) Close() error { return nil }
