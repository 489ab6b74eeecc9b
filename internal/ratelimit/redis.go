package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// allowScript atomically increments the window counter and stamps its expiry
// on first increment. Returns {count, ttl_ms}.
var allowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
    redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {count, ttl}
`)

// RedisLimiter implements Limiter with a shared fixed-window counter per key,
// stored in Redis with an expiry. All process instances observe the same
// counter, which removes the per-instance budget multiplication of
// MemoryLimiter in scaled deployments.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	period time.Duration
}

// NewRedisLimiter creates a Redis-backed fixed-window limiter.
// The client is owned by the caller; Close does not close it.
func NewRedisLimiter(client *redis.Client, limit int, period time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, limit: limit, period: period}
}

// Allow atomically increments the counter for key's current window.
// Errors (Redis unreachable, script failure) are returned for the caller to
// treat as fail-open.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	vals, err := allowScript.Run(ctx, l.client, []string{"ratelimit:" + key}, l.period.Milliseconds()).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("ratelimit: redis incr: %w", err)
	}
	if len(vals) != 2 {
		return Result{}, fmt.Errorf("ratelimit: unexpected script reply length %d", len(vals))
	}

	count := int(vals[0])
	ttl := time.Duration(vals[1]) * time.Millisecond
	if ttl < 0 {
		ttl = l.period
	}

	remaining := l.limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   count <= l.limit,
		Limit:     l.limit,
		Remaining: remaining,
		ResetAt:   time.Now().Add(ttl),
	}, nil
}

// Close is a no-op; the Redis client lifecycle belongs to the caller.
func (l *RedisLimiter) Close() error { return nil }
