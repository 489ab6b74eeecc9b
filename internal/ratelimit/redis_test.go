package ratelimit_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/gestio-app/gestio/internal/ratelimit"
)

var testRedis *redis.Client

func TestMain(m *testing.M) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start redis container: %v\n", err)
		os.Exit(1)
	}

	host, err := container.Host(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get container host: %v\n", err)
		os.Exit(1)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get container port: %v\n", err)
		os.Exit(1)
	}

	testRedis = redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%s", host, port.Port()),
	})

	if err := testRedis.Ping(ctx).Err(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to ping redis: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()

	_ = testRedis.Close()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func TestRedisLimiterWindow(t *testing.T) {
	ctx := context.Background()
	limiter := ratelimit.NewRedisLimiter(testRedis, 5, time.Minute)

	// Unique key per run to avoid interference.
	key := fmt.Sprintf("exec:test-%d", time.Now().UnixNano())

	for i := 0; i < 5; i++ {
		res, err := limiter.Allow(ctx, key)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d should be allowed", i+1)
		assert.Equal(t, 5, res.Limit)
		assert.Equal(t, 5-i-1, res.Remaining, "remaining after request %d", i+1)
	}

	res, err := limiter.Allow(ctx, key)
	require.NoError(t, err)
	assert.False(t, res.Allowed, "6th request should be denied")
	assert.Equal(t, 0, res.Remaining)
	assert.True(t, res.ResetAt.After(time.Now()), "ResetAt should be in the future")
}

func TestRedisLimiterShortWindowResets(t *testing.T) {
	ctx := context.Background()
	limiter := ratelimit.NewRedisLimiter(testRedis, 1, 500*time.Millisecond)
	key := fmt.Sprintf("exec:reset-%d", time.Now().UnixNano())

	res, err := limiter.Allow(ctx, key)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = limiter.Allow(ctx, key)
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	time.Sleep(600 * time.Millisecond)

	res, err = limiter.Allow(ctx, key)
	require.NoError(t, err)
	assert.True(t, res.Allowed, "window should have expired")
}

func TestRedisLimiterMultipleKeys(t *testing.T) {
	ctx := context.Background()
	limiter := ratelimit.NewRedisLimiter(testRedis, 2, time.Minute)

	suffix := time.Now().UnixNano()
	keyA := fmt.Sprintf("exec:a-%d", suffix)
	keyB := fmt.Sprintf("exec:b-%d", suffix)

	for i := 0; i < 2; i++ {
		rA, err := limiter.Allow(ctx, keyA)
		require.NoError(t, err)
		rB, err := limiter.Allow(ctx, keyB)
		require.NoError(t, err)
		assert.True(t, rA.Allowed, "keyA request %d", i+1)
		assert.True(t, rB.Allowed, "keyB request %d", i+1)
	}

	rA, err := limiter.Allow(ctx, keyA)
	require.NoError(t, err)
	rB, err := limiter.Allow(ctx, keyB)
	require.NoError(t, err)
	assert.False(t, rA.Allowed)
	assert.False(t, rB.Allowed)
}
