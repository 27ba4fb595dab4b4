package webhook

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatwire/chatwire/pkg/observability"
)

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow(ctx, "http://a.example.com"), "request %d should be allowed", i+1)
	}
	assert.False(t, rl.Allow(ctx, "http://a.example.com"))

	// Independent window per key
	assert.True(t, rl.Allow(ctx, "http://b.example.com"))
}

func TestRateLimiter_WindowReset(t *testing.T) {
	rl := NewRateLimiter(1, 50*time.Millisecond)
	ctx := context.Background()

	require.True(t, rl.Allow(ctx, "http://a.example.com"))
	require.False(t, rl.Allow(ctx, "http://a.example.com"))

	time.Sleep(60 * time.Millisecond)
	assert.True(t, rl.Allow(ctx, "http://a.example.com"))
}

func TestRateLimiter_Remaining(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	ctx := context.Background()

	assert.Equal(t, 2, rl.Remaining("http://a.example.com"))
	rl.Allow(ctx, "http://a.example.com")
	assert.Equal(t, 1, rl.Remaining("http://a.example.com"))
	rl.Allow(ctx, "http://a.example.com")
	assert.Equal(t, 0, rl.Remaining("http://a.example.com"))
	rl.Allow(ctx, "http://a.example.com")
	assert.Equal(t, 0, rl.Remaining("http://a.example.com"))
}

func redisLimiterFixture(t *testing.T, limit int, period time.Duration) (*RedisRateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	return NewRedisRateLimiter(client, limit, period, logger), mr
}

func TestRedisRateLimiter_Allow(t *testing.T) {
	rl, _ := redisLimiterFixture(t, 2, time.Minute)
	ctx := context.Background()

	assert.True(t, rl.Allow(ctx, "http://a.example.com"))
	assert.True(t, rl.Allow(ctx, "http://a.example.com"))
	assert.False(t, rl.Allow(ctx, "http://a.example.com"))

	assert.True(t, rl.Allow(ctx, "http://b.example.com"))
}

func TestRedisRateLimiter_WindowExpiry(t *testing.T) {
	rl, mr := redisLimiterFixture(t, 1, time.Minute)
	ctx := context.Background()

	require.True(t, rl.Allow(ctx, "http://a.example.com"))
	require.False(t, rl.Allow(ctx, "http://a.example.com"))

	mr.FastForward(2 * time.Minute)
	assert.True(t, rl.Allow(ctx, "http://a.example.com"))
}

func TestRedisRateLimiter_Reset(t *testing.T) {
	rl, _ := redisLimiterFixture(t, 1, time.Minute)
	ctx := context.Background()

	require.True(t, rl.Allow(ctx, "http://a.example.com"))
	require.False(t, rl.Allow(ctx, "http://a.example.com"))

	require.NoError(t, rl.Reset(ctx, "http://a.example.com"))
	assert.True(t, rl.Allow(ctx, "http://a.example.com"))
}

func TestRedisRateLimiter_FailsOpen(t *testing.T) {
	rl, mr := redisLimiterFixture(t, 1, time.Minute)
	ctx := context.Background()

	mr.Close()

	// Redis unavailable must not block delivery
	assert.True(t, rl.Allow(ctx, "http://a.example.com"))
	assert.True(t, rl.Allow(ctx, "http://a.example.com"))
}
