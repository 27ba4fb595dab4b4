package webhook

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/chatwire/chatwire/pkg/observability"
)

// Limiter gates delivery attempts per target URL. A denied attempt is
// deferred to a later tick without consuming a retry.
type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

// RateLimiter implements fixed-window rate limiting per target, in memory.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	limit   int
	period  time.Duration
}

type window struct {
	count int
	start time.Time
}

// NewRateLimiter creates an in-memory rate limiter allowing maxRequests per
// period for each key
func NewRateLimiter(maxRequests int, period time.Duration) *RateLimiter {
	return &RateLimiter{
		windows: make(map[string]*window),
		limit:   maxRequests,
		period:  period,
	}
}

// Allow reports whether a request for the given key fits the current window
func (rl *RateLimiter) Allow(_ context.Context, key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	w, exists := rl.windows[key]
	if !exists || now.Sub(w.start) >= rl.period {
		rl.windows[key] = &window{count: 1, start: now}
		return true
	}
	if w.count < rl.limit {
		w.count++
		return true
	}
	return false
}

// Remaining returns the number of requests left in the current window
func (rl *RateLimiter) Remaining(key string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, exists := rl.windows[key]
	if !exists || time.Since(w.start) >= rl.period {
		return rl.limit
	}
	remaining := rl.limit - w.count
	if remaining < 0 {
		return 0
	}
	return remaining
}

// RedisRateLimiter implements the same fixed-window policy backed by Redis,
// so limits hold across gateway instances sharing a target.
type RedisRateLimiter struct {
	client *redis.Client
	limit  int
	period time.Duration
	prefix string
	logger *observability.Logger
}

// NewRedisRateLimiter creates a Redis-backed rate limiter
func NewRedisRateLimiter(client *redis.Client, maxRequests int, period time.Duration, logger *observability.Logger) *RedisRateLimiter {
	return &RedisRateLimiter{
		client: client,
		limit:  maxRequests,
		period: period,
		prefix: "chatwire:webhook:ratelimit",
		logger: logger,
	}
}

// Allow checks the shared window in Redis. On Redis errors it fails open so
// a cache outage cannot stall webhook delivery.
func (rl *RedisRateLimiter) Allow(ctx context.Context, key string) bool {
	redisKey := fmt.Sprintf("%s:%s", rl.prefix, key)

	pipe := rl.client.Pipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, rl.period)

	if _, err := pipe.Exec(ctx); err != nil {
		rl.logger.WithError(err).Warn("Rate limiter Redis error, failing open")
		return true
	}

	return incr.Val() <= int64(rl.limit)
}

// Reset clears the window for a key (test/diagnostic use)
func (rl *RedisRateLimiter) Reset(ctx context.Context, key string) error {
	return rl.client.Del(ctx, fmt.Sprintf("%s:%s", rl.prefix, key)).Err()
}
