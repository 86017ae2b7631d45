package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds rate limiter tuning parameters.
type Config struct {
	// Prefix namespaces the counter keys.
	Prefix string
	// Limit is the number of requests allowed per window.
	Limit int
	// Window is the fixed window length.
	Window time.Duration
}

// Limiter enforces a fixed-window request budget per key using Redis
// counters, so that every application server shares one budget.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "cmsauth:rl:"
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// Allow counts one request for key and reports whether it fits the budget.
// A limiter with no limit allows everything.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	if l == nil || l.config.Limit <= 0 || l.config.Window <= 0 {
		return true, nil
	}
	count, err := l.incrementWithTTL(ctx, l.config.Prefix+key, l.config.Window)
	if err != nil {
		return false, err
	}
	return count <= int64(l.config.Limit), nil
}

// Reset clears the counter of key.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	if err := l.redis.Del(ctx, l.config.Prefix+key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}
