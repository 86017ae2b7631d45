package limiters

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/cmsauth"
)

var (
	// ErrLockoutUnavailable indicates the lockout backend is unreachable.
	ErrLockoutUnavailable = errors.New("lockout backend unavailable")
)

// LoginAttempts is a Redis-backed cmsauth.AttemptStore. Each IP owns one hash
// holding the attempt count and the unix time of the last failure.
type LoginAttempts struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ cmsauth.AttemptStore = (*LoginAttempts)(nil)

// NewLoginAttempts creates the store. Counters expire twice the lockout
// duration after the last failure; lockout <= 0 keeps them forever.
func NewLoginAttempts(redisClient redis.UniversalClient, prefix string, lockout time.Duration) *LoginAttempts {
	if prefix == "" {
		prefix = "cmsauth:"
	}
	return &LoginAttempts{redis: redisClient, prefix: prefix, ttl: 2 * lockout}
}

func (l *LoginAttempts) key(ip string) string {
	return l.prefix + "la:" + ip
}

// GetLoginAttempt returns the counter of ip.
func (l *LoginAttempts) GetLoginAttempt(ctx context.Context, ip string) (cmsauth.LoginAttempt, bool, error) {
	vals, err := l.redis.HGetAll(ctx, l.key(ip)).Result()
	if err != nil {
		return cmsauth.LoginAttempt{}, false, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	if len(vals) == 0 {
		return cmsauth.LoginAttempt{}, false, nil
	}
	attempts, _ := strconv.Atoi(vals["attempts"])
	last, _ := strconv.ParseInt(vals["last"], 10, 64)
	return cmsauth.LoginAttempt{Attempts: attempts, LastAttempt: time.Unix(last, 0)}, true, nil
}

// SetLoginAttempt counts one more failure at time at.
func (l *LoginAttempts) SetLoginAttempt(ctx context.Context, ip string, at time.Time) (cmsauth.LoginAttempt, error) {
	key := l.key(ip)
	var incr *redis.IntCmd
	_, err := l.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.HIncrBy(ctx, key, "attempts", 1)
		pipe.HSet(ctx, key, "last", at.Unix())
		if l.ttl > 0 {
			pipe.Expire(ctx, key, l.ttl)
		}
		return nil
	})
	if err != nil {
		return cmsauth.LoginAttempt{}, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return cmsauth.LoginAttempt{Attempts: int(incr.Val()), LastAttempt: time.Unix(at.Unix(), 0)}, nil
}

// ClearLoginAttempt removes the counter of ip.
func (l *LoginAttempts) ClearLoginAttempt(ctx context.Context, ip string) error {
	if err := l.redis.Del(ctx, l.key(ip)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return nil
}
