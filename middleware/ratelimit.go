package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter decides whether one more request for key is allowed. The Redis
// fixed-window limiter in internal/rate satisfies it for multi-instance
// deployments; [IPLimiter] serves a single process.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type ipEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPLimiter is an in-process token bucket per key. Keys idle for longer than
// the TTL are evicted, and the table never grows past maxKeys.
type IPLimiter struct {
	mu      sync.Mutex
	entries map[string]*ipEntry
	rate    rate.Limit
	burst   int
	ttl     time.Duration
	maxKeys int
	now     func() time.Time

	lastSweep time.Time
}

// NewIPLimiter returns a limiter refilling at r tokens per second up to burst.
func NewIPLimiter(r rate.Limit, burst int) *IPLimiter {
	return &IPLimiter{
		entries: make(map[string]*ipEntry),
		rate:    r,
		burst:   burst,
		ttl:     5 * time.Minute,
		maxKeys: 10000,
		now:     time.Now,
	}
}

// Allow takes one token from the bucket of key.
func (l *IPLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > time.Minute {
		l.evictIdle(now)
		l.lastSweep = now
	}

	e, ok := l.entries[key]
	if !ok {
		if len(l.entries) >= l.maxKeys {
			l.evictOldest()
		}
		e = &ipEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.entries[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1), nil
}

// Len returns the number of tracked keys.
func (l *IPLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *IPLimiter) evictIdle(now time.Time) {
	for k, e := range l.entries {
		if now.Sub(e.lastSeen) > l.ttl {
			delete(l.entries, k)
		}
	}
}

// evictOldest must be called with mu held.
func (l *IPLimiter) evictOldest() {
	var (
		oldest string
		seen   time.Time
	)
	for k, e := range l.entries {
		if oldest == "" || e.lastSeen.Before(seen) {
			oldest, seen = k, e.lastSeen
		}
	}
	if oldest != "" {
		delete(l.entries, oldest)
	}
}

// RateLimit answers 429 once the client IP exhausts its budget. A limiter
// error lets the request through and is logged.
func RateLimit(l Limiter, opts ...Option) func(http.Handler) http.Handler {
	o := buildOptions(opts)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l == nil {
				next.ServeHTTP(w, r)
				return
			}
			ip := o.clientIP(r)
			allowed, err := l.Allow(r.Context(), ip)
			if err != nil {
				o.log.Error(err, "rate limiter unavailable", "ip", ip)
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				w.Header().Set("Retry-After", "1")
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
