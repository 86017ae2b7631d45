package rate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return New(rdb, cfg), mr
}

func TestAllowWithinWindow(t *testing.T) {
	l, mr := newTestLimiter(t, Config{Limit: 3, Window: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "10.0.0.1")
		if err != nil || !ok {
			t.Fatalf("request %d: %v, %v", i+1, ok, err)
		}
	}
	if ok, _ := l.Allow(ctx, "10.0.0.1"); ok {
		t.Fatal("fourth request allowed")
	}
	if ok, _ := l.Allow(ctx, "10.0.0.2"); !ok {
		t.Fatal("other key throttled")
	}

	mr.FastForward(time.Minute + time.Second)
	if ok, _ := l.Allow(ctx, "10.0.0.1"); !ok {
		t.Fatal("window did not reset")
	}
}

func TestReset(t *testing.T) {
	l, _ := newTestLimiter(t, Config{Limit: 1, Window: time.Minute})
	ctx := context.Background()

	l.Allow(ctx, "k")
	if ok, _ := l.Allow(ctx, "k"); ok {
		t.Fatal("expected throttle")
	}
	if err := l.Reset(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := l.Allow(ctx, "k"); !ok {
		t.Fatal("reset did not clear the window")
	}
}

func TestUnlimited(t *testing.T) {
	var l *Limiter
	if ok, err := l.Allow(context.Background(), "k"); !ok || err != nil {
		t.Fatal("nil limiter must allow")
	}
}
