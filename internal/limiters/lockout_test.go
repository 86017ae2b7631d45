package limiters

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T, lockout time.Duration) (*LoginAttempts, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewLoginAttempts(rdb, "", lockout), mr
}

func TestLoginAttemptsCountAndClear(t *testing.T) {
	store, _ := newTestStore(t, time.Minute)
	ctx := context.Background()

	if _, ok, err := store.GetLoginAttempt(ctx, "10.0.0.1"); err != nil || ok {
		t.Fatalf("expected no counter, got %v, %v", ok, err)
	}

	at := time.Unix(1_700_000_000, 0)
	for i := 1; i <= 3; i++ {
		la, err := store.SetLoginAttempt(ctx, "10.0.0.1", at.Add(time.Duration(i)*time.Second))
		if err != nil {
			t.Fatalf("SetLoginAttempt: %v", err)
		}
		if la.Attempts != i {
			t.Fatalf("expected %d attempts, got %d", i, la.Attempts)
		}
	}

	la, ok, err := store.GetLoginAttempt(ctx, "10.0.0.1")
	if err != nil || !ok {
		t.Fatalf("GetLoginAttempt: %v, %v", ok, err)
	}
	if la.Attempts != 3 || !la.LastAttempt.Equal(at.Add(3*time.Second)) {
		t.Fatalf("unexpected counter %+v", la)
	}

	if _, ok, _ := store.GetLoginAttempt(ctx, "10.0.0.2"); ok {
		t.Fatal("counter leaked to another IP")
	}

	if err := store.ClearLoginAttempt(ctx, "10.0.0.1"); err != nil {
		t.Fatalf("ClearLoginAttempt: %v", err)
	}
	if _, ok, _ := store.GetLoginAttempt(ctx, "10.0.0.1"); ok {
		t.Fatal("counter survived clear")
	}
}

func TestLoginAttemptsExpire(t *testing.T) {
	store, mr := newTestStore(t, time.Minute)
	ctx := context.Background()

	if _, err := store.SetLoginAttempt(ctx, "10.0.0.1", time.Now()); err != nil {
		t.Fatal(err)
	}
	if ttl := mr.TTL("cmsauth:la:10.0.0.1"); ttl != 2*time.Minute {
		t.Fatalf("expected ttl 2m, got %v", ttl)
	}
	mr.FastForward(2*time.Minute + time.Second)
	if _, ok, _ := store.GetLoginAttempt(ctx, "10.0.0.1"); ok {
		t.Fatal("counter did not expire")
	}
}

func TestLoginAttemptsUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatal(err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	store := NewLoginAttempts(rdb, "", time.Minute)
	mr.Close()

	_, err = store.SetLoginAttempt(context.Background(), "10.0.0.1", time.Now())
	if !errors.Is(err, ErrLockoutUnavailable) {
		t.Fatalf("expected ErrLockoutUnavailable, got %v", err)
	}
}
