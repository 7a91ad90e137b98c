package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authshield/kvstore"
)

func newStore(t *testing.T) (kvstore.Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return kvstore.NewRedis(client), mr
}

func TestSlidingCounterRearmsTTL(t *testing.T) {
	store, mr := newStore(t)
	c := NewCounter(store, "s:", 10*time.Second, Sliding)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if _, err := c.Hit(ctx, "id"); err != nil {
			t.Fatalf("hit: %v", err)
		}
		mr.FastForward(8 * time.Second)
	}
	n, err := c.Count(ctx, "id")
	if err != nil || n != 4 {
		t.Fatalf("count = %d, %v; want 4", n, err)
	}
	mr.FastForward(11 * time.Second)
	if n, _ := c.Count(ctx, "id"); n != 0 {
		t.Fatalf("expected expiry, got %d", n)
	}
}

func TestFixedCounterKeepsFirstTTL(t *testing.T) {
	store, mr := newStore(t)
	c := NewCounter(store, "f:", 10*time.Second, Fixed)
	ctx := context.Background()

	_, _ = c.Hit(ctx, "id")
	mr.FastForward(8 * time.Second)
	_, _ = c.Hit(ctx, "id")
	mr.FastForward(3 * time.Second)

	if n, _ := c.Count(ctx, "id"); n != 0 {
		t.Fatalf("fixed window should have expired, got %d", n)
	}
}

func TestCountDropsCounterWithoutTTL(t *testing.T) {
	store, mr := newStore(t)
	c := NewCounter(store, "x:", time.Minute, Sliding)
	_ = mr.Set("x:id", "7")

	n, err := c.Count(context.Background(), "id")
	if err != nil || n != 0 {
		t.Fatalf("count = %d, %v; want 0", n, err)
	}
	if mr.Exists("x:id") {
		t.Fatal("counter without ttl should be removed")
	}
}

func TestCountRejectsCorruptValue(t *testing.T) {
	store, mr := newStore(t)
	c := NewCounter(store, "bf:", time.Minute, Sliding)
	ctx := context.Background()

	for _, raw := range []string{"not-a-number", "-3"} {
		if err := mr.Set("bf:id", raw); err != nil {
			t.Fatalf("seed: %v", err)
		}
		mr.SetTTL("bf:id", time.Minute)
		if _, err := c.Count(ctx, "id"); !errors.Is(err, ErrCorruptCounter) {
			t.Fatalf("count of %q: expected ErrCorruptCounter, got %v", raw, err)
		}
	}
}

func TestCounterResetAndRemaining(t *testing.T) {
	store, _ := newStore(t)
	c := NewCounter(store, "r:", time.Minute, Sliding)
	ctx := context.Background()

	_, _ = c.Hit(ctx, "id")
	d, ok, err := c.Remaining(ctx, "id")
	if err != nil || !ok || d <= 0 {
		t.Fatalf("remaining = %v %v %v", d, ok, err)
	}
	if err := c.Reset(ctx, "id"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, ok, _ := c.Remaining(ctx, "id"); ok {
		t.Fatal("reset counter must have no ttl")
	}
}

func TestCounterStoreFailure(t *testing.T) {
	store, mr := newStore(t)
	c := NewCounter(store, "e:", time.Minute, Sliding)
	mr.Close()

	if _, err := c.Hit(context.Background(), "id"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if _, err := c.Count(context.Background(), "id"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}
