package kvstore

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T, opts ...Option) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis(client, opts...), mr
}

func TestRedisGetMissingReturnsNotFound(t *testing.T) {
	store, _ := newTestRedis(t)
	if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRedisSetGetWithTTL(t *testing.T) {
	store, mr := newTestRedis(t)
	ctx := context.Background()

	if err := store.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := store.Get(ctx, "k")
	if err != nil || got != "v" {
		t.Fatalf("get = %q, %v", got, err)
	}

	mr.FastForward(61 * time.Second)
	if _, err := store.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expiry, got %v", err)
	}
}

func TestRedisIncrWithTTLRefreshesWindow(t *testing.T) {
	store, mr := newTestRedis(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		n, err := store.IncrWithTTL(ctx, "c", 10*time.Second)
		if err != nil {
			t.Fatalf("incr: %v", err)
		}
		if n != int64(i) {
			t.Fatalf("count = %d, want %d", n, i)
		}
		mr.FastForward(6 * time.Second)
	}

	ttl, ok, err := store.TTL(ctx, "c")
	if err != nil || !ok {
		t.Fatalf("ttl ok=%v err=%v", ok, err)
	}
	if ttl <= 0 || ttl > 10*time.Second {
		t.Fatalf("unexpected ttl %v", ttl)
	}
}

func TestRedisTTLAbsentAndPersistent(t *testing.T) {
	store, mr := newTestRedis(t)
	ctx := context.Background()

	if _, ok, err := store.TTL(ctx, "missing"); err != nil || ok {
		t.Fatalf("missing key: ok=%v err=%v", ok, err)
	}

	_ = mr.Set("persist", "1")
	if _, ok, err := store.TTL(ctx, "persist"); err != nil || ok {
		t.Fatalf("persistent key: ok=%v err=%v", ok, err)
	}
}

func TestRedisKeysStripsPrefix(t *testing.T) {
	store, mr := newTestRedis(t, WithPrefix("svc:"), WithScanCount(2))
	ctx := context.Background()

	for _, k := range []string{"token_meta:a:u1", "token_meta:b:u1", "token_meta:c:u2"} {
		if err := store.Set(ctx, k, "{}", time.Minute); err != nil {
			t.Fatalf("set: %v", err)
		}
	}
	_ = mr.Set("token_meta:z:u1", "outside-prefix")

	keys, err := store.Keys(ctx, "token_meta:*:u1")
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "token_meta:a:u1" || keys[1] != "token_meta:b:u1" {
		t.Fatalf("unexpected keys %v", keys)
	}
}

func TestRedisDel(t *testing.T) {
	store, mr := newTestRedis(t)
	ctx := context.Background()

	_ = store.Set(ctx, "a", "1", time.Minute)
	_ = store.Set(ctx, "b", "1", time.Minute)
	if err := store.Del(ctx, "a", "b"); err != nil {
		t.Fatalf("del: %v", err)
	}
	if mr.Exists("a") || mr.Exists("b") {
		t.Fatal("keys survived delete")
	}
	if err := store.Del(ctx); err != nil {
		t.Fatalf("empty del: %v", err)
	}
}

func TestRedisSetNXOnlyOnce(t *testing.T) {
	store, mr := newTestRedis(t)
	ctx := context.Background()

	ok, err := store.SetNX(ctx, "revoked:j", "1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first setnx: ok=%v err=%v", ok, err)
	}
	ok, err = store.SetNX(ctx, "revoked:j", "2", time.Minute)
	if err != nil || ok {
		t.Fatalf("second setnx: ok=%v err=%v", ok, err)
	}
	if got, _ := mr.Get("revoked:j"); got != "1" {
		t.Fatalf("value overwritten: %q", got)
	}
}

func TestRedisUnavailableIsWrapped(t *testing.T) {
	store, mr := newTestRedis(t)
	mr.Close()

	ctx := context.Background()
	if _, err := store.Incr(ctx, "x"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("incr: expected ErrUnavailable, got %v", err)
	}
	if _, err := store.Get(ctx, "x"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("get: expected ErrUnavailable, got %v", err)
	}
	if err := store.Ping(ctx); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("ping: expected ErrUnavailable, got %v", err)
	}
}
