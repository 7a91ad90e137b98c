package kvstore

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by Get when the key does not exist.
	ErrNotFound = errors.New("kvstore: key not found")
	// ErrUnavailable indicates the backing store could not be reached.
	ErrUnavailable = errors.New("kvstore: store unavailable")
)

// Store is the key-value contract consumed by the security engine.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX writes key only when it does not exist and reports whether it did.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Incr(ctx context.Context, key string) (int64, error)
	// IncrWithTTL increments key and (re)sets its expiry in one atomic step.
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	// TTL reports the remaining lifetime. ok is false when the key is absent
	// or carries no expiry.
	TTL(ctx context.Context, key string) (remaining time.Duration, ok bool, err error)
	// Keys returns every key matching a glob pattern.
	Keys(ctx context.Context, pattern string) ([]string, error)
}

// Pinger is implemented by stores that can report liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}
