package rate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/authshield/kvstore"
)

// Window selects how a Counter refreshes its expiry.
type Window int

const (
	// Sliding re-arms the TTL on every hit.
	Sliding Window = iota
	// Fixed arms the TTL on the first hit of a window.
	Fixed
)

// Counter is a namespaced, expiring counter in the shared store.
type Counter struct {
	store  kvstore.Store
	prefix string
	ttl    time.Duration
	window Window
}

// NewCounter creates a Counter writing keys as prefix+id.
func NewCounter(store kvstore.Store, prefix string, ttl time.Duration, window Window) *Counter {
	return &Counter{store: store, prefix: prefix, ttl: ttl, window: window}
}

// Key returns the store key for id.
func (c *Counter) Key(id string) string {
	return c.prefix + id
}

// TTL is the window length.
func (c *Counter) TTL() time.Duration {
	return c.ttl
}

// Hit increments the counter for id and returns the new value.
func (c *Counter) Hit(ctx context.Context, id string) (int64, error) {
	key := c.Key(id)
	if c.window == Sliding {
		n, err := c.store.IncrWithTTL(ctx, key, c.ttl)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return n, nil
	}

	n, err := c.store.Incr(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if n == 1 {
		if err := c.store.Expire(ctx, key, c.ttl); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}
	return n, nil
}

// Count returns the current value for id. Missing keys read as zero; a
// value that is not a counter is an error so gates built on it stay closed.
func (c *Counter) Count(ctx context.Context, id string) (int64, error) {
	key := c.Key(id)
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s holds %q", ErrCorruptCounter, key, raw)
	}

	_, ok, err := c.store.TTL(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !ok {
		// A counter that lost its expiry would never reset.
		if err := c.store.Del(ctx, key); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return 0, nil
	}
	return n, nil
}

// Remaining reports the TTL left on the counter for id.
func (c *Counter) Remaining(ctx context.Context, id string) (time.Duration, bool, error) {
	d, ok, err := c.store.TTL(ctx, c.Key(id))
	if err != nil {
		return 0, false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return d, ok, nil
}

// Reset deletes the counter for id.
func (c *Counter) Reset(ctx context.Context, id string) error {
	if err := c.store.Del(ctx, c.Key(id)); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
