package kvstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultScanCount = 256

// Redis implements Store over a go-redis universal client.
//
// The client is owned by the caller; Redis never closes it.
type Redis struct {
	client    redis.UniversalClient
	prefix    string
	scanCount int64
}

// Option configures a Redis store.
type Option func(*Redis)

// WithPrefix namespaces every key written or read by the store.
func WithPrefix(prefix string) Option {
	return func(r *Redis) { r.prefix = prefix }
}

// WithScanCount sets the COUNT hint used while enumerating keys.
func WithScanCount(n int64) Option {
	return func(r *Redis) {
		if n > 0 {
			r.scanCount = n
		}
	}
}

// NewRedis wraps client as a Store.
func NewRedis(client redis.UniversalClient, opts ...Option) *Redis {
	r := &Redis{client: client, scanCount: defaultScanCount}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func (r *Redis) k(key string) string {
	return r.prefix + key
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, r.k(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", unavailable(err)
	}
	return val, nil
}

func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.k(key), value, ttl).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (r *Redis) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.k(key), value, ttl).Result()
	if err != nil {
		return false, unavailable(err)
	}
	return ok, nil
}

func (r *Redis) Incr(ctx context.Context, key string) (int64, error) {
	n, err := r.client.Incr(ctx, r.k(key)).Result()
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

func (r *Redis) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, r.k(key))
		p.Expire(ctx, r.k(key), ttl)
		return nil
	})
	if err != nil {
		return 0, unavailable(err)
	}
	return incr.Val(), nil
}

func (r *Redis) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := r.client.Expire(ctx, r.k(key), ttl).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (r *Redis) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, key := range keys {
		full[i] = r.k(key)
	}
	if err := r.client.Del(ctx, full...).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (r *Redis) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	d, err := r.client.TTL(ctx, r.k(key)).Result()
	if err != nil {
		return 0, false, unavailable(err)
	}
	// -2: missing key, -1: no expiry.
	if d < 0 {
		return 0, false, nil
	}
	return d, true, nil
}

func (r *Redis) Keys(ctx context.Context, pattern string) ([]string, error) {
	match := r.k(pattern)

	if cluster, ok := r.client.(*redis.ClusterClient); ok {
		var (
			mu  sync.Mutex
			out []string
		)
		err := cluster.ForEachMaster(ctx, func(ctx context.Context, node *redis.Client) error {
			keys, err := r.scan(ctx, node, match)
			if err != nil {
				return err
			}
			mu.Lock()
			out = append(out, keys...)
			mu.Unlock()
			return nil
		})
		if err != nil {
			return nil, unavailable(err)
		}
		return out, nil
	}

	keys, err := r.scan(ctx, r.client, match)
	if err != nil {
		return nil, unavailable(err)
	}
	return keys, nil
}

type scanner interface {
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
}

func (r *Redis) scan(ctx context.Context, c scanner, match string) ([]string, error) {
	var (
		cursor uint64
		out    []string
	)
	seen := make(map[string]struct{})
	for {
		keys, next, err := c.Scan(ctx, cursor, match, r.scanCount).Result()
		if err != nil {
			return nil, err
		}
		for _, key := range keys {
			// SCAN may return a key more than once.
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, strings.TrimPrefix(key, r.prefix))
		}
		if next == 0 {
			return out, nil
		}
		cursor = next
	}
}

// Ping checks connectivity to the backing Redis.
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}
