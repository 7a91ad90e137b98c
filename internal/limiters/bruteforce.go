package limiters

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/authshield/internal/rate"
	"github.com/MrEthical07/authshield/kvstore"
)

const (
	defaultBruteForceAttempts = 5
	defaultBruteForceWindow   = 15 * time.Minute
	bruteForcePrefix          = "bf:"
)

// ErrBruteForceUnavailable indicates the failure counter store is unreachable.
var ErrBruteForceUnavailable = errors.New("brute force store unavailable")

// BruteForceConfig holds configuration for the brute-force guard.
type BruteForceConfig struct {
	MaxAttempts int
	Window      time.Duration
	// OnThreshold runs once, when a failure brings the count exactly to MaxAttempts.
	OnThreshold func(ctx context.Context, identity string, count int64)
}

// BruteForce tracks failed attempts per identity.
//
// States: clear (no counter), accumulating (1..MaxAttempts-1), blocked
// (>= MaxAttempts). Increments are atomic in the store; concurrent failures
// may race, so blocking is best effort.
type BruteForce struct {
	counter     *rate.Counter
	maxAttempts int64
	onThreshold func(ctx context.Context, identity string, count int64)
}

// NewBruteForce creates the guard. Zero-value fields fall back to 5 attempts / 15m.
func NewBruteForce(store kvstore.Store, cfg BruteForceConfig) *BruteForce {
	max := cfg.MaxAttempts
	if max <= 0 {
		max = defaultBruteForceAttempts
	}
	window := cfg.Window
	if window <= 0 {
		window = defaultBruteForceWindow
	}
	return &BruteForce{
		counter:     rate.NewCounter(store, bruteForcePrefix, window, rate.Sliding),
		maxAttempts: int64(max),
		onThreshold: cfg.OnThreshold,
	}
}

// NormalizeIdentity lower-cases and trims an identity such as an email.
func NormalizeIdentity(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}

// IsBlocked reports whether identity reached the failure ceiling. A store
// failure returns true with the error.
func (b *BruteForce) IsBlocked(ctx context.Context, identity string) (bool, error) {
	if b == nil {
		return false, nil
	}
	count, err := b.counter.Count(ctx, NormalizeIdentity(identity))
	if err != nil {
		return true, errors.Join(ErrBruteForceUnavailable, err)
	}
	return count >= b.maxAttempts, nil
}

// RecordFailure increments the failure count and re-arms the window.
func (b *BruteForce) RecordFailure(ctx context.Context, identity string) (int64, error) {
	if b == nil {
		return 0, nil
	}
	id := NormalizeIdentity(identity)
	count, err := b.counter.Hit(ctx, id)
	if err != nil {
		return 0, errors.Join(ErrBruteForceUnavailable, err)
	}
	if count == b.maxAttempts && b.onThreshold != nil {
		b.onThreshold(ctx, id, count)
	}
	return count, nil
}

// Clear removes the counter, returning identity to the clear state.
func (b *BruteForce) Clear(ctx context.Context, identity string) error {
	if b == nil {
		return nil
	}
	if err := b.counter.Reset(ctx, NormalizeIdentity(identity)); err != nil {
		return errors.Join(ErrBruteForceUnavailable, err)
	}
	return nil
}

// BlockTimeRemaining returns the counter TTL. ok is false when no counter exists.
func (b *BruteForce) BlockTimeRemaining(ctx context.Context, identity string) (time.Duration, bool, error) {
	if b == nil {
		return 0, false, nil
	}
	d, ok, err := b.counter.Remaining(ctx, NormalizeIdentity(identity))
	if err != nil {
		return 0, false, errors.Join(ErrBruteForceUnavailable, err)
	}
	return d, ok, nil
}

// Attempts returns the current failure count for identity.
func (b *BruteForce) Attempts(ctx context.Context, identity string) (int64, error) {
	if b == nil {
		return 0, nil
	}
	n, err := b.counter.Count(ctx, NormalizeIdentity(identity))
	if err != nil {
		return 0, errors.Join(ErrBruteForceUnavailable, err)
	}
	return n, nil
}

// MaxAttempts returns the configured ceiling.
func (b *BruteForce) MaxAttempts() int64 {
	if b == nil {
		return 0
	}
	return b.maxAttempts
}
