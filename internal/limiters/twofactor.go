package limiters

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authshield/internal/rate"
	"github.com/MrEthical07/authshield/kvstore"
)

const (
	defaultTwoFactorMaxAttempts = 5
	defaultTwoFactorCooldown    = 5 * time.Minute
)

var (
	ErrTwoFactorRateLimited = errors.New("two-factor rate limited")
	ErrTwoFactorUnavailable = errors.New("two-factor limiter unavailable")
)

// TwoFactorConfig holds thresholds for the second-factor limiter.
type TwoFactorConfig struct {
	MaxAttempts int
	Cooldown    time.Duration
}

// TwoFactorLimiter throttles TOTP and backup-code failures per user.
type TwoFactorLimiter struct {
	counter     *rate.Counter
	maxAttempts int64
}

// NewTwoFactorLimiter creates the limiter. Zero-value fields fall back to
// 5 attempts / 5 minutes.
func NewTwoFactorLimiter(store kvstore.Store, cfg TwoFactorConfig) *TwoFactorLimiter {
	max := cfg.MaxAttempts
	if max <= 0 {
		max = defaultTwoFactorMaxAttempts
	}
	cd := cfg.Cooldown
	if cd <= 0 {
		cd = defaultTwoFactorCooldown
	}
	return &TwoFactorLimiter{
		counter:     rate.NewCounter(store, "2fa:", cd, rate.Fixed),
		maxAttempts: int64(max),
	}
}

func (l *TwoFactorLimiter) Check(ctx context.Context, userID string) error {
	if l == nil {
		return nil
	}
	count, err := l.counter.Count(ctx, userID)
	if err != nil {
		return errors.Join(ErrTwoFactorUnavailable, err)
	}
	if count >= l.maxAttempts {
		return ErrTwoFactorRateLimited
	}
	return nil
}

func (l *TwoFactorLimiter) RecordFailure(ctx context.Context, userID string) error {
	if l == nil {
		return nil
	}
	count, err := l.counter.Hit(ctx, userID)
	if err != nil {
		return errors.Join(ErrTwoFactorUnavailable, err)
	}
	if count >= l.maxAttempts {
		return ErrTwoFactorRateLimited
	}
	return nil
}

func (l *TwoFactorLimiter) Reset(ctx context.Context, userID string) error {
	if l == nil {
		return nil
	}
	if err := l.counter.Reset(ctx, userID); err != nil {
		return errors.Join(ErrTwoFactorUnavailable, err)
	}
	return nil
}
