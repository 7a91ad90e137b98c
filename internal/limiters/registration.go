package limiters

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authshield/internal/rate"
	"github.com/MrEthical07/authshield/kvstore"
)

var (
	ErrRegistrationRateLimited = errors.New("registration rate limited")
	ErrRegistrationUnavailable = errors.New("registration limiter unavailable")
)

type RegistrationConfig struct {
	MaxAttempts int
	Cooldown    time.Duration
}

// RegistrationThrottle limits sign-ups per client IP.
type RegistrationThrottle struct {
	counter     *rate.Counter
	maxAttempts int64
}

func NewRegistrationThrottle(store kvstore.Store, cfg RegistrationConfig) *RegistrationThrottle {
	max := cfg.MaxAttempts
	if max <= 0 {
		max = 5
	}
	cd := cfg.Cooldown
	if cd <= 0 {
		cd = 15 * time.Minute
	}
	return &RegistrationThrottle{
		counter:     rate.NewCounter(store, "reg:", cd, rate.Fixed),
		maxAttempts: int64(max),
	}
}

// Enforce counts one registration attempt from ip. Requests without an IP
// are not throttled.
func (l *RegistrationThrottle) Enforce(ctx context.Context, ip string) error {
	if l == nil || ip == "" {
		return nil
	}
	count, err := l.counter.Hit(ctx, ip)
	if err != nil {
		return errors.Join(ErrRegistrationUnavailable, err)
	}
	if count > l.maxAttempts {
		return ErrRegistrationRateLimited
	}
	return nil
}
