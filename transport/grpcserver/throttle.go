package grpcserver

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ThrottleConfig bounds requests per client IP. A zero limit disables that
// window.
type ThrottleConfig struct {
	PerMinute int
	PerHour   int
	// IdleTTL is how long an unused client entry survives a sweep.
	IdleTTL time.Duration
}

// DefaultThrottleConfig allows 100 requests a minute and 1000 an hour.
func DefaultThrottleConfig() ThrottleConfig {
	return ThrottleConfig{PerMinute: 100, PerHour: 1000, IdleTTL: 2 * time.Hour}
}

type clientLimiter struct {
	minute   *rate.Limiter
	hour     *rate.Limiter
	lastSeen time.Time
}

func (c *clientLimiter) allow(now time.Time) bool {
	// Reserve from both so one window cannot drain without the other.
	var rs []*rate.Reservation
	for _, l := range []*rate.Limiter{c.minute, c.hour} {
		if l == nil {
			continue
		}
		r := l.ReserveN(now, 1)
		if !r.OK() || r.DelayFrom(now) > 0 {
			r.CancelAt(now)
			for _, prev := range rs {
				prev.CancelAt(now)
			}
			return false
		}
		rs = append(rs, r)
	}
	return true
}

// Throttle is a per-client token-bucket limiter shared by all methods.
type Throttle struct {
	cfg ThrottleConfig
	now func() time.Time

	mu      sync.Mutex
	clients map[string]*clientLimiter
}

// NewThrottle returns a Throttle for cfg.
func NewThrottle(cfg ThrottleConfig) *Throttle {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 2 * time.Hour
	}
	return &Throttle{cfg: cfg, now: time.Now, clients: make(map[string]*clientLimiter)}
}

// Allow reports whether client may make one more request.
func (t *Throttle) Allow(client string) bool {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.clients[client]
	if !ok {
		c = &clientLimiter{}
		if t.cfg.PerMinute > 0 {
			c.minute = rate.NewLimiter(rate.Every(time.Minute/time.Duration(t.cfg.PerMinute)), t.cfg.PerMinute)
		}
		if t.cfg.PerHour > 0 {
			c.hour = rate.NewLimiter(rate.Every(time.Hour/time.Duration(t.cfg.PerHour)), t.cfg.PerHour)
		}
		t.clients[client] = c
	}
	c.lastSeen = now
	return c.allow(now)
}

// Sweep drops clients idle for longer than IdleTTL and returns how many
// were removed.
func (t *Throttle) Sweep() int {
	cutoff := t.now().Add(-t.cfg.IdleTTL)

	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for k, c := range t.clients {
		if c.lastSeen.Before(cutoff) {
			delete(t.clients, k)
			removed++
		}
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (t *Throttle) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Sweep()
		}
	}
}

// UnaryInterceptor rejects callers over their budget with ResourceExhausted.
func (t *Throttle) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !t.Allow(ClientIP(ctx)) {
			return nil, status.Error(codes.ResourceExhausted, "Too many requests")
		}
		return handler(ctx, req)
	}
}
