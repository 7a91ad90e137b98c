// Command authshield-loadtest drives concurrent wrong-password logins
// against the engine and reports lockout convergence and latency.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authshield"
	"github.com/MrEthical07/authshield/internal/audit"
	"github.com/MrEthical07/authshield/internal/memstore"
)

const seedPassword = "LoadTestPass123!"

func main() {
	var (
		users      = flag.Int("users", 200, "number of accounts to seed")
		workers    = flag.Int("workers", 64, "number of concurrent workers")
		attempts   = flag.Int("attempts", 10, "wrong-password attempts per account")
		redisAddr  = flag.String("redis", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		floor      = flag.Duration("floor", 0, "credential check floor (service default is 51ms)")
		bcryptCost = flag.Int("bcrypt-cost", 4, "bcrypt cost for seeded accounts")
	)
	flag.Parse()

	if *users <= 0 || *workers <= 0 || *attempts <= 0 {
		fmt.Fprintln(os.Stderr, "users, workers, and attempts must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()
	client, cleanup, err := openRedis(*redisAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "redis: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	engine, err := buildEngine(client, *floor, *bcryptCost)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	fmt.Printf("seeding %d accounts...\n", *users)
	startSeed := time.Now()
	emails, err := seedAccounts(ctx, engine, *users)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	res := runAttackPhase(ctx, engine, emails, *attempts, *workers)
	lockedOut := countLocked(ctx, engine, emails)

	fmt.Println("---- results ----")
	printStats("login", res.stats)
	fmt.Printf("invalid=%d blocked=%d unexpected=%d\n", res.invalid, res.blocked, res.unexpected)
	// Concurrent attempts on one account can pass the gate together, so
	// invalid may exceed the threshold times the account count.
	fmt.Printf("over-admitted=%d\n", res.invalid-int64(min(*attempts, maxLoginAttempts)*len(emails)))
	fmt.Printf("accounts locked: %d/%d\n", lockedOut, len(emails))
	if res.unexpected > 0 || (*attempts >= maxLoginAttempts && lockedOut != len(emails)) {
		fmt.Println("lockout did NOT converge")
		os.Exit(1)
	}
	fmt.Println("lockout converged")
}

var maxLoginAttempts = authshield.DefaultConfig().RateLimit.MaxLoginAttempts

func buildEngine(client redis.UniversalClient, floor time.Duration, bcryptCost int) (*authshield.Engine, error) {
	cfg := authshield.DefaultConfig()
	cfg.Crypto.Secret = "loadtest-encryption-key"
	cfg.JWT.PrivateKey = []byte("loadtest-jwt-secret")
	cfg.Password.Scheme = "bcrypt"
	cfg.Password.BcryptCost = bcryptCost
	cfg.Timing.LoginFloor = floor
	cfg.RateLimit.EnableRegistrationLimit = false
	cfg.Risk.Enabled = false

	return authshield.New().
		WithConfig(cfg).
		WithRedis(client, fmt.Sprintf("loadtest:%d:", time.Now().UnixNano())).
		WithUserStore(memstore.NewUsers()).
		WithAuditSink(audit.NoOpSink{}).
		Build()
}

func seedAccounts(ctx context.Context, engine *authshield.Engine, n int) ([]string, error) {
	emails := make([]string, n)
	for i := range emails {
		emails[i] = fmt.Sprintf("load-%d@example.com", i)
		if _, err := engine.Register(ctx, authshield.RegisterRequest{Email: emails[i], Password: seedPassword}); err != nil {
			return nil, fmt.Errorf("register %s: %w", emails[i], err)
		}
	}
	return emails, nil
}

// countLocked counts accounts that refuse even the correct password.
func countLocked(ctx context.Context, engine *authshield.Engine, emails []string) int {
	locked := 0
	for _, email := range emails {
		_, err := engine.Login(ctx, authshield.LoginRequest{Email: email, Password: seedPassword})
		if errors.Is(err, authshield.ErrTooManyAttempts) {
			locked++
		}
	}
	return locked
}

func openRedis(addr string) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		fmt.Printf("using redis at %s\n", addr)
		return client, func() { _ = client.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("start miniredis: %w", err)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	fmt.Printf("using miniredis at %s\n", mr.Addr())
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

type attackResult struct {
	stats      phaseStats
	invalid    int64
	blocked    int64
	unexpected int64
}

// runAttackPhase sends attempts wrong-password logins per account, spread
// over workers goroutines in interleaved order.
func runAttackPhase(ctx context.Context, engine *authshield.Engine, emails []string, attempts, workers int) attackResult {
	var (
		wg        sync.WaitGroup
		cursor    int64
		res       attackResult
		ops       = len(emails) * attempts
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				email := emails[i%len(emails)]
				t0 := time.Now()
				_, err := engine.Login(ctx, authshield.LoginRequest{
					Email:     email,
					Password:  "WrongPass123!",
					IP:        "198.51.100.1",
					UserAgent: "authshield-loadtest",
				})
				d := time.Since(t0)
				switch {
				case errors.Is(err, authshield.ErrInvalidCredentials):
					atomic.AddInt64(&res.invalid, 1)
				case errors.Is(err, authshield.ErrTooManyAttempts):
					atomic.AddInt64(&res.blocked, 1)
				default:
					atomic.AddInt64(&res.unexpected, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	res.stats = computeStats(time.Since(start), latencies, res.unexpected)
	return res
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
