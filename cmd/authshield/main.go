// Command authshield serves the authentication engine over gRPC.
//
// Configuration comes from the environment, optionally seeded from a .env
// file. An ops HTTP server exposes /metrics, /healthz and /readyz.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/MrEthical07/authshield"
	"github.com/MrEthical07/authshield/internal/logging"
	promexport "github.com/MrEthical07/authshield/metrics/export/prometheus"
	"github.com/MrEthical07/authshield/transport/grpcserver"
)

func main() {
	envFile := flag.String("env-file", ".env", "optional dotenv file loaded before the environment")
	flag.Parse()

	cfg, err := loadConfig(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(2)
	}

	logger := logging.New(cfg.logging())
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error().Err(err).Msg("authshield exited")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg serviceConfig, logger zerolog.Logger) error {
	engineCfg, err := cfg.engineConfig()
	if err != nil {
		return fmt.Errorf("engine config: %w", err)
	}

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{cfg.redisAddr()},
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
	})
	defer rdb.Close()

	stores, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stores.close()

	sink, closeSink, err := auditSink(cfg, logger)
	if err != nil {
		return err
	}

	engine, err := authshield.New().
		WithConfig(engineCfg).
		WithRedis(rdb, cfg.RedisPrefix).
		WithUserStore(stores.users).
		WithEventStore(stores.events).
		WithAuditSink(sink).
		WithLogger(logger).
		Build()
	if err != nil {
		closeSink()
		return fmt.Errorf("build engine: %w", err)
	}
	// The engine drains its audit buffer into the sink before the sink closes.
	defer closeSink()
	defer engine.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := engine.Ping(pingCtx); err != nil {
		logger.Warn().Err(err).Str("addr", cfg.redisAddr()).Msg("redis not reachable at startup")
	}
	cancel()

	report := engine.SecurityReport()
	logger.Info().
		Str("signing", report.SigningAlgorithm).
		Str("cipher", report.Cipher).
		Str("password_scheme", report.PasswordScheme).
		Dur("access_ttl", report.AccessTTL).
		Dur("refresh_ttl", report.RefreshTTL).
		Int("max_login_attempts", report.MaxLoginAttempts).
		Bool("refresh_reuse_detection", report.RefreshReuseDetection).
		Bool("totp_replay_protection", report.TOTPReplayProtection).
		Bool("risk_scoring", report.RiskScoringEnabled).
		Float64("risk_threshold", report.RiskThreshold).
		Bool("registration_limit", report.RegistrationLimitActive).
		Msg("engine ready")

	shutdownMeter, err := startOTel(ctx, cfg, engine, logger)
	if err != nil {
		return err
	}
	defer shutdownMeter()

	throttle := grpcserver.NewThrottle(grpcserver.ThrottleConfig{
		PerMinute: cfg.RateLimitPerMinute,
		PerHour:   cfg.RateLimitPerHour,
	})
	go throttle.Run(ctx, 10*time.Minute)

	grpcLog := logging.Component(logger, "grpc")
	plain, health, err := grpcserver.NewServer(engine, grpcLog, grpcserver.Options{Throttle: throttle})
	if err != nil {
		return err
	}

	errc := make(chan error, 3)
	servers := []*grpc.Server{plain}
	if err := serveGRPC(plain, cfg.GRPCURL, grpcLog, errc); err != nil {
		return err
	}

	if cfg.TLSEnabled {
		creds, err := grpcserver.ServerCredentials(grpcserver.TLSConfig{
			CertFile: cfg.TLSCertPath,
			KeyFile:  cfg.TLSKeyPath,
			CAFile:   cfg.TLSCAPath,
		})
		if err != nil {
			plain.Stop()
			return err
		}
		secure, _, err := grpcserver.NewServer(engine, grpcLog, grpcserver.Options{
			Throttle:      throttle,
			ServerOptions: []grpc.ServerOption{grpc.Creds(creds)},
		})
		if err != nil {
			plain.Stop()
			return err
		}
		if err := serveGRPC(secure, cfg.tlsAddr(), grpcLog, errc); err != nil {
			plain.Stop()
			return err
		}
		servers = append(servers, secure)
	}

	registry := promexport.NewRegistry(promexport.NewCollector(engine))
	ops := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           newOpsRouter(engine, registry),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("ops http listening")
		if err := ops.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("ops http: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown requested")
	case err = <-errc:
		logger.Error().Err(err).Msg("server failed")
	}

	health.SetServingStatus(grpcserver.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()
	if serr := ops.Shutdown(shutdownCtx); serr != nil {
		logger.Warn().Err(serr).Msg("ops http shutdown")
	}
	stopGRPC(shutdownCtx, servers)
	logger.Info().Msg("stopped")
	return err
}

func serveGRPC(srv *grpc.Server, addr string, log zerolog.Logger, errc chan<- error) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	go func() {
		log.Info().Str("addr", addr).Msg("grpc listening")
		if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errc <- fmt.Errorf("grpc %s: %w", addr, err)
		}
	}()
	return nil
}

// stopGRPC drains in-flight calls until ctx expires, then forces the rest.
func stopGRPC(ctx context.Context, servers []*grpc.Server) {
	done := make(chan struct{})
	go func() {
		for _, s := range servers {
			s.GracefulStop()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		for _, s := range servers {
			s.Stop()
		}
	}
}
