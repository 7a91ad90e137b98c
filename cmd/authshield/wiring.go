package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrEthical07/authshield"
	"github.com/MrEthical07/authshield/internal/audit"
	"github.com/MrEthical07/authshield/internal/logging"
	"github.com/MrEthical07/authshield/internal/memstore"
	"github.com/MrEthical07/authshield/internal/pgstore"
	otelexport "github.com/MrEthical07/authshield/metrics/export/otel"
	promexport "github.com/MrEthical07/authshield/metrics/export/prometheus"
)

type storeSet struct {
	users  authshield.UserStore
	events authshield.EventStore
	close  func()
}

// openStores uses Postgres when DATABASE_URL is set and in-memory stores
// otherwise.
func openStores(ctx context.Context, cfg serviceConfig, logger zerolog.Logger) (storeSet, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn().Msg("DATABASE_URL not set, users and events are kept in memory")
		return storeSet{
			users:  memstore.NewUsers(),
			events: memstore.NewEvents(memstore.DefaultMaxPerUser),
			close:  func() {},
		}, nil
	}

	if err := pgstore.Migrate(cfg.DatabaseURL); err != nil {
		return storeSet{}, err
	}
	pool, err := pgstore.NewPool(ctx, cfg.DatabaseURL, 0, 5*time.Second)
	if err != nil {
		return storeSet{}, err
	}
	users, err := pgstore.NewUsers(pool)
	if err != nil {
		pool.Close()
		return storeSet{}, err
	}
	events, err := pgstore.NewEvents(pool)
	if err != nil {
		pool.Close()
		return storeSet{}, err
	}
	logger.Info().Msg("postgres stores ready")
	return storeSet{users: users, events: events, close: pool.Close}, nil
}

// auditSink always logs audit events and also publishes them to Kafka when
// brokers are configured.
func auditSink(cfg serviceConfig, logger zerolog.Logger) (authshield.AuditSink, func(), error) {
	logSink := audit.NewZerologSink(logging.Component(logger, "audit"))
	brokers := cfg.kafkaBrokers()
	if len(brokers) == 0 {
		return logSink, func() {}, nil
	}

	writer, err := audit.NewKafkaWriter(audit.KafkaConfig{
		Brokers:      brokers,
		Topic:        cfg.KafkaAuditTopic,
		WriteTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, nil, err
	}
	kafkaLog := logging.Component(logger, "audit_kafka")
	kafka := audit.NewKafkaSink(writer, 5*time.Second, func(err error) {
		kafkaLog.Warn().Err(err).Msg("audit publish failed")
	})
	closeFn := func() {
		if err := kafka.Close(); err != nil {
			kafkaLog.Warn().Err(err).Msg("close kafka writer")
		}
	}
	logger.Info().Strs("brokers", brokers).Str("topic", cfg.KafkaAuditTopic).Msg("kafka audit sink enabled")
	return audit.MultiSink{logSink, kafka}, closeFn, nil
}

// startOTel pushes engine metrics to an OTLP/HTTP collector when
// OTEL_EXPORTER_OTLP_ENDPOINT is set.
func startOTel(ctx context.Context, cfg serviceConfig, engine *authshield.Engine, logger zerolog.Logger) (func(), error) {
	if cfg.OTLPEndpoint == "" {
		return func() {}, nil
	}

	exporter, err := otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpoint(cfg.OTLPEndpoint), otlpmetrichttp.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("otlp exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(15*time.Second))),
	)
	exp, err := otelexport.NewExporter(provider.Meter("github.com/MrEthical07/authshield"), engine)
	if err != nil {
		_ = provider.Shutdown(ctx)
		return nil, err
	}
	logger.Info().Str("endpoint", cfg.OTLPEndpoint).Msg("otlp metrics enabled")

	return func() {
		_ = exp.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("otlp shutdown")
		}
	}, nil
}

type pinger interface {
	Ping(ctx context.Context) error
}

func newOpsRouter(engine pinger, registry *prometheus.Registry) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promexport.Handler(registry)).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	r.HandleFunc("/readyz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		if err := engine.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"error":  authshield.PublicMessage(err),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}).Methods(http.MethodGet)
	return r
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
