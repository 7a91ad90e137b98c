package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/MrEthical07/authshield"
	"github.com/MrEthical07/authshield/internal/logging"
)

// serviceConfig is the process configuration read from the environment and
// an optional .env file. Keys are the lower-cased variable names.
type serviceConfig struct {
	JWTSecret     string `mapstructure:"jwt_super_secret_word"`
	JWTExpiresIn  string `mapstructure:"jwt_expires_in"`
	JWTRefreshIn  string `mapstructure:"jwt_refresh_in"`
	EncryptionKey string `mapstructure:"encryption_key"`

	RedisHost     string `mapstructure:"redis_host"`
	RedisPort     int    `mapstructure:"redis_port"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisUsername string `mapstructure:"redis_username"`
	RedisPrefix   string `mapstructure:"redis_prefix"`

	AnomalyThreshold float64 `mapstructure:"anomaly_threshold"`
	TOTPIssuer       string  `mapstructure:"totp_issuer"`
	TZName           string  `mapstructure:"tz_name"`

	GRPCURL     string `mapstructure:"grpc_url"`
	GRPCPackage string `mapstructure:"grpc_package"`
	TLSEnabled  bool   `mapstructure:"tls_enabled"`
	TLSPort     int    `mapstructure:"tls_port"`
	TLSCertPath string `mapstructure:"tls_cert_path"`
	TLSKeyPath  string `mapstructure:"tls_key_path"`
	TLSCAPath   string `mapstructure:"tls_ca_path"`

	RateLimitPerMinute int `mapstructure:"rate_limit_per_minute"`
	RateLimitPerHour   int `mapstructure:"rate_limit_per_hour"`

	DatabaseURL     string `mapstructure:"database_url"`
	KafkaBrokers    string `mapstructure:"kafka_brokers"`
	KafkaAuditTopic string `mapstructure:"kafka_audit_topic"`
	OTLPEndpoint    string `mapstructure:"otel_exporter_otlp_endpoint"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
	HTTPAddr  string `mapstructure:"http_addr"`

	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

var configDefaults = map[string]any{
	"jwt_expires_in":              "15m",
	"jwt_refresh_in":              "7d",
	"redis_host":                  "redis",
	"redis_port":                  6379,
	"redis_prefix":                "",
	"anomaly_threshold":           0.7,
	"totp_issuer":                 "Auth Microservice",
	"tz_name":                     "",
	"grpc_url":                    "0.0.0.0:50051",
	"grpc_package":                "auth",
	"tls_enabled":                 false,
	"tls_port":                    50052,
	"rate_limit_per_minute":       100,
	"rate_limit_per_hour":         1000,
	"kafka_audit_topic":           "auth-audit",
	"log_level":                   "info",
	"log_format":                  "json",
	"http_addr":                   ":9090",
	"shutdown_timeout":            "15s",
	"jwt_super_secret_word":       "",
	"encryption_key":              "",
	"redis_password":              "",
	"redis_username":              "",
	"tls_cert_path":               "",
	"tls_key_path":                "",
	"tls_ca_path":                 "",
	"database_url":                "",
	"kafka_brokers":               "",
	"otel_exporter_otlp_endpoint": "",
}

// loadConfig reads envFile when it exists, then the process environment.
// Variables already set in the environment win over the file.
func loadConfig(envFile string) (serviceConfig, error) {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return serviceConfig{}, fmt.Errorf("load %s: %w", envFile, err)
			}
		}
	}

	v := viper.New()
	for key, def := range configDefaults {
		v.SetDefault(key, def)
		if err := v.BindEnv(key, strings.ToUpper(key)); err != nil {
			return serviceConfig{}, err
		}
	}

	var cfg serviceConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return serviceConfig{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, cfg.validate()
}

func (c serviceConfig) validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SUPER_SECRET_WORD is required"))
	}
	if c.EncryptionKey == "" {
		errs = append(errs, errors.New("ENCRYPTION_KEY is required"))
	}
	if _, err := parseDuration(c.JWTExpiresIn); err != nil {
		errs = append(errs, fmt.Errorf("JWT_EXPIRES_IN: %w", err))
	}
	if _, err := parseDuration(c.JWTRefreshIn); err != nil {
		errs = append(errs, fmt.Errorf("JWT_REFRESH_IN: %w", err))
	}
	if c.AnomalyThreshold < 0 || c.AnomalyThreshold > 1 {
		errs = append(errs, fmt.Errorf("ANOMALY_THRESHOLD must be within [0,1] (got: %v)", c.AnomalyThreshold))
	}
	if c.TLSEnabled && (c.TLSCertPath == "" || c.TLSKeyPath == "") {
		errs = append(errs, errors.New("TLS_CERT_PATH and TLS_KEY_PATH are required when TLS_ENABLED"))
	}
	if c.KafkaBrokers != "" && c.KafkaAuditTopic == "" {
		errs = append(errs, errors.New("KAFKA_AUDIT_TOPIC is required when KAFKA_BROKERS is set"))
	}
	if _, err := c.location(); err != nil {
		errs = append(errs, fmt.Errorf("TZ_NAME: %w", err))
	}
	logCfg := c.logging()
	logCfg.ApplyDefaults()
	if err := logCfg.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// parseDuration accepts Go durations plus a whole-day form such as "7d".
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid day duration %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive (got: %s)", s)
	}
	return d, nil
}

func (c serviceConfig) location() (*time.Location, error) {
	if c.TZName == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.TZName)
}

func (c serviceConfig) logging() logging.Config {
	return logging.Config{Level: c.LogLevel, Format: c.LogFormat}
}

func (c serviceConfig) redisAddr() string {
	return c.RedisHost + ":" + strconv.Itoa(c.RedisPort)
}

func (c serviceConfig) tlsAddr() string {
	host := c.GRPCURL
	if i := strings.LastIndex(host, ":"); i >= 0 {
		host = host[:i]
	}
	return host + ":" + strconv.Itoa(c.TLSPort)
}

func (c serviceConfig) kafkaBrokers() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// engineConfig maps the service settings onto the library config.
func (c serviceConfig) engineConfig() (authshield.Config, error) {
	access, err := parseDuration(c.JWTExpiresIn)
	if err != nil {
		return authshield.Config{}, err
	}
	refresh, err := parseDuration(c.JWTRefreshIn)
	if err != nil {
		return authshield.Config{}, err
	}
	loc, err := c.location()
	if err != nil {
		return authshield.Config{}, err
	}

	cfg := authshield.DefaultConfig()
	cfg.Crypto.Secret = c.EncryptionKey
	cfg.JWT.PrivateKey = []byte(c.JWTSecret)
	cfg.Tokens.AccessTTL = access
	cfg.Tokens.RefreshTTL = refresh
	if cfg.Tokens.RevocationTTL < refresh {
		cfg.Tokens.RevocationTTL = refresh
	}
	cfg.Risk.Threshold = c.AnomalyThreshold
	cfg.Risk.Location = loc
	cfg.TOTP.Issuer = c.TOTPIssuer
	return cfg, cfg.Validate()
}
