package authshield

import (
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/MrEthical07/authshield/envelope"
	"github.com/MrEthical07/authshield/internal/audit"
	"github.com/MrEthical07/authshield/internal/limiters"
	"github.com/MrEthical07/authshield/jwt"
	"github.com/MrEthical07/authshield/kvstore"
	"github.com/MrEthical07/authshield/password"
	"github.com/MrEthical07/authshield/risk"
	"github.com/MrEthical07/authshield/tokens"
	"github.com/MrEthical07/authshield/totp"
)

// Builder assembles an Engine. A Builder is single use.
type Builder struct {
	config Config
	store  kvstore.Store
	redis  redis.UniversalClient
	prefix string

	users      UserStore
	events     EventStore
	auditSink  AuditSink
	classifier risk.LocationClassifier
	logger     *zerolog.Logger
	now        func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets the key-value substrate directly. It takes precedence over
// WithRedis.
func (b *Builder) WithStore(store kvstore.Store) *Builder {
	b.store = store
	return b
}

// WithRedis uses client as the key-value substrate. Every key is prefixed
// with prefix.
func (b *Builder) WithRedis(client redis.UniversalClient, prefix string) *Builder {
	b.redis = client
	b.prefix = prefix
	return b
}

func (b *Builder) WithUserStore(users UserStore) *Builder {
	b.users = users
	return b
}

// WithEventStore sets the behavior history used by risk scoring. It is
// required unless Risk.Enabled is false.
func (b *Builder) WithEventStore(events EventStore) *Builder {
	b.events = events
	return b
}

// WithAuditSink sets where audit events go. Without it events are written
// to the engine logger.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLocationClassifier replaces the CIDR-based suspicious-location check.
func (b *Builder) WithLocationClassifier(c risk.LocationClassifier) *Builder {
	b.classifier = c
	return b
}

func (b *Builder) WithLogger(l zerolog.Logger) *Builder {
	b.logger = &l
	return b
}

// WithClock overrides the time source of every time-dependent component.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and wires every component.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store := b.store
	if store == nil {
		if b.redis == nil {
			return nil, errors.New("key-value store or redis client required")
		}
		store = kvstore.NewRedis(b.redis, kvstore.WithPrefix(b.prefix))
	}
	if b.users == nil {
		return nil, errors.New("user store required")
	}
	if cfg.Risk.Enabled && b.events == nil {
		return nil, errors.New("event store required when risk scoring is enabled")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := zerolog.Nop()
	if b.logger != nil {
		logger = *b.logger
	}

	engine := &Engine{
		config:  cloneConfig(cfg),
		store:   store,
		users:   b.users,
		events:  b.events,
		logger:  logger.With().Str("component", "engine").Logger(),
		now:     now,
		metrics: NewMetrics(cfg.Metrics),
	}

	// -------- CRYPTO --------
	env, err := envelope.NewFromConfig(envelope.Config{
		Secret:         cfg.Crypto.Secret,
		Algorithm:      envelope.Algorithm(cfg.Crypto.Algorithm),
		AssociatedData: cfg.Crypto.AssociatedData,
		SeparateKeys:   cfg.Crypto.SeparateKeys,
	})
	if err != nil {
		return nil, err
	}
	engine.envelope = env

	// -------- LIMITERS --------
	engine.bruteForce = limiters.NewBruteForce(store, limiters.BruteForceConfig{
		MaxAttempts: cfg.RateLimit.MaxLoginAttempts,
		Window:      cfg.RateLimit.LoginWindow,
		OnThreshold: engine.onLockoutThreshold,
	})
	engine.twoFactorLimiter = limiters.NewTwoFactorLimiter(store, limiters.TwoFactorConfig{
		MaxAttempts: cfg.RateLimit.MaxTwoFactorAttempts,
		Cooldown:    cfg.RateLimit.TwoFactorCooldown,
	})
	if cfg.RateLimit.EnableRegistrationLimit {
		engine.registrationLimiter = limiters.NewRegistrationThrottle(store, limiters.RegistrationConfig{
			MaxAttempts: cfg.RateLimit.RegistrationMaxAttempts,
			Cooldown:    cfg.RateLimit.RegistrationCooldown,
		})
	}

	// -------- TOTP --------
	engine.totp = totp.New(totp.Config{
		Issuer:          cfg.TOTP.Issuer,
		Algorithm:       cfg.TOTP.Algorithm,
		Digits:          cfg.TOTP.Digits,
		Period:          cfg.TOTP.Period,
		Skew:            cfg.TOTP.Skew,
		BackupCodeCount: cfg.TOTP.BackupCodeCount,
	}, totp.WithClock(now))

	// -------- RISK --------
	if cfg.Risk.Enabled {
		classifier := b.classifier
		if classifier == nil {
			c, err := risk.NewCIDRClassifier(cfg.Risk.SuspiciousRanges...)
			if err != nil {
				return nil, err
			}
			classifier = c
		}
		rc := risk.DefaultConfig()
		rc.Threshold = cfg.Risk.Threshold
		rc.Location = cfg.Risk.Location
		if cfg.Risk.ActionCeiling > 0 {
			rc.ActionCeiling = cfg.Risk.ActionCeiling
		}
		if cfg.Risk.StatsWindow > 0 {
			rc.StatsWindow = cfg.Risk.StatsWindow
		}
		scorer, err := risk.NewScorer(store, b.events, rc,
			risk.WithClassifier(classifier),
			risk.WithFlagHandler(engine.onAnomaly),
		)
		if err != nil {
			return nil, err
		}
		engine.scorer = scorer
	}

	// -------- TOKENS --------
	signer, err := jwt.NewManager(jwt.Config{
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}
	tm, err := tokens.New(store, signer, cfg.Tokens.toManagerConfig(), tokens.WithClock(now))
	if err != nil {
		return nil, err
	}
	engine.tokens = tm

	// -------- PASSWORDS --------
	chain, err := newPasswordChain(cfg.Password)
	if err != nil {
		return nil, err
	}
	engine.passwords = chain

	// -------- AUDIT --------
	sink := b.auditSink
	if sink == nil {
		sink = audit.NewZerologSink(logger.With().Str("component", "audit").Logger())
	}
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, sink)

	b.built = true

	return engine, nil
}

// newPasswordChain hashes with the configured scheme and still verifies
// hashes produced by the other one.
func newPasswordChain(cfg PasswordConfig) (*password.Chain, error) {
	argon, err := password.NewArgon2(cfg.Argon2)
	if err != nil {
		return nil, err
	}
	bc, err := password.NewBcrypt(cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	if cfg.Scheme == "bcrypt" {
		return password.NewChain(bc, argon)
	}
	return password.NewChain(argon, bc)
}
