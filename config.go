package authshield

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authshield/envelope"
	"github.com/MrEthical07/authshield/password"
	"github.com/MrEthical07/authshield/risk"
	"github.com/MrEthical07/authshield/tokens"
)

// Config is the complete engine configuration. Start from DefaultConfig and
// override fields; Build validates the result.
type Config struct {
	Crypto    CryptoConfig
	JWT       JWTConfig
	Tokens    TokensConfig
	RateLimit RateLimitConfig
	TOTP      TOTPConfig
	Risk      RiskConfig
	Password  PasswordConfig
	Timing    TimingConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

/*
====================================
CRYPTO CONFIG
====================================
*/

// CryptoConfig keys the envelope that seals tokens and TOTP secrets.
type CryptoConfig struct {
	Secret         string
	Algorithm      string // "aes-256-gcm" (default) or "chacha20-poly1305"
	AssociatedData string
	SeparateKeys   bool
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig selects the token signing key.
type JWTConfig struct {
	SigningMethod string // "hs256" (default) or "ed25519"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
}

/*
====================================
TOKENS CONFIG
====================================
*/

// TokensConfig controls token lifetimes and revocation marker TTLs.
type TokensConfig struct {
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
	RevocationTTL    time.Duration
	RevocationLeeway time.Duration
	// ReuseDetection revokes every token of the user when an already
	// rotated refresh token is presented again.
	ReuseDetection bool
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig sets the brute-force guard and the secondary throttles.
type RateLimitConfig struct {
	MaxLoginAttempts        int
	LoginWindow             time.Duration
	MaxTwoFactorAttempts    int
	TwoFactorCooldown       time.Duration
	RegistrationMaxAttempts int
	RegistrationCooldown    time.Duration
	EnableRegistrationLimit bool
}

/*
====================================
TOTP CONFIG
====================================
*/

// TOTPConfig holds enrollment and verification parameters.
type TOTPConfig struct {
	Issuer          string
	Algorithm       string
	Digits          int
	Period          int
	Skew            int
	BackupCodeCount int
	QRSize          int
	// EnforceReplayProtection rejects a code whose time step was already
	// used by the same user.
	EnforceReplayProtection bool
}

/*
====================================
RISK CONFIG
====================================
*/

// RiskConfig tunes behavior analysis. Scoring is advisory.
type RiskConfig struct {
	Enabled          bool
	Threshold        float64
	SuspiciousRanges []string
	Location         *time.Location
	ActionCeiling    int64
	StatsWindow      int
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig selects the hashing scheme and strength policy. Hashes of
// the other scheme are still verified.
type PasswordConfig struct {
	Scheme        string // "argon2id" (default) or "bcrypt"
	Argon2        password.Argon2Config
	BcryptCost    int
	Policy        password.Policy
	EnforcePolicy bool
	// UpgradeOnLogin rehashes a verified password with the primary scheme
	// when the stored hash uses another scheme or weaker parameters.
	UpgradeOnLogin bool
}

// TimingConfig sets the minimum duration of a credential check.
type TimingConfig struct {
	LoginFloor time.Duration
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig toggles in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns production defaults. Crypto.Secret and
// JWT.PrivateKey must still be supplied.
func DefaultConfig() Config {
	tc := tokens.DefaultConfig()
	rc := risk.DefaultConfig()
	return Config{
		Crypto: CryptoConfig{
			Algorithm:      string(envelope.AESGCM),
			AssociatedData: envelope.DefaultAssociatedData,
		},
		JWT: JWTConfig{
			SigningMethod: "hs256",
		},
		Tokens: TokensConfig{
			AccessTTL:        tc.AccessTTL,
			RefreshTTL:       tc.RefreshTTL,
			RevocationTTL:    tc.RevocationTTL,
			RevocationLeeway: tc.RevocationLeeway,
			ReuseDetection:   true,
		},
		RateLimit: RateLimitConfig{
			MaxLoginAttempts:        5,
			LoginWindow:             15 * time.Minute,
			MaxTwoFactorAttempts:    5,
			TwoFactorCooldown:       5 * time.Minute,
			RegistrationMaxAttempts: 5,
			RegistrationCooldown:    15 * time.Minute,
			EnableRegistrationLimit: true,
		},
		TOTP: TOTPConfig{
			Issuer:          "Auth Microservice",
			Algorithm:       "SHA1",
			Digits:          6,
			Period:          30,
			Skew:            1,
			BackupCodeCount: 10,
			QRSize:          200,

			EnforceReplayProtection: true,
		},
		Risk: RiskConfig{
			Enabled:          true,
			Threshold:        rc.Threshold,
			SuspiciousRanges: append([]string(nil), risk.DefaultSuspiciousRanges...),
			Location:         time.Local,
			ActionCeiling:    rc.ActionCeiling,
			StatsWindow:      rc.StatsWindow,
		},
		Password: PasswordConfig{
			Scheme:        "argon2id",
			Argon2:        password.DefaultArgon2Config(),
			BcryptCost:    password.DefaultBcryptCost,
			Policy:        password.DefaultPolicy(),
			EnforcePolicy: true,

			UpgradeOnLogin: true,
		},
		Timing: TimingConfig{
			LoginFloor: 51 * time.Millisecond,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	out.Risk.SuspiciousRanges = append([]string(nil), cfg.Risk.SuspiciousRanges...)
	out.Password.Policy.Common = append([]string(nil), cfg.Password.Policy.Common...)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (c TokensConfig) toManagerConfig() tokens.Config {
	return tokens.Config{
		AccessTTL:        c.AccessTTL,
		RefreshTTL:       c.RefreshTTL,
		RevocationTTL:    c.RevocationTTL,
		RevocationLeeway: c.RevocationLeeway,
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks the configuration for values Build cannot work with.
func (c *Config) Validate() error {
	// Crypto
	if c.Crypto.Secret == "" {
		return errors.New("Crypto Secret is required")
	}
	switch envelope.Algorithm(c.Crypto.Algorithm) {
	case envelope.AESGCM, envelope.ChaCha20Poly1305, "":
	default:
		return fmt.Errorf("Crypto Algorithm %q is not supported", c.Crypto.Algorithm)
	}

	// JWT
	switch c.JWT.SigningMethod {
	case "hs256":
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New("hs256 requires PrivateKey")
		}
	case "ed25519":
		if len(c.JWT.PrivateKey) == 0 || len(c.JWT.PublicKey) == 0 {
			return errors.New("ed25519 requires PrivateKey and PublicKey")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be within [0, 2m]")
	}

	// Tokens
	if err := c.Tokens.toManagerConfig().Validate(); err != nil {
		return err
	}

	// Rate limits
	if c.RateLimit.MaxLoginAttempts <= 0 {
		return errors.New("RateLimit MaxLoginAttempts must be > 0")
	}
	if c.RateLimit.LoginWindow <= 0 {
		return errors.New("RateLimit LoginWindow must be > 0")
	}
	if c.RateLimit.MaxTwoFactorAttempts <= 0 || c.RateLimit.TwoFactorCooldown <= 0 {
		return errors.New("RateLimit two-factor limits must be > 0")
	}
	if c.RateLimit.EnableRegistrationLimit &&
		(c.RateLimit.RegistrationMaxAttempts <= 0 || c.RateLimit.RegistrationCooldown <= 0) {
		return errors.New("RateLimit registration limits must be > 0")
	}

	// TOTP
	if c.TOTP.Issuer == "" {
		return errors.New("TOTP Issuer is required")
	}
	if c.TOTP.Digits != 6 && c.TOTP.Digits != 8 {
		return errors.New("TOTP Digits must be 6 or 8")
	}
	if c.TOTP.Period <= 0 {
		return errors.New("TOTP Period must be > 0")
	}
	if c.TOTP.Skew < 0 || c.TOTP.Skew > 3 {
		return errors.New("TOTP Skew must be within [0, 3]")
	}
	if c.TOTP.BackupCodeCount <= 0 {
		return errors.New("TOTP BackupCodeCount must be > 0")
	}

	// Risk
	if c.Risk.Enabled {
		if c.Risk.Threshold <= 0 || c.Risk.Threshold > 1 {
			return errors.New("Risk Threshold must be within (0, 1]")
		}
		if _, err := risk.NewCIDRClassifier(c.Risk.SuspiciousRanges...); err != nil {
			return err
		}
	}

	// Password
	switch c.Password.Scheme {
	case "argon2id", "bcrypt":
	default:
		return fmt.Errorf("Password Scheme %q is not supported", c.Password.Scheme)
	}
	if c.Password.EnforcePolicy && c.Password.Policy.MinLength <= 0 {
		return errors.New("Password Policy MinLength must be > 0")
	}

	// Timing
	if c.Timing.LoginFloor < 0 || c.Timing.LoginFloor > time.Second {
		return errors.New("Timing LoginFloor must be within [0, 1s]")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	return nil
}
