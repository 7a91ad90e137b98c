package authshield

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigRequiresSecrets(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "Secret") {
		t.Fatalf("expected missing secret error, got %v", err)
	}
	cfg.Crypto.Secret = "s"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "PrivateKey") {
		t.Fatalf("expected missing key error, got %v", err)
	}
	cfg.JWT.PrivateKey = []byte("k")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults with secrets to validate: %v", err)
	}
}

func TestDefaultConfigValues(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Tokens.AccessTTL != 15*time.Minute || cfg.Tokens.RefreshTTL != 7*24*time.Hour {
		t.Fatalf("unexpected token lifetimes %v / %v", cfg.Tokens.AccessTTL, cfg.Tokens.RefreshTTL)
	}
	if cfg.RateLimit.MaxLoginAttempts != 5 || cfg.RateLimit.LoginWindow != 15*time.Minute {
		t.Fatalf("unexpected brute-force defaults %+v", cfg.RateLimit)
	}
	if cfg.TOTP.Issuer != "Auth Microservice" || cfg.TOTP.Digits != 6 || cfg.TOTP.Period != 30 || cfg.TOTP.BackupCodeCount != 10 {
		t.Fatalf("unexpected totp defaults %+v", cfg.TOTP)
	}
	if cfg.Risk.Threshold != 0.7 || cfg.Timing.LoginFloor != 51*time.Millisecond {
		t.Fatalf("unexpected risk or timing defaults")
	}
}

func TestConfigValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown cipher", func(c *Config) { c.Crypto.Algorithm = "des" }},
		{"unknown signing method", func(c *Config) { c.JWT.SigningMethod = "rs256" }},
		{"ed25519 without public key", func(c *Config) { c.JWT.SigningMethod = "ed25519" }},
		{"large leeway", func(c *Config) { c.JWT.Leeway = 5 * time.Minute }},
		{"zero access ttl", func(c *Config) { c.Tokens.AccessTTL = 0 }},
		{"zero login attempts", func(c *Config) { c.RateLimit.MaxLoginAttempts = 0 }},
		{"registration limit without ceiling", func(c *Config) { c.RateLimit.RegistrationMaxAttempts = 0 }},
		{"seven digits", func(c *Config) { c.TOTP.Digits = 7 }},
		{"large skew", func(c *Config) { c.TOTP.Skew = 4 }},
		{"empty issuer", func(c *Config) { c.TOTP.Issuer = "" }},
		{"threshold above one", func(c *Config) { c.Risk.Threshold = 1.5 }},
		{"bad cidr", func(c *Config) { c.Risk.SuspiciousRanges = []string{"10.0.0.0/99"} }},
		{"unknown scheme", func(c *Config) { c.Password.Scheme = "md5" }},
		{"long login floor", func(c *Config) { c.Timing.LoginFloor = 2 * time.Second }},
		{"zero audit buffer", func(c *Config) { c.Audit.BufferSize = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestConfigValidateAllowsDisabledFeatures(t *testing.T) {
	cfg := testConfig()
	cfg.Risk.Enabled = false
	cfg.Risk.Threshold = 0
	cfg.Audit.Enabled = false
	cfg.Audit.BufferSize = 0
	cfg.RateLimit.EnableRegistrationLimit = false
	cfg.RateLimit.RegistrationMaxAttempts = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config: %v", err)
	}
}

func TestCloneConfigCopiesSlices(t *testing.T) {
	cfg := testConfig()
	clone := cloneConfig(cfg)
	clone.JWT.PrivateKey[0] = 'X'
	clone.Risk.SuspiciousRanges[0] = "0.0.0.0/0"
	if cfg.JWT.PrivateKey[0] == 'X' || cfg.Risk.SuspiciousRanges[0] == "0.0.0.0/0" {
		t.Fatal("clone shares memory with the original")
	}
}
