package authshield

import "time"

// SecurityReport summarizes the effective security posture of an engine.
// It holds no secrets and is safe to log.
type SecurityReport struct {
	SigningAlgorithm        string
	Cipher                  string
	SeparateKeys            bool
	AccessTTL               time.Duration
	RefreshTTL              time.Duration
	RevocationTTL           time.Duration
	RefreshReuseDetection   bool
	PasswordScheme          string
	Argon2                  PasswordConfigReport
	BcryptCost              int
	PasswordPolicyEnforced  bool
	PasswordUpgradeOnLogin  bool
	MaxLoginAttempts        int
	LoginWindow             time.Duration
	MaxTwoFactorAttempts    int
	RegistrationLimitActive bool
	BackupCodeCount         int
	TOTPReplayProtection    bool
	RiskScoringEnabled      bool
	RiskThreshold           float64
	LoginFloor              time.Duration
	AuditEnabled            bool
	MetricsEnabled          bool
}

type PasswordConfigReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	cfg := e.config
	return SecurityReport{
		SigningAlgorithm: cfg.JWT.SigningMethod,
		Cipher:           cfg.Crypto.Algorithm,
		SeparateKeys:     cfg.Crypto.SeparateKeys,
		AccessTTL:        cfg.Tokens.AccessTTL,
		RefreshTTL:       cfg.Tokens.RefreshTTL,
		RevocationTTL:    cfg.Tokens.RevocationTTL,
		PasswordScheme:   cfg.Password.Scheme,
		Argon2: PasswordConfigReport{
			Memory:      cfg.Password.Argon2.Memory,
			Time:        cfg.Password.Argon2.Time,
			Parallelism: cfg.Password.Argon2.Parallelism,
			SaltLength:  cfg.Password.Argon2.SaltLength,
			KeyLength:   cfg.Password.Argon2.KeyLength,
		},
		BcryptCost:              cfg.Password.BcryptCost,
		PasswordPolicyEnforced:  cfg.Password.EnforcePolicy,
		PasswordUpgradeOnLogin:  cfg.Password.UpgradeOnLogin,
		RefreshReuseDetection:   cfg.Tokens.ReuseDetection,
		MaxLoginAttempts:        cfg.RateLimit.MaxLoginAttempts,
		LoginWindow:             cfg.RateLimit.LoginWindow,
		MaxTwoFactorAttempts:    cfg.RateLimit.MaxTwoFactorAttempts,
		RegistrationLimitActive: e.registrationLimiter != nil,
		BackupCodeCount:         cfg.TOTP.BackupCodeCount,
		TOTPReplayProtection:    cfg.TOTP.EnforceReplayProtection,
		RiskScoringEnabled:      e.scorer != nil,
		RiskThreshold:           cfg.Risk.Threshold,
		LoginFloor:              cfg.Timing.LoginFloor,
		AuditEnabled:            e.audit != nil,
		MetricsEnabled:          cfg.Metrics.Enabled,
	}
}
