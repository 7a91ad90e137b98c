package authshield

import (
	"context"
	"time"

	"github.com/MrEthical07/authshield/internal/audit"
	"github.com/MrEthical07/authshield/risk"
	"github.com/MrEthical07/authshield/tokens"
)

// UserRecord is the account row read from and written to the UserStore.
//
// TwoFactorSecret holds the TOTP secret sealed by the engine's crypto
// envelope; BackupCodes holds hashed codes, never plaintext.
type UserRecord struct {
	ID               string
	Email            string
	PasswordHash     string
	IsActive         bool
	TwoFactorEnabled bool
	TwoFactorSecret  string
	BackupCodes      []string
	CreatedAt        time.Time
}

// CreateUserInput is passed to UserStore.Create. The store assigns the id.
type CreateUserInput struct {
	Email        string
	PasswordHash string
}

// UserStore is the persistent user-record collaborator.
//
// FindByEmail and FindByID return ErrUserNotFound for missing users; Create
// returns ErrUserExists for a taken email. UpdateBackupCodes is a
// compare-and-swap: it replaces the stored set with next only when the stored
// set still equals expected, and reports whether it did. UpdatePasswordHash
// replaces the stored hash after a scheme or parameter upgrade.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (UserRecord, error)
	FindByID(ctx context.Context, id string) (UserRecord, error)
	Create(ctx context.Context, in CreateUserInput) (UserRecord, error)
	Update2FA(ctx context.Context, id string, enabled bool, secret string, backupCodes []string) error
	UpdateBackupCodes(ctx context.Context, id string, expected, next []string) (bool, error)
	UpdatePasswordHash(ctx context.Context, id, hash string) error
}

// EventStore is the append-only behavior history consumed by risk scoring.
type EventStore = risk.EventStore

// BehaviorEvent is one recorded authentication attempt.
type BehaviorEvent = risk.Event

// RiskScore is the advisory outcome of behavior analysis.
type RiskScore = risk.Score

// AnomalyStats aggregates anomaly markers over recent events.
type AnomalyStats = risk.Stats

// ActiveToken is the metadata of one live, unrevoked token.
type ActiveToken = tokens.Record

// AuditEvent is the structured security-log record.
type AuditEvent = audit.Event

// AuditSink receives audit events from the dispatcher.
type AuditSink = audit.Sink

// AuditCategory groups audit events.
type AuditCategory = audit.Category

// LoginRequest carries one login attempt. Empty IP and UserAgent fall back
// to the values attached with WithClientIP and WithUserAgent.
type LoginRequest struct {
	Email     string
	Password  string
	IP        string
	UserAgent string
}

// RegisterRequest carries one sign-up attempt.
type RegisterRequest struct {
	Email     string
	Password  string
	IP        string
	UserAgent string
}

// TokenPair is an access/refresh pair as it leaves the engine: both tokens
// are sealed by the crypto envelope.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// LoginResult is returned by Login and LoginWith2FA. Tokens is nil when
// TwoFactorRequired is set.
type LoginResult struct {
	UserID            string
	Tokens            *TokenPair
	TwoFactorRequired bool
	Risk              RiskScore
}

// TwoFactorEnrollment is returned once by Enable2FA. BackupCodes are the
// only plaintext copy of the codes.
type TwoFactorEnrollment struct {
	Secret      string
	URI         string
	QRCode      string
	BackupCodes []string
}

// AccessClaims is the verified identity carried by an access token.
type AccessClaims struct {
	UserID    string
	Email     string
	JTI       string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
