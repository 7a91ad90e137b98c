package authshield

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/MrEthical07/authshield/envelope"
	"github.com/MrEthical07/authshield/internal/audit"
	"github.com/MrEthical07/authshield/internal/limiters"
	"github.com/MrEthical07/authshield/kvstore"
	"github.com/MrEthical07/authshield/password"
	"github.com/MrEthical07/authshield/risk"
	"github.com/MrEthical07/authshield/tokens"
	"github.com/MrEthical07/authshield/totp"
)

// Engine is the authentication orchestrator. It is safe for concurrent use;
// all cross-request state lives in the key-value store and the user and
// event stores.
type Engine struct {
	config Config
	store  kvstore.Store
	users  UserStore
	events EventStore

	envelope            *envelope.Envelope
	bruteForce          *limiters.BruteForce
	twoFactorLimiter    *limiters.TwoFactorLimiter
	registrationLimiter *limiters.RegistrationThrottle
	totp                *totp.Engine
	scorer              *risk.Scorer
	tokens              *tokens.Manager
	passwords           *password.Chain

	audit   *audit.Dispatcher
	metrics *Metrics
	logger  zerolog.Logger
	now     func() time.Time
}

// Close flushes pending audit events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// Ping checks the key-value store when it supports liveness probes.
func (e *Engine) Ping(ctx context.Context) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if p, ok := e.store.(kvstore.Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}
	return nil
}

// AuditDropped returns how many audit events were dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// Login authenticates req. Gates run in order and short-circuit: block
// check, credential check, risk analysis, second-factor check, token
// issuance, token encryption, failure-counter reset.
//
// Users with 2FA enabled get ErrTwoFactorRequired together with a result
// whose TwoFactorRequired field is set and whose Tokens is nil.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	return e.login(ctx, req, "", false)
}

// LoginWith2FA is Login followed by second-factor verification. code may be
// a TOTP code or an unused backup code. Users without 2FA are logged in
// without checking code.
func (e *Engine) LoginWith2FA(ctx context.Context, req LoginRequest, code string) (*LoginResult, error) {
	return e.login(ctx, req, code, true)
}

func (e *Engine) login(ctx context.Context, req LoginRequest, code string, withCode bool) (*LoginResult, error) {
	if e == nil || e.users == nil || e.passwords == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}
	started := time.Now()
	defer func() {
		e.metrics.Observe(MetricLoginLatency, time.Since(started))
	}()

	ip, userAgent := clientInfo(ctx, req.IP, req.UserAgent)
	ctx = WithUserAgent(WithClientIP(ctx, ip), userAgent)
	email := normalizeEmail(req.Email)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrValidation)
	}

	// 1. Brute-force gate. Store failures keep the gate closed.
	blocked, err := e.bruteForce.IsBlocked(ctx, email)
	if err != nil {
		e.emitStoreError(ctx, "brute_force_check", err)
		e.metricInc(MetricLoginBlocked)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if blocked {
		e.metricInc(MetricLoginBlocked)
		e.emitAudit(ctx, audit.CategoryAuthAttempt, auditEventLoginBlocked, false, "", email, ErrTooManyAttempts, nil)
		return nil, ErrTooManyAttempts
	}

	// 2. Constant-time credential check.
	user, ok, err := e.checkCredentials(ctx, email, req.Password)
	if err != nil {
		e.emitStoreError(ctx, "user_lookup", err)
		return nil, err
	}

	// 3. Failure bookkeeping.
	if !ok {
		e.recordLoginFailure(ctx, email, user)
		return nil, ErrInvalidCredentials
	}

	e.upgradePasswordHash(ctx, user, req.Password)

	// 4. Advisory risk analysis.
	score := e.analyze(ctx, user.ID, risk.ActionLogin, ip, userAgent, true)
	result := &LoginResult{UserID: user.ID, Risk: score}

	// 5. Second factor.
	if user.TwoFactorEnabled {
		if !withCode {
			e.metricInc(MetricTwoFactorRequired)
			e.emitAudit(ctx, audit.CategoryJWT, auditEventTwoFactorRequired, true, user.ID, email, nil, nil)
			result.TwoFactorRequired = true
			return result, ErrTwoFactorRequired
		}
		if err := e.verifySecondFactor(ctx, user, code); err != nil {
			return nil, err
		}
	}

	// 6 and 7. Issue and seal the pair.
	pair, err := e.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}
	result.Tokens = &pair

	// 8. Reset the failure counter.
	if err := e.bruteForce.Clear(ctx, email); err != nil {
		e.emitStoreError(ctx, "brute_force_clear", err)
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, audit.CategoryAuthAttempt, auditEventLoginSuccess, true, user.ID, email, nil, func() map[string]string {
		return map[string]string{
			"risk_score": fmt.Sprintf("%.2f", score.Score),
		}
	})
	return result, nil
}

// checkCredentials always performs one password verification, using the
// dummy hash for unknown users, and returns no earlier than the configured
// floor. Inactive users fail after verification.
func (e *Engine) checkCredentials(ctx context.Context, email, plain string) (UserRecord, bool, error) {
	started := time.Now()
	defer waitFloor(ctx, started, e.config.Timing.LoginFloor)

	user, err := e.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			_, _ = e.passwords.Verify(plain, e.passwords.DummyHash())
			return UserRecord{}, false, nil
		}
		return UserRecord{}, false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	ok, err := e.passwords.Verify(plain, user.PasswordHash)
	if err != nil {
		e.logger.Warn().Err(err).Str("user_id", user.ID).Msg("stored password hash rejected")
		return user, false, nil
	}
	if ok && !user.IsActive {
		return user, false, nil
	}
	return user, ok, nil
}

// upgradePasswordHash rehashes a verified password with the primary scheme
// when the stored hash is legacy. Failures are logged and never fail the
// login.
func (e *Engine) upgradePasswordHash(ctx context.Context, user UserRecord, plain string) {
	if !e.config.Password.UpgradeOnLogin || !e.passwords.NeedsRehash(user.PasswordHash) {
		return
	}
	hash, err := e.passwords.Hash(plain)
	if err != nil {
		e.logger.Warn().Err(err).Str("user_id", user.ID).Msg("password rehash failed")
		return
	}
	if err := e.users.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		e.emitStoreError(ctx, "password_rehash", err)
		return
	}
	e.emitAudit(ctx, audit.CategoryAuthAttempt, auditEventPasswordRehashed, true, user.ID, user.Email, nil, nil)
}

func (e *Engine) recordLoginFailure(ctx context.Context, email string, user UserRecord) {
	if _, err := e.bruteForce.RecordFailure(ctx, email); err != nil {
		e.emitStoreError(ctx, "brute_force_record", err)
	}
	e.metricInc(MetricLoginFailure)

	reason := ErrInvalidCredentials
	if user.ID != "" && !user.IsActive {
		reason = ErrAccountInactive
	}
	e.emitAudit(ctx, audit.CategoryAuthAttempt, auditEventLoginFailure, false, user.ID, email, reason, nil)

	if user.ID != "" {
		ip, userAgent := clientInfo(ctx, "", "")
		e.recordAttempt(ctx, user.ID, risk.ActionLogin, ip, userAgent, reason)
	}
}

// ClearFailedAttempts resets the brute-force counter for email.
func (e *Engine) ClearFailedAttempts(ctx context.Context, email string) error {
	if e == nil || e.bruteForce == nil {
		return ErrEngineNotReady
	}
	if err := e.bruteForce.Clear(ctx, normalizeEmail(email)); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// BlockTimeRemaining returns how long the failure counter for email lives.
// ok is false when there is no counter.
func (e *Engine) BlockTimeRemaining(ctx context.Context, email string) (time.Duration, bool, error) {
	if e == nil || e.bruteForce == nil {
		return 0, false, ErrEngineNotReady
	}
	d, ok, err := e.bruteForce.BlockTimeRemaining(ctx, normalizeEmail(email))
	if err != nil {
		return 0, false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return d, ok, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func waitFloor(ctx context.Context, started time.Time, floor time.Duration) {
	remaining := floor - time.Since(started)
	if remaining <= 0 {
		return
	}
	t := time.NewTimer(remaining)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
