package authshield

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/MrEthical07/authshield/internal/audit"
	"github.com/MrEthical07/authshield/internal/limiters"
	"github.com/MrEthical07/authshield/totp"
)

const backupCodeSwapRetries = 3

// Enable2FA generates a TOTP secret and backup codes for userID and stores
// them. The secret is sealed at rest and the codes are hashed; the returned
// enrollment is the only plaintext copy.
func (e *Engine) Enable2FA(ctx context.Context, userID string) (*TwoFactorEnrollment, error) {
	if e == nil || e.users == nil || e.totp == nil {
		return nil, ErrEngineNotReady
	}
	enrollment, err := e.enable2FA(ctx, userID)
	if err != nil {
		e.emitAudit(ctx, audit.CategorySecurityError, auditEventTwoFactorEnabled, false, userID, "", err, nil)
		return nil, err
	}
	e.metricInc(MetricTwoFactorEnabled)
	e.emitAudit(ctx, audit.CategoryJWT, auditEventTwoFactorEnabled, true, userID, "", nil, nil)
	return enrollment, nil
}

func (e *Engine) enable2FA(ctx context.Context, userID string) (*TwoFactorEnrollment, error) {
	user, err := e.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.TwoFactorEnabled {
		return nil, ErrTwoFactorAlreadyEnabled
	}

	secret, err := e.totp.GenerateSecret()
	if err != nil {
		return nil, err
	}
	uri := e.totp.URI(user.Email, secret)
	qr, err := totp.QRCodeDataURL(uri, e.config.TOTP.QRSize)
	if err != nil {
		return nil, err
	}
	codes, err := e.totp.GenerateBackupCodes()
	if err != nil {
		return nil, err
	}
	sealed, err := e.envelope.Encrypt(secret)
	if err != nil {
		return nil, fmt.Errorf("seal totp secret: %w", err)
	}

	if err := e.users.Update2FA(ctx, user.ID, true, sealed, totp.HashBackupCodes(user.ID, codes)); err != nil {
		return nil, e.userStoreError(err)
	}

	return &TwoFactorEnrollment{
		Secret:      secret,
		URI:         uri,
		QRCode:      qr,
		BackupCodes: codes,
	}, nil
}

// Disable2FA clears the secret, the flag and the backup codes. Disabling a
// user without 2FA is a no-op. Issued tokens are left untouched.
func (e *Engine) Disable2FA(ctx context.Context, userID string) error {
	if e == nil || e.users == nil {
		return ErrEngineNotReady
	}
	user, err := e.findUser(ctx, userID)
	if err != nil {
		return err
	}
	if !user.TwoFactorEnabled && user.TwoFactorSecret == "" && len(user.BackupCodes) == 0 {
		return nil
	}
	if err := e.users.Update2FA(ctx, user.ID, false, "", nil); err != nil {
		return e.userStoreError(err)
	}
	if err := e.twoFactorLimiter.Reset(ctx, user.ID); err != nil {
		e.emitStoreError(ctx, "two_factor_reset", err)
	}
	e.metricInc(MetricTwoFactorDisabled)
	e.emitAudit(ctx, audit.CategoryJWT, auditEventTwoFactorDisabled, true, user.ID, "", nil, nil)
	return nil
}

// Verify2FA checks a TOTP code for userID. A wrong code returns false with
// a nil error; repeated failures lock verification for the cooldown.
func (e *Engine) Verify2FA(ctx context.Context, userID, code string) (bool, error) {
	if e == nil || e.users == nil || e.totp == nil {
		return false, ErrEngineNotReady
	}
	user, err := e.twoFactorSubject(ctx, userID)
	if err != nil {
		return false, err
	}
	ok, err := e.checkTOTP(ctx, user, code)
	if err != nil {
		return false, err
	}
	e.settleSecondFactor(ctx, user.ID, ok, auditEventTwoFactorVerified, auditEventTwoFactorFailed)
	return ok, nil
}

// VerifyBackupCode consumes one backup code of userID. Each code verifies
// exactly once.
func (e *Engine) VerifyBackupCode(ctx context.Context, userID, code string) (bool, error) {
	if e == nil || e.users == nil {
		return false, ErrEngineNotReady
	}
	user, err := e.twoFactorSubject(ctx, userID)
	if err != nil {
		return false, err
	}
	ok, err := e.consumeBackupCode(ctx, user, code)
	if err != nil {
		return false, err
	}
	e.settleSecondFactor(ctx, user.ID, ok, auditEventBackupCodeUsed, auditEventBackupCodeFailed)
	if ok {
		e.metricInc(MetricBackupCodeUsed)
	} else {
		e.metricInc(MetricBackupCodeFailed)
	}
	return ok, nil
}

// verifySecondFactor completes a login for a 2FA user. code is tried as a
// TOTP code first and as a backup code second.
func (e *Engine) verifySecondFactor(ctx context.Context, user UserRecord, code string) error {
	if err := e.checkTwoFactorLimit(ctx, user.ID); err != nil {
		return err
	}
	ok, err := e.checkTOTP(ctx, user, code)
	if err != nil {
		return err
	}
	success, failure := auditEventTwoFactorVerified, auditEventTwoFactorFailed
	if !ok {
		ok, err = e.consumeBackupCode(ctx, user, code)
		if err != nil {
			return err
		}
		if ok {
			e.metricInc(MetricBackupCodeUsed)
			success = auditEventBackupCodeUsed
		}
	}
	e.settleSecondFactor(ctx, user.ID, ok, success, failure)
	if !ok {
		return ErrInvalidTwoFactorCode
	}
	return nil
}

// twoFactorSubject loads userID and checks the limiter and enablement.
func (e *Engine) twoFactorSubject(ctx context.Context, userID string) (UserRecord, error) {
	user, err := e.findUser(ctx, userID)
	if err != nil {
		return UserRecord{}, err
	}
	if !user.TwoFactorEnabled || user.TwoFactorSecret == "" {
		return UserRecord{}, ErrTwoFactorNotEnabled
	}
	if err := e.checkTwoFactorLimit(ctx, user.ID); err != nil {
		return UserRecord{}, err
	}
	return user, nil
}

func (e *Engine) checkTwoFactorLimit(ctx context.Context, userID string) error {
	err := e.twoFactorLimiter.Check(ctx, userID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, limiters.ErrTwoFactorRateLimited):
		e.metricInc(MetricTwoFactorFailure)
		return fmt.Errorf("%w: %v", ErrTooManyAttempts, err)
	default:
		e.emitStoreError(ctx, "two_factor_check", err)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

// settleSecondFactor updates the limiter, metrics and audit log after one
// second-factor check.
func (e *Engine) settleSecondFactor(ctx context.Context, userID string, ok bool, successEvent, failureEvent string) {
	if ok {
		if err := e.twoFactorLimiter.Reset(ctx, userID); err != nil {
			e.emitStoreError(ctx, "two_factor_reset", err)
		}
		e.metricInc(MetricTwoFactorSuccess)
		e.emitAudit(ctx, audit.CategoryJWT, successEvent, true, userID, "", nil, nil)
		return
	}
	if err := e.twoFactorLimiter.RecordFailure(ctx, userID); err != nil && !errors.Is(err, limiters.ErrTwoFactorRateLimited) {
		e.emitStoreError(ctx, "two_factor_record", err)
	}
	e.metricInc(MetricTwoFactorFailure)
	e.emitAudit(ctx, audit.CategorySecurityError, failureEvent, false, userID, "", ErrInvalidTwoFactorCode, nil)
}

func (e *Engine) checkTOTP(ctx context.Context, user UserRecord, code string) (bool, error) {
	secret, err := e.envelope.Decrypt(user.TwoFactorSecret)
	if err != nil {
		return false, fmt.Errorf("open totp secret: %w", err)
	}
	counter, ok, err := e.totp.VerifyCounter(secret, code)
	if err != nil {
		// Malformed codes are wrong codes.
		return false, nil
	}
	if !ok || !e.config.TOTP.EnforceReplayProtection {
		return ok, nil
	}

	// The first caller to claim the step wins; every later use of the same
	// code within its window is a replay.
	claimed, err := e.store.SetNX(ctx, totpUsedKey(user.ID, counter), "1", e.totp.ReplayWindow())
	if err != nil {
		e.emitStoreError(ctx, "totp_replay_claim", err)
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !claimed {
		e.emitAudit(ctx, audit.CategorySecurityError, auditEventTwoFactorReplay, false, user.ID, "", ErrInvalidTwoFactorCode, nil)
		return false, nil
	}
	return true, nil
}

func totpUsedKey(userID string, counter int64) string {
	return "totp_used:" + userID + ":" + strconv.FormatInt(counter, 10)
}

// consumeBackupCode removes code from the stored set with a compare-and-swap,
// reloading and retrying when a concurrent update wins.
func (e *Engine) consumeBackupCode(ctx context.Context, user UserRecord, code string) (bool, error) {
	for attempt := 0; attempt < backupCodeSwapRetries; attempt++ {
		next, ok := totp.MatchBackupCode(user.ID, code, user.BackupCodes)
		if !ok {
			return false, nil
		}
		swapped, err := e.users.UpdateBackupCodes(ctx, user.ID, user.BackupCodes, next)
		if err != nil {
			return false, e.userStoreError(err)
		}
		if swapped {
			return true, nil
		}
		if user, err = e.findUser(ctx, user.ID); err != nil {
			return false, err
		}
	}
	return false, nil
}

func (e *Engine) findUser(ctx context.Context, userID string) (UserRecord, error) {
	if userID == "" {
		return UserRecord{}, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	user, err := e.users.FindByID(ctx, userID)
	if err != nil {
		return UserRecord{}, e.userStoreError(err)
	}
	return user, nil
}

// userStoreError keeps taxonomy errors and wraps everything else as a store
// failure.
func (e *Engine) userStoreError(err error) error {
	if errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrUserExists) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
