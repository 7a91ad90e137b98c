package authshield

import (
	"context"
	"errors"

	"github.com/MrEthical07/authshield/internal/audit"
)

const (
	auditEventLoginSuccess          = "login_success"
	auditEventLoginFailure          = "login_failure"
	auditEventLoginBlocked          = "login_blocked"
	auditEventPasswordRehashed      = "password_rehashed"
	auditEventLockoutThreshold      = "lockout_threshold_reached"
	auditEventTwoFactorRequired     = "2fa_required"
	auditEventTwoFactorEnabled      = "2fa_enabled"
	auditEventTwoFactorDisabled     = "2fa_disabled"
	auditEventTwoFactorVerified     = "2fa_verified"
	auditEventTwoFactorFailed       = "2fa_verify_failed"
	auditEventTwoFactorReplay       = "2fa_replay_rejected"
	auditEventBackupCodeUsed        = "backup_code_used"
	auditEventBackupCodeFailed      = "backup_code_failed"
	auditEventRegistrationSuccess   = "registration_success"
	auditEventRegistrationFailure   = "registration_failure"
	auditEventRefreshSuccess        = "refresh_success"
	auditEventRefreshFailure        = "refresh_failure"
	auditEventRefreshReuse          = "refresh_reuse_detected"
	auditEventTokensIssued          = "tokens_issued"
	auditEventTokenRevoked          = "token_revoked"
	auditEventTokensRevokedAll      = "tokens_revoked_all"
	auditEventAnomalyDetected       = "anomaly_detected"
	auditEventAnomalyStats          = "anomaly_stats"
	auditEventRiskDegraded          = "risk_signal_degraded"
	auditEventEventStoreWriteFailed = "event_store_write_failed"
	auditEventStoreUnavailable      = "store_unavailable"
)

// AuditErrorCode is the stable error classification carried by audit events.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrAccountInactive    AuditErrorCode = "account_inactive"
	auditErrTooManyAttempts    AuditErrorCode = "too_many_attempts"
	auditErrTwoFactorRequired  AuditErrorCode = "2fa_required"
	auditErrTwoFactorInvalid   AuditErrorCode = "2fa_invalid"
	auditErrTwoFactorState     AuditErrorCode = "2fa_state"
	auditErrTokenRevoked       AuditErrorCode = "token_revoked"
	auditErrTokenExpired       AuditErrorCode = "token_expired"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrUserNotFound       AuditErrorCode = "user_not_found"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrWeakPassword       AuditErrorCode = "weak_password"
	auditErrValidation         AuditErrorCode = "validation"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	category audit.Category,
	eventType string,
	success bool,
	userID string,
	email string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := audit.Event{
		Timestamp: e.now().UTC(),
		Category:  category,
		EventType: eventType,
		UserID:    userID,
		Email:     email,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

// emitStoreError records a substrate failure without echoing its text to
// callers.
func (e *Engine) emitStoreError(ctx context.Context, operation string, err error) {
	e.metricInc(MetricStoreError)
	e.emitAudit(ctx, audit.CategoryRedis, auditEventStoreUnavailable, false, "", "", err, func() map[string]string {
		return map[string]string{
			"operation": operation,
			"cause":     err.Error(),
		}
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountInactive):
		return auditErrAccountInactive
	case errors.Is(err, ErrTooManyAttempts):
		return auditErrTooManyAttempts
	case errors.Is(err, ErrTwoFactorRequired):
		return auditErrTwoFactorRequired
	case errors.Is(err, ErrInvalidTwoFactorCode):
		return auditErrTwoFactorInvalid
	case errors.Is(err, ErrTwoFactorNotEnabled),
		errors.Is(err, ErrTwoFactorAlreadyEnabled):
		return auditErrTwoFactorState
	case errors.Is(err, ErrTokenRevoked):
		return auditErrTokenRevoked
	case errors.Is(err, ErrTokenExpired):
		return auditErrTokenExpired
	case errors.Is(err, ErrInvalidToken):
		return auditErrInvalidToken
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrUserExists):
		return auditErrDuplicate
	case errors.Is(err, ErrWeakPassword):
		return auditErrWeakPassword
	case errors.Is(err, ErrValidation):
		return auditErrValidation
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
