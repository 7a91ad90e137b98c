package authshield

import (
	"context"
	"errors"
	"fmt"
	"net/mail"

	"github.com/MrEthical07/authshield/internal/audit"
	"github.com/MrEthical07/authshield/internal/limiters"
	"github.com/MrEthical07/authshield/password"
	"github.com/MrEthical07/authshield/risk"
)

// Register creates an account and logs it in. The password must satisfy the
// configured policy; sign-ups are throttled per client IP.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*LoginResult, error) {
	if e == nil || e.users == nil || e.passwords == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}

	rawIP := req.IP
	if rawIP == "" {
		rawIP = clientIPFromContext(ctx)
	}
	ip, userAgent := clientInfo(ctx, req.IP, req.UserAgent)
	ctx = WithUserAgent(WithClientIP(ctx, ip), userAgent)
	email := normalizeEmail(req.Email)

	result, err := e.register(ctx, email, req.Password, rawIP, ip, userAgent)
	if err != nil {
		switch {
		case errors.Is(err, ErrUserExists):
			e.metricInc(MetricRegistrationDuplicate)
		case errors.Is(err, ErrStoreUnavailable):
			e.emitStoreError(ctx, "register", err)
		default:
			e.metricInc(MetricRegistrationRejected)
		}
		e.emitAudit(ctx, audit.CategoryRegistration, auditEventRegistrationFailure, false, "", email, err, nil)
		return nil, err
	}

	e.metricInc(MetricRegistrationSuccess)
	e.emitAudit(ctx, audit.CategoryRegistration, auditEventRegistrationSuccess, true, result.UserID, email, nil, nil)
	return result, nil
}

func (e *Engine) register(ctx context.Context, email, plain, rawIP, ip, userAgent string) (*LoginResult, error) {
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if e.config.Password.EnforcePolicy {
		if err := e.config.Password.Policy.Validate(plain); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrWeakPassword, err)
		}
	}

	if err := e.registrationLimiter.Enforce(ctx, rawIP); err != nil {
		if errors.Is(err, limiters.ErrRegistrationRateLimited) {
			return nil, fmt.Errorf("%w: %v", ErrTooManyAttempts, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if _, err := e.users.FindByEmail(ctx, email); err == nil {
		return nil, ErrUserExists
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	hash, err := e.passwords.Hash(plain)
	if err != nil {
		if errors.Is(err, password.ErrPasswordTooShort) || errors.Is(err, password.ErrPasswordTooLong) {
			return nil, fmt.Errorf("%w: %v", ErrWeakPassword, err)
		}
		return nil, err
	}

	user, err := e.users.Create(ctx, CreateUserInput{Email: email, PasswordHash: hash})
	if err != nil {
		return nil, e.userStoreError(err)
	}

	score := e.analyze(ctx, user.ID, risk.ActionRegister, ip, userAgent, true)

	pair, err := e.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}
	return &LoginResult{UserID: user.ID, Tokens: &pair, Risk: score}, nil
}

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrValidation)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return fmt.Errorf("%w: invalid email", ErrValidation)
	}
	return nil
}
