package authshield

import (
	"errors"
	"strings"

	"github.com/MrEthical07/authshield/password"
)

var (
	// ErrValidation reports malformed input, including undecryptable blobs.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidCredentials is returned for unknown users and wrong passwords alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrTooManyAttempts is returned while an identity is blocked or throttled.
	ErrTooManyAttempts = errors.New("too many attempts")
	// ErrTwoFactorRequired is returned by Login for users with 2FA enabled.
	ErrTwoFactorRequired = errors.New("two-factor authentication required")
	// ErrTokenRevoked is returned for tokens carrying a revocation marker.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrTokenExpired is returned for expired tokens and tokens whose metadata is gone.
	ErrTokenExpired = errors.New("token expired")
	// ErrInvalidToken is returned for tokens that fail signature, claim or type checks.
	ErrInvalidToken = errors.New("invalid token")
	// ErrUserNotFound is returned by operations that require an existing user.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists is returned by Register for a taken email.
	ErrUserExists = errors.New("user already exists")
	// ErrStoreUnavailable reports that a backing store could not be reached.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrWeakPassword is returned when a password violates the policy.
	ErrWeakPassword = errors.New("weak password")
	// ErrTwoFactorNotEnabled is returned by second-factor operations on users without 2FA.
	ErrTwoFactorNotEnabled = errors.New("two-factor authentication not enabled")
	// ErrTwoFactorAlreadyEnabled is returned by Enable2FA when 2FA is already on.
	ErrTwoFactorAlreadyEnabled = errors.New("two-factor authentication already enabled")
	// ErrInvalidTwoFactorCode is returned for wrong TOTP or backup codes.
	ErrInvalidTwoFactorCode = errors.New("invalid two-factor code")
	// ErrAccountInactive is returned internally for deactivated users. Login
	// reports it as ErrInvalidCredentials.
	ErrAccountInactive = errors.New("account inactive")
	// ErrEngineNotReady is returned when a required dependency is missing.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// PublicMessage maps err to a stable message that is safe to return to
// clients. It never includes the wrapped cause.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}

	var policyErr *password.PolicyError
	switch {
	case errors.As(err, &policyErr):
		return "Password validation failed: " + strings.Join(policyErr.Violations, ", ")
	case errors.Is(err, ErrWeakPassword):
		return "Password validation failed"
	case errors.Is(err, ErrTooManyAttempts):
		return "Too many failed attempts. Please try again later."
	// Token errors win over ErrAccountInactive, which a refresh for a
	// deactivated owner also wraps.
	case errors.Is(err, ErrTokenRevoked),
		errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrInvalidToken):
		return "Invalid or expired token"
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrAccountInactive):
		return "Invalid credentials"
	case errors.Is(err, ErrTwoFactorRequired):
		return "Two-factor authentication required"
	case errors.Is(err, ErrInvalidTwoFactorCode):
		return "Invalid two-factor code"
	case errors.Is(err, ErrTwoFactorNotEnabled):
		return "2FA not enabled for this user"
	case errors.Is(err, ErrTwoFactorAlreadyEnabled):
		return "2FA already enabled for this user"
	case errors.Is(err, ErrUserExists):
		return "User already exists"
	case errors.Is(err, ErrUserNotFound):
		return "User not found"
	case errors.Is(err, ErrValidation):
		return "Invalid request"
	case errors.Is(err, ErrStoreUnavailable):
		return "Service temporarily unavailable"
	case errors.Is(err, ErrEngineNotReady):
		return "Service not ready"
	default:
		return "Internal error"
	}
}
