// Package limiters provides the authshield security limiters built on the
// internal/rate counters.
//
// # Limiters
//
//   - [BruteForce]: per-identity failed-login guard, key bf:<identity>,
//     blocked at 5 failures, 15 minute sliding window.
//   - [TwoFactorLimiter]: per-user failure throttle for TOTP and backup codes.
//   - [RegistrationThrottle]: per-IP sign-up throttle.
//
// A nil limiter is disabled: every method returns a zero value and nil.
//
// # Failure policy
//
// BruteForce.IsBlocked fails closed. When the store cannot be read it reports
// blocked together with the error so the caller can surface a degraded mode.
package limiters
