// Package authshield is an adaptive authentication engine: brute-force
// gating, constant-time credential checks, advisory risk scoring, TOTP
// second factors, and revocable access/refresh token pairs that leave the
// engine sealed by an authenticated-encryption envelope.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build]. No in-process locks coordinate
// requests; all shared state lives in the injected key-value store, user
// store and event store.
//
// # Login gates
//
// [Engine.Login] runs, in order and short-circuiting on the first failure:
// the brute-force check, the credential check (padded to a fixed floor and
// performed even for unknown users), failure bookkeeping, risk analysis, the
// second-factor check, token issuance, token encryption and finally the
// failure-counter reset.
//
// # Architecture boundaries
//
// authshield is the public surface. It exposes [Engine], [Builder],
// [Config], the [UserStore] contract and value types. Component packages
// (envelope, totp, risk, tokens, jwt, password, kvstore) are usable on their
// own; coordination, limiters and audit dispatch live under internal/.
//
// # Failure policy
//
// A key-value store failure during the brute-force check fails closed with
// [ErrStoreUnavailable]. Risk scoring never blocks a login. Error values
// returned to callers wrap a sentinel from errors.go; use [PublicMessage]
// for client-facing text.
package authshield
