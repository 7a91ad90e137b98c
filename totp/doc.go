// Package totp implements RFC 6238 time-based one-time passwords, enrollment
// URIs with QR rendering, and single-use backup codes.
//
// The engine only computes. Persisting secrets, enablement flags, and backup
// code hashes belongs to the user store.
package totp
