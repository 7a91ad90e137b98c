// Package audit carries security events from the engine to their sinks.
//
// Events are grouped by category (auth_attempt, registration, token_refresh,
// jwt_event, anomaly, security_error, redis_event). The [Dispatcher] relays
// them asynchronously so that a slow sink never sits on the login path.
// Sinks: channel, JSON lines, zerolog, Kafka, and a fan-out of several.
//
// Events never carry passwords, TOTP codes, secrets or raw tokens.
package audit
