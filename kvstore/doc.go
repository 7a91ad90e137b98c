// Package kvstore defines the shared TTL-capable key-value substrate used by
// every authshield component that keeps cross-request state: failure counters,
// token metadata, revocation markers, and behavior counters.
//
// # Contract
//
// Implementations must make Incr and IncrWithTTL atomic at the store level.
// A key without a TTL is reported by TTL as absent. Keys enumerates with SCAN
// semantics; it never blocks the server the way KEYS does.
//
// # Key namespaces
//
//   - bf:<identity>                      brute-force failure counters
//   - revoked:<jti>                      revocation markers
//   - token_meta:<jti>:<userId>          issued token metadata
//   - action_freq:<userId>:<action>      risk action counters
//   - success_rate:<userId>:{total|success}
//
// Components never mutate another component's namespace.
package kvstore
