// Package rate provides the counter primitive every authshield limiter is
// built on: an INCR against the shared kvstore paired with an expiry.
//
// # Window semantics
//
//   - Sliding: every hit re-arms the TTL, so the counter only disappears after
//     a full window with no activity. Used by the brute-force guard and the
//     risk counters.
//   - Fixed: the TTL is set on the first hit only.
//
// A counter value without a TTL is treated as absent and removed on read.
//
// # What this package must NOT do
//
//   - Implement domain-specific policies (those live in internal/limiters).
package rate
