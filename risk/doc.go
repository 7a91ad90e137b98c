// Package risk scores authentication attempts against a user's recent
// behavior.
//
// Five analyzers run in a fixed order and each adds to a raw sum:
//
//  1. IP: new_ip_address (+0.3), suspicious_location (+0.4)
//  2. user agent: new_user_agent (+0.2), suspicious_user_agent (+0.5)
//  3. time: unusual_time (+0.3), high_frequency (+0.4)
//  4. action frequency: excessive_actions (+0.3)
//  5. success ratio: low_success_rate (+0.4)
//
// The score is sum/5 capped at 1.0. Factors keep detection order. Scoring is
// advisory: a score above the threshold is flagged, never blocked.
//
// History comes from an EventStore the scorer only reads. The scorer owns the
// action_freq:* and success_rate:* counters in the key-value store.
package risk
