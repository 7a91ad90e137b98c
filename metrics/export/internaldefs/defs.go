package internaldefs

import (
	"github.com/MrEthical07/authshield"
)

// Namespace prefixes every exported series.
const Namespace = "authshield"

// CounterDef maps an engine counter to its exported name.
type CounterDef struct {
	ID   authshield.MetricID
	Name string
	Help string
}

// HistogramDef maps an engine histogram to its exported name.
type HistogramDef struct {
	ID   authshield.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: authshield.MetricLoginSuccess, Name: "authshield_login_success_total", Help: "Successful logins."},
	{ID: authshield.MetricLoginFailure, Name: "authshield_login_failure_total", Help: "Logins rejected for bad credentials."},
	{ID: authshield.MetricLoginBlocked, Name: "authshield_login_blocked_total", Help: "Logins refused by the brute-force gate."},
	{ID: authshield.MetricTwoFactorRequired, Name: "authshield_two_factor_required_total", Help: "Logins that stopped for a second factor."},
	{ID: authshield.MetricTwoFactorSuccess, Name: "authshield_two_factor_success_total", Help: "Accepted TOTP codes."},
	{ID: authshield.MetricTwoFactorFailure, Name: "authshield_two_factor_failure_total", Help: "Rejected TOTP codes."},
	{ID: authshield.MetricBackupCodeUsed, Name: "authshield_backup_code_used_total", Help: "Consumed backup codes."},
	{ID: authshield.MetricBackupCodeFailed, Name: "authshield_backup_code_failed_total", Help: "Rejected backup codes."},
	{ID: authshield.MetricTwoFactorEnabled, Name: "authshield_two_factor_enabled_total", Help: "2FA enrollments."},
	{ID: authshield.MetricTwoFactorDisabled, Name: "authshield_two_factor_disabled_total", Help: "2FA removals."},
	{ID: authshield.MetricRegistrationSuccess, Name: "authshield_registration_success_total", Help: "Created accounts."},
	{ID: authshield.MetricRegistrationDuplicate, Name: "authshield_registration_duplicate_total", Help: "Registrations rejected as duplicate."},
	{ID: authshield.MetricRegistrationRejected, Name: "authshield_registration_rejected_total", Help: "Registrations rejected by policy or throttle."},
	{ID: authshield.MetricRefreshSuccess, Name: "authshield_refresh_success_total", Help: "Rotated refresh tokens."},
	{ID: authshield.MetricRefreshFailure, Name: "authshield_refresh_failure_total", Help: "Rejected refresh attempts."},
	{ID: authshield.MetricRefreshReuseDetected, Name: "authshield_refresh_reuse_detected_total", Help: "Rotated refresh tokens presented again."},
	{ID: authshield.MetricTokensIssued, Name: "authshield_tokens_issued_total", Help: "Issued access and refresh tokens."},
	{ID: authshield.MetricTokensRevoked, Name: "authshield_tokens_revoked_total", Help: "Revoked tokens."},
	{ID: authshield.MetricTokenVerifyFailure, Name: "authshield_token_verify_failure_total", Help: "Rejected access tokens."},
	{ID: authshield.MetricAnomalyFlagged, Name: "authshield_anomaly_flagged_total", Help: "Events scored above the anomaly threshold."},
	{ID: authshield.MetricStoreError, Name: "authshield_store_error_total", Help: "Backing store failures."},
}

var HistogramDefs = []HistogramDef{
	{ID: authshield.MetricLoginLatency, Name: "authshield_login_latency_seconds", Help: "Login latency."},
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const AuditDroppedName = "authshield_audit_dropped_total"

// HistogramBucketCount is the number of buckets, +Inf included.
const HistogramBucketCount = 8

// HistogramUpperBounds are the finite bucket bounds in seconds.
func HistogramUpperBounds() []float64 {
	out := make([]float64, 0, len(authshield.HistogramBucketBounds))
	for _, d := range authshield.HistogramBucketBounds {
		out = append(out, d.Seconds())
	}
	return out
}

// HistogramBoundSuffix names each bucket for exporters without native
// histogram labels.
var HistogramBoundSuffix = [HistogramBucketCount]string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size array, padding with zeros.
func NormalizeBuckets(raw []uint64) [HistogramBucketCount]uint64 {
	var out [HistogramBucketCount]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [HistogramBucketCount]uint64) [HistogramBucketCount]uint64 {
	var out [HistogramBucketCount]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
