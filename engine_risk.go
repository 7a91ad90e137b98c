package authshield

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/MrEthical07/authshield/internal/audit"
	"github.com/MrEthical07/authshield/risk"
)

// analyze scores one successful attempt and appends it to the history. The
// event is stored after scoring so it does not count as its own history.
// Failures degrade the score and never fail the caller.
func (e *Engine) analyze(ctx context.Context, userID, action, ip, userAgent string, success bool) RiskScore {
	ev := risk.Event{
		UserID:    userID,
		IPAddress: ip,
		UserAgent: userAgent,
		Action:    action,
		Timestamp: e.now(),
		Success:   success,
	}

	var score RiskScore
	if e.scorer != nil {
		s, err := e.scorer.Analyze(ctx, userID, ev)
		if err != nil {
			e.metricInc(MetricStoreError)
			e.emitAudit(ctx, audit.CategoryRedis, auditEventRiskDegraded, false, userID, "", err, func() map[string]string {
				return map[string]string{"cause": err.Error()}
			})
		}
		score = s
		if s.Flagged() {
			ev.FailureReason = s.FailureReason()
		}
	}

	e.appendEvent(ctx, ev)
	return score
}

// recordAttempt stores a failed attempt without scoring it. The rolling
// success ratio still sees the failure.
func (e *Engine) recordAttempt(ctx context.Context, userID, action, ip, userAgent string, reason error) {
	if e.scorer != nil {
		if err := e.scorer.ObserveOutcome(ctx, userID, false); err != nil {
			e.metricInc(MetricStoreError)
		}
	}
	e.appendEvent(ctx, risk.Event{
		UserID:        userID,
		IPAddress:     ip,
		UserAgent:     userAgent,
		Action:        action,
		Timestamp:     e.now(),
		Success:       false,
		FailureReason: string(auditErrorCode(reason)),
	})
}

func (e *Engine) appendEvent(ctx context.Context, ev risk.Event) {
	if e.events == nil {
		return
	}
	if err := e.events.Append(ctx, ev); err != nil {
		e.metricInc(MetricStoreError)
		e.emitAudit(ctx, audit.CategorySecurityError, auditEventEventStoreWriteFailed, false, ev.UserID, "", err, func() map[string]string {
			return map[string]string{"action": ev.Action, "cause": err.Error()}
		})
	}
}

// onAnomaly is the scorer's flag handler.
func (e *Engine) onAnomaly(ctx context.Context, userID string, s risk.Score) {
	e.metricInc(MetricAnomalyFlagged)
	e.logger.Warn().
		Str("user_id", userID).
		Float64("score", s.Score).
		Strs("factors", s.Factors).
		Msg("anomaly detected")
	e.emitAudit(ctx, audit.CategoryAnomaly, auditEventAnomalyDetected, false, userID, "", nil, func() map[string]string {
		return map[string]string{
			"score":     strconv.FormatFloat(s.Score, 'f', 2, 64),
			"threshold": strconv.FormatFloat(s.Threshold, 'f', 2, 64),
			"factors":   strings.Join(s.Factors, ","),
		}
	})
}

// onLockoutThreshold runs once per window, when an identity reaches the
// failure ceiling.
func (e *Engine) onLockoutThreshold(ctx context.Context, identity string, count int64) {
	e.logger.Warn().Str("identity", identity).Int64("attempts", count).Msg("brute force threshold reached")
	e.emitAudit(ctx, audit.CategorySecurityError, auditEventLockoutThreshold, false, "", identity, ErrTooManyAttempts, func() map[string]string {
		return map[string]string{"attempts": strconv.FormatInt(count, 10)}
	})
}

// AnomalyStats summarizes anomaly markers over the user's recent events.
func (e *Engine) AnomalyStats(ctx context.Context, userID string) (AnomalyStats, error) {
	if e == nil || e.scorer == nil {
		return AnomalyStats{}, ErrEngineNotReady
	}
	if userID == "" {
		return AnomalyStats{}, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	stats, err := e.scorer.AnomalyStats(ctx, userID)
	if err != nil {
		e.emitStoreError(ctx, "anomaly_stats", err)
		return AnomalyStats{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	e.emitAudit(ctx, audit.CategoryJWT, auditEventAnomalyStats, true, userID, "", nil, nil)
	return stats, nil
}
