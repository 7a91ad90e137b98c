package risk

import (
	"context"
	"strings"
	"time"
)

// Action names recorded on behavior events.
const (
	ActionLogin     = "login"
	ActionRegister  = "register"
	ActionRefresh   = "refresh"
	ActionVerify2FA = "verify_2fa"
)

// AnomalyMarker prefixes FailureReason on events flagged by the scorer.
const AnomalyMarker = "anomaly"

// Event is one authentication attempt. Events are append-only.
type Event struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	IPAddress     string    `json:"ipAddress"`
	UserAgent     string    `json:"userAgent"`
	Action        string    `json:"action"`
	Timestamp     time.Time `json:"timestamp"`
	Success       bool      `json:"success"`
	FailureReason string    `json:"failureReason,omitempty"`
}

// IsAnomaly reports whether the event carries the anomaly marker.
func (e Event) IsAnomaly() bool {
	return strings.Contains(e.FailureReason, AnomalyMarker)
}

// EventStore is the historical behavior store. Recent and the distinct
// queries return newest first and at most limit entries.
type EventStore interface {
	Append(ctx context.Context, ev Event) error
	Recent(ctx context.Context, userID string, limit int) ([]Event, error)
	RecentDistinctIPs(ctx context.Context, userID string, limit int) ([]string, error)
	RecentDistinctUserAgents(ctx context.Context, userID string, limit int) ([]string, error)
}

// Score is the outcome of one analysis. It is never persisted.
type Score struct {
	Score     float64  `json:"score"`
	Factors   []string `json:"factors"`
	Threshold float64  `json:"threshold"`
}

// Flagged reports whether the score exceeds its threshold.
func (s Score) Flagged() bool {
	return s.Score > s.Threshold
}

// FailureReason renders the anomaly marker stored on flagged events.
func (s Score) FailureReason() string {
	return AnomalyMarker + ": " + strings.Join(s.Factors, ",")
}

// Stats aggregates anomaly markers over a user's recent events.
type Stats struct {
	TotalEvents   int        `json:"totalEvents"`
	AnomalyEvents int        `json:"anomalyEvents"`
	AverageScore  float64    `json:"averageScore"`
	LastAnomaly   *time.Time `json:"lastAnomaly"`
}
