package risk

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"slices"
	"time"

	"github.com/MrEthical07/authshield/internal/rate"
	"github.com/MrEthical07/authshield/kvstore"
)

const (
	FactorNewIP               = "new_ip_address"
	FactorSuspiciousLocation  = "suspicious_location"
	FactorNewUserAgent        = "new_user_agent"
	FactorSuspiciousUserAgent = "suspicious_user_agent"
	FactorUnusualTime         = "unusual_time"
	FactorHighFrequency       = "high_frequency"
	FactorExcessiveActions    = "excessive_actions"
	FactorLowSuccessRate      = "low_success_rate"

	analyzerCount = 5
)

var automationPattern = regexp.MustCompile(`(?i)bot|crawler|spider|scraper|curl|wget`)

// Config tunes the analyzers. Zero values take the defaults in DefaultConfig.
type Config struct {
	Threshold        float64
	KnownIPWindow    int
	KnownUAWindow    int
	UnusualHourStart int
	UnusualHourEnd   int
	BurstEvents      int
	BurstSpan        time.Duration
	ActionCeiling    int64
	CounterWindow    time.Duration
	LowSuccessRatio  float64
	StatsWindow      int
	Location         *time.Location
}

// DefaultConfig returns the standard analyzer settings.
func DefaultConfig() Config {
	return Config{
		Threshold:        0.7,
		KnownIPWindow:    10,
		KnownUAWindow:    5,
		UnusualHourStart: 2,
		UnusualHourEnd:   6,
		BurstEvents:      5,
		BurstSpan:        5 * time.Minute,
		ActionCeiling:    50,
		CounterWindow:    time.Hour,
		LowSuccessRatio:  0.3,
		StatsWindow:      100,
		Location:         time.Local,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Threshold <= 0 {
		c.Threshold = d.Threshold
	}
	if c.KnownIPWindow <= 0 {
		c.KnownIPWindow = d.KnownIPWindow
	}
	if c.KnownUAWindow <= 0 {
		c.KnownUAWindow = d.KnownUAWindow
	}
	if c.UnusualHourStart == 0 && c.UnusualHourEnd == 0 {
		c.UnusualHourStart, c.UnusualHourEnd = d.UnusualHourStart, d.UnusualHourEnd
	}
	if c.BurstEvents <= 1 {
		c.BurstEvents = d.BurstEvents
	}
	if c.BurstSpan <= 0 {
		c.BurstSpan = d.BurstSpan
	}
	if c.ActionCeiling <= 0 {
		c.ActionCeiling = d.ActionCeiling
	}
	if c.CounterWindow <= 0 {
		c.CounterWindow = d.CounterWindow
	}
	if c.LowSuccessRatio <= 0 {
		c.LowSuccessRatio = d.LowSuccessRatio
	}
	if c.StatsWindow <= 0 {
		c.StatsWindow = d.StatsWindow
	}
	if c.Location == nil {
		c.Location = d.Location
	}
}

// Scorer computes risk scores. It is safe for concurrent use.
type Scorer struct {
	cfg        Config
	store      kvstore.Store
	events     EventStore
	classifier LocationClassifier

	actions *rate.Counter
	ratio   *rate.Counter

	onFlag func(ctx context.Context, userID string, s Score)
}

// Option customizes a Scorer.
type Option func(*Scorer)

// WithClassifier replaces the CIDR location classifier.
func WithClassifier(c LocationClassifier) Option {
	return func(s *Scorer) {
		if c != nil {
			s.classifier = c
		}
	}
}

// WithFlagHandler runs fn for every score above the threshold.
func WithFlagHandler(fn func(ctx context.Context, userID string, s Score)) Option {
	return func(s *Scorer) { s.onFlag = fn }
}

// NewScorer builds a Scorer. Without WithClassifier the default suspicious
// ranges are used.
func NewScorer(store kvstore.Store, events EventStore, cfg Config, opts ...Option) (*Scorer, error) {
	if store == nil || events == nil {
		return nil, errors.New("risk: store and event store are required")
	}
	cfg.applyDefaults()

	s := &Scorer{
		cfg:     cfg,
		store:   store,
		events:  events,
		actions: rate.NewCounter(store, "action_freq:", cfg.CounterWindow, rate.Sliding),
		ratio:   rate.NewCounter(store, "success_rate:", cfg.CounterWindow, rate.Sliding),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.classifier == nil {
		c, err := NewCIDRClassifier(DefaultSuspiciousRanges...)
		if err != nil {
			return nil, err
		}
		s.classifier = c
	}
	return s, nil
}

// Threshold returns the configured flag threshold.
func (s *Scorer) Threshold() float64 {
	return s.cfg.Threshold
}

type signal struct {
	score   float64
	factors []string
}

func (g *signal) add(weight float64, factor string) {
	g.score += weight
	g.factors = append(g.factors, factor)
}

// Analyze scores ev for userID. When a history or counter lookup fails the
// affected analyzer contributes nothing; the returned score is still usable
// and err lists what was skipped.
func (s *Scorer) Analyze(ctx context.Context, userID string, ev Event) (Score, error) {
	analyzers := []func(context.Context, string, Event) (signal, error){
		s.analyzeIP,
		s.analyzeUserAgent,
		s.analyzeTime,
		s.analyzeActionFrequency,
		s.analyzeSuccessRate,
	}

	var (
		sum     float64
		factors = make([]string, 0, 4)
		errs    []error
	)
	for _, analyze := range analyzers {
		sig, err := analyze(ctx, userID, ev)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		sum += sig.score
		factors = append(factors, sig.factors...)
	}

	result := Score{
		Score:     math.Min(sum/analyzerCount, 1),
		Factors:   factors,
		Threshold: s.cfg.Threshold,
	}
	if result.Flagged() && s.onFlag != nil {
		s.onFlag(ctx, userID, result)
	}
	return result, errors.Join(errs...)
}

func (s *Scorer) analyzeIP(ctx context.Context, userID string, ev Event) (signal, error) {
	var sig signal
	known, err := s.events.RecentDistinctIPs(ctx, userID, s.cfg.KnownIPWindow)
	if err != nil {
		return sig, fmt.Errorf("risk: ip history: %w", err)
	}
	if !slices.Contains(known, ev.IPAddress) {
		sig.add(0.3, FactorNewIP)
	}
	if s.classifier.Suspicious(ctx, ev.IPAddress) {
		sig.add(0.4, FactorSuspiciousLocation)
	}
	return sig, nil
}

func (s *Scorer) analyzeUserAgent(ctx context.Context, userID string, ev Event) (signal, error) {
	var sig signal
	known, err := s.events.RecentDistinctUserAgents(ctx, userID, s.cfg.KnownUAWindow)
	if err != nil {
		return sig, fmt.Errorf("risk: user agent history: %w", err)
	}
	if !slices.Contains(known, ev.UserAgent) {
		sig.add(0.2, FactorNewUserAgent)
	}
	if automationPattern.MatchString(ev.UserAgent) {
		sig.add(0.5, FactorSuspiciousUserAgent)
	}
	return sig, nil
}

func (s *Scorer) analyzeTime(ctx context.Context, userID string, ev Event) (signal, error) {
	var sig signal
	hour := ev.Timestamp.In(s.cfg.Location).Hour()
	if hour >= s.cfg.UnusualHourStart && hour <= s.cfg.UnusualHourEnd {
		sig.add(0.3, FactorUnusualTime)
	}

	recent, err := s.events.Recent(ctx, userID, 10)
	if err != nil {
		return sig, fmt.Errorf("risk: recent activity: %w", err)
	}
	n := s.cfg.BurstEvents
	if len(recent) >= n {
		span := recent[0].Timestamp.Sub(recent[n-1].Timestamp)
		if span < s.cfg.BurstSpan {
			sig.add(0.4, FactorHighFrequency)
		}
	}
	return sig, nil
}

func (s *Scorer) analyzeActionFrequency(ctx context.Context, userID string, ev Event) (signal, error) {
	var sig signal
	count, err := s.actions.Hit(ctx, userID+":"+ev.Action)
	if err != nil {
		return sig, fmt.Errorf("risk: action frequency: %w", err)
	}
	if count > s.cfg.ActionCeiling {
		sig.add(0.3, FactorExcessiveActions)
	}
	return sig, nil
}

func (s *Scorer) analyzeSuccessRate(ctx context.Context, userID string, ev Event) (signal, error) {
	var sig signal
	total, success, err := s.observe(ctx, userID, ev.Success)
	if err != nil {
		return sig, err
	}
	if total > 0 && float64(success)/float64(total) < s.cfg.LowSuccessRatio {
		sig.add(0.4, FactorLowSuccessRate)
	}
	return sig, nil
}

// ObserveOutcome feeds an attempt into the rolling success ratio without
// scoring it.
func (s *Scorer) ObserveOutcome(ctx context.Context, userID string, success bool) error {
	_, _, err := s.observe(ctx, userID, success)
	return err
}

func (s *Scorer) observe(ctx context.Context, userID string, success bool) (int64, int64, error) {
	totalID, successID := userID+":total", userID+":success"

	total, err := s.ratio.Hit(ctx, totalID)
	if err != nil {
		return 0, 0, fmt.Errorf("risk: success ratio: %w", err)
	}

	var okCount int64
	if success {
		okCount, err = s.ratio.Hit(ctx, successID)
	} else {
		// Keep both counters on the same window.
		if err = s.store.Expire(ctx, s.ratio.Key(successID), s.cfg.CounterWindow); err == nil {
			okCount, err = s.ratio.Count(ctx, successID)
		}
	}
	if err != nil {
		return 0, 0, fmt.Errorf("risk: success ratio: %w", err)
	}
	return total, okCount, nil
}

// AnomalyStats summarizes the most recent StatsWindow events for userID.
// AverageScore is the share of events that carry the anomaly marker.
func (s *Scorer) AnomalyStats(ctx context.Context, userID string) (Stats, error) {
	events, err := s.events.Recent(ctx, userID, s.cfg.StatsWindow)
	if err != nil {
		return Stats{}, fmt.Errorf("risk: stats: %w", err)
	}

	stats := Stats{TotalEvents: len(events)}
	for i := range events {
		if !events[i].IsAnomaly() {
			continue
		}
		stats.AnomalyEvents++
		if stats.LastAnomaly == nil {
			ts := events[i].Timestamp
			stats.LastAnomaly = &ts
		}
	}
	if stats.TotalEvents > 0 {
		stats.AverageScore = float64(stats.AnomalyEvents) / float64(stats.TotalEvents)
	}
	return stats, nil
}
