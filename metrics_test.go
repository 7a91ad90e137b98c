package authshield

import (
	"sync"
	"testing"
	"time"
)

func TestMetricsDisabledRecordsNothing(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricLoginSuccess)
	m.Add(MetricTokensIssued, 2)
	if m.Value(MetricLoginSuccess) != 0 || m.Value(MetricTokensIssued) != 0 {
		t.Fatal("disabled metrics must not count")
	}
	if len(m.Snapshot().Counters) != 0 {
		t.Fatal("expected empty snapshot")
	}

	var nilMetrics *Metrics
	nilMetrics.Inc(MetricLoginSuccess)
	nilMetrics.Observe(MetricLoginLatency, time.Millisecond)
}

func TestMetricsConcurrentIncrements(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				m.Inc(MetricLoginFailure)
			}
		}()
	}
	wg.Wait()
	if got := m.Value(MetricLoginFailure); got != 8000 {
		t.Fatalf("expected 8000, got %d", got)
	}
}

func TestMetricsLatencyHistogram(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	m.Observe(MetricLoginLatency, 3*time.Millisecond)
	m.Observe(MetricLoginLatency, 5*time.Millisecond)
	m.Observe(MetricLoginLatency, 60*time.Millisecond)
	m.Observe(MetricLoginLatency, time.Second)
	m.Observe(MetricLoginSuccess, time.Millisecond)

	snap := m.Snapshot()
	buckets := snap.Histograms[MetricLoginLatency]
	if len(buckets) != len(HistogramBucketBounds)+1 {
		t.Fatalf("expected %d buckets, got %d", len(HistogramBucketBounds)+1, len(buckets))
	}
	if buckets[0] != 2 || buckets[4] != 1 || buckets[7] != 1 {
		t.Fatalf("unexpected buckets %v", buckets)
	}
	if _, ok := snap.Counters[MetricLoginLatency]; ok {
		t.Fatal("latency must not appear as a counter")
	}
	if _, ok := snap.Histograms[MetricLoginSuccess]; ok {
		t.Fatal("only login latency carries a histogram")
	}
}

func TestMetricNames(t *testing.T) {
	seen := map[string]bool{}
	for _, id := range MetricIDs() {
		name := id.String()
		if name == "" || name == "unknown" || seen[name] {
			t.Fatalf("bad metric name %q for %d", name, id)
		}
		seen[name] = true
	}
	if MetricID(999).String() != "unknown" {
		t.Fatal("expected unknown for out-of-range id")
	}
}

func TestEngineRecordsLoginMetrics(t *testing.T) {
	te := newTestEngine(t, nil)
	te.seedUser(t, testEmail, testPassword)
	te.login(t, testEmail, testPassword)
	_, _ = te.Login(t.Context(), LoginRequest{Email: testEmail, Password: "bad"})

	snap := te.MetricsSnapshot()
	if snap.Counters[MetricLoginSuccess] != 1 || snap.Counters[MetricLoginFailure] != 1 {
		t.Fatalf("unexpected login counters %+v", snap.Counters)
	}
	var observed uint64
	for _, n := range snap.Histograms[MetricLoginLatency] {
		observed += n
	}
	if observed != 2 {
		t.Fatalf("expected 2 latency observations, got %d", observed)
	}
}
