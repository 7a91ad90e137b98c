package internaldefs

import (
	"strings"
	"testing"

	"github.com/MrEthical07/authshield"
)

func TestDefinitionsCoverEveryMetric(t *testing.T) {
	seen := make(map[authshield.MetricID]bool)
	for _, def := range CounterDefs {
		if !strings.HasPrefix(def.Name, Namespace+"_") || !strings.HasSuffix(def.Name, "_total") {
			t.Fatalf("counter %q does not follow naming", def.Name)
		}
		seen[def.ID] = true
	}
	for _, def := range HistogramDefs {
		seen[def.ID] = true
	}
	for _, id := range authshield.MetricIDs() {
		if !seen[id] {
			t.Fatalf("metric %s has no exported definition", id)
		}
	}
}

func TestBucketHelpers(t *testing.T) {
	if got := len(HistogramUpperBounds()); got != HistogramBucketCount-1 {
		t.Fatalf("expected %d finite bounds, got %d", HistogramBucketCount-1, got)
	}

	cum := CumulativeBuckets(NormalizeBuckets([]uint64{1, 2, 3}))
	if cum[2] != 6 || cum[HistogramBucketCount-1] != 6 {
		t.Fatalf("unexpected cumulative buckets %v", cum)
	}
}
