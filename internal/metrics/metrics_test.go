package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Initiation("ok")
	m.Initiation("ok")
	m.Initiation("validation")
	m.Settlement("SUCCESS", "applied", 200, 300)
	m.Settlement("SUCCESS", "replayed", 0, 0)
	m.VersionConflict("settle")
	m.Expired(3)
	m.Expired(0)

	if got := testutil.ToFloat64(m.initiations.WithLabelValues("ok")); got != 2 {
		t.Errorf("initiations ok = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.settlements.WithLabelValues("SUCCESS", "applied")); got != 1 {
		t.Errorf("settlements applied = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.appliedAmount); got != 200 {
		t.Errorf("applied amount = %v, want 200", got)
	}
	if got := testutil.ToFloat64(m.discardedAmount); got != 300 {
		t.Errorf("discarded amount = %v, want 300", got)
	}
	if got := testutil.ToFloat64(m.expired); got != 3 {
		t.Errorf("expired = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.versionConflicts.WithLabelValues("settle")); got != 1 {
		t.Errorf("conflicts = %v, want 1", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.Initiation("ok")
	m.Settlement("FAILED", "failed", 0, 0)
	m.VersionConflict("initiate")
	m.Expired(1)
}
