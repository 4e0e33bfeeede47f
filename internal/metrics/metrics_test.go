package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.IncrementOutcome("recorded")
	m.IncrementEvent("arrival")
	m.ObserveMatchDistance(0.1)
	m.ObserveProcessLatency(0)
	m.IncrementAppendConflict()
	m.AddSkippedCandidates(2)
	m.ObserveGalleryRefresh(3, nil)
	m.ObserveLockWait(0)
}

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncrementOutcome("recorded")
	m.IncrementOutcome("recorded")
	m.IncrementOutcome("suppressed")
	m.AddSkippedCandidates(3)
	m.AddSkippedCandidates(0)
	m.ObserveGalleryRefresh(7, nil)
	m.ObserveGalleryRefresh(0, errors.New("boom"))

	if got := testutil.ToFloat64(m.Outcomes.WithLabelValues("recorded")); got != 2 {
		t.Errorf("recorded outcomes = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.Outcomes.WithLabelValues("suppressed")); got != 1 {
		t.Errorf("suppressed outcomes = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.SkippedCandidates); got != 3 {
		t.Errorf("skipped = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.GallerySize); got != 7 {
		t.Errorf("gallery size = %v, want 7 (failed refresh must not reset it)", got)
	}
	if got := testutil.ToFloat64(m.GalleryRefreshes.WithLabelValues("error")); got != 1 {
		t.Errorf("error refreshes = %v, want 1", got)
	}
}
