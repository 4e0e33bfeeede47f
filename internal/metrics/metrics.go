package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for identification and attendance decisions.
type Metrics struct {
	// Outcomes of processed probes by status (recorded, suppressed, ...)
	Outcomes *prometheus.CounterVec

	// Committed events by kind
	Events *prometheus.CounterVec

	// Distance of accepted matches
	MatchDistance prometheus.Histogram

	// Full probe processing latency including storage
	ProcessLatency prometheus.Histogram

	// Conflicting appends that forced a re-decision
	AppendConflicts prometheus.Counter

	// Candidates skipped because of a dimension mismatch
	SkippedCandidates prometheus.Counter

	// Active gallery size after the last refresh
	GallerySize prometheus.Gauge

	// Gallery refreshes by result ("ok", "error")
	GalleryRefreshes *prometheus.CounterVec

	// Time spent waiting for a per-subject lock
	LockWait prometheus.Histogram
}

// New creates a Metrics instance registered on reg. A nil reg uses the
// default Prometheus registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "attendance_outcomes_total",
			Help: "Total processed probes by outcome status",
		}, []string{"status"}),

		Events: f.NewCounterVec(prometheus.CounterOpts{
			Name: "attendance_events_total",
			Help: "Total committed presence events by kind",
		}, []string{"kind"}), // kind: "arrival", "departure"

		MatchDistance: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "attendance_match_distance",
			Help:    "Euclidean distance of accepted matches",
			Buckets: []float64{0.05, 0.1, 0.15, 0.2, 0.25, 0.3, 0.35, 0.4, 0.45, 0.5, 0.6, 0.8},
		}),

		ProcessLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "attendance_process_duration_seconds",
			Help:    "Duration of probe processing including storage round trips",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),

		AppendConflicts: f.NewCounter(prometheus.CounterOpts{
			Name: "attendance_append_conflicts_total",
			Help: "Total conditional appends rejected because the latest event changed",
		}),

		SkippedCandidates: f.NewCounter(prometheus.CounterOpts{
			Name: "attendance_skipped_candidates_total",
			Help: "Total gallery candidates skipped because of a vector dimension mismatch",
		}),

		GallerySize: f.NewGauge(prometheus.GaugeOpts{
			Name: "attendance_gallery_size",
			Help: "Number of active enrollments in the current gallery snapshot",
		}),

		GalleryRefreshes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "attendance_gallery_refreshes_total",
			Help: "Total gallery refreshes by result",
		}, []string{"result"}),

		LockWait: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "attendance_lock_wait_seconds",
			Help:    "Time spent waiting for the per-subject decision lock",
			Buckets: []float64{0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
	}
}

// IncrementOutcome records a probe outcome.
func (m *Metrics) IncrementOutcome(status string) {
	if m != nil {
		m.Outcomes.WithLabelValues(status).Inc()
	}
}

// IncrementEvent records a committed event.
func (m *Metrics) IncrementEvent(kind string) {
	if m != nil {
		m.Events.WithLabelValues(kind).Inc()
	}
}

// ObserveMatchDistance records the distance of an accepted match.
func (m *Metrics) ObserveMatchDistance(d float64) {
	if m != nil {
		m.MatchDistance.Observe(d)
	}
}

// ObserveProcessLatency records the total processing duration.
func (m *Metrics) ObserveProcessLatency(d time.Duration) {
	if m != nil {
		m.ProcessLatency.Observe(d.Seconds())
	}
}

// IncrementAppendConflict records a rejected conditional append.
func (m *Metrics) IncrementAppendConflict() {
	if m != nil {
		m.AppendConflicts.Inc()
	}
}

// AddSkippedCandidates records candidates skipped during a match.
func (m *Metrics) AddSkippedCandidates(n int) {
	if m != nil && n > 0 {
		m.SkippedCandidates.Add(float64(n))
	}
}

// ObserveGalleryRefresh records a refresh result and, on success, the new size.
func (m *Metrics) ObserveGalleryRefresh(size int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.GalleryRefreshes.WithLabelValues("error").Inc()
		return
	}
	m.GalleryRefreshes.WithLabelValues("ok").Inc()
	m.GallerySize.Set(float64(size))
}

// ObserveLockWait records how long a per-subject lock took to acquire.
func (m *Metrics) ObserveLockWait(d time.Duration) {
	if m != nil {
		m.LockWait.Observe(d.Seconds())
	}
}
