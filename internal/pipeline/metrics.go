package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for glean_runs_total.
const (
	outcomeDetected = "detected"
	outcomeFallback = "fallback"
	outcomeError    = "error"
)

// Metrics groups the pipeline's Prometheus collectors.
type Metrics struct {
	runs          *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	stageDuration *prometheus.HistogramVec
	regions       *prometheus.HistogramVec
	degenerate    *prometheus.CounterVec
	skipped       *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		runs: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "glean_runs_total",
				Help: "Total number of pipeline runs",
			},
			[]string{"domain", "outcome"}, // outcome: detected, fallback, error
		),
		runDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "glean_run_duration_seconds",
				Help:    "Pipeline run duration in seconds",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"domain"},
		),
		stageDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "glean_stage_duration_seconds",
				Help:    "Pipeline stage duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"domain", "stage"},
		),
		regions: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "glean_regions_kept",
				Help:    "Number of regions surviving the detection filter",
				Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
			},
			[]string{"domain"},
		),
		degenerate: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "glean_degenerate_regions_total",
				Help: "Regions skipped because their crop had no pixels",
			},
			[]string{"domain"},
		),
		skipped: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "glean_failed_regions_skipped_total",
				Help: "Regions whose OCR failed and were skipped",
			},
			[]string{"domain"},
		),
	}
}

func (m *Metrics) observeRun(d Domain, outcome string, elapsed time.Duration) {
	m.runs.WithLabelValues(d.String(), outcome).Inc()
	if outcome != outcomeError {
		m.runDuration.WithLabelValues(d.String()).Observe(elapsed.Seconds())
	}
}

func (m *Metrics) observeStages(d Domain, stages map[string]time.Duration) {
	for stage, dur := range stages {
		m.stageDuration.WithLabelValues(d.String(), stage).Observe(dur.Seconds())
	}
}
