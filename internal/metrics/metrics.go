package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the pipeline collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	outcomes         *prometheus.CounterVec
	truncations      prometheus.Counter
	finalizeFailures prometheus.Counter
	generation       prometheus.Histogram
	staleRecords     prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatform",
			Name:      "pipeline_outcomes_total",
			Help:      "Pipeline invocations by result code.",
		}, []string{"code"}),
		truncations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chatform",
			Name:      "response_truncations_total",
			Help:      "Generated responses cut to the maximum length.",
		}),
		finalizeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chatform",
			Name:      "finalize_failures_total",
			Help:      "Terminal writes that failed, leaving a record non-terminal. Page on any increase.",
		}),
		generation: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "chatform",
			Name:      "generation_duration_seconds",
			Help:      "Latency of generation calls.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30},
		}),
		staleRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chatform",
			Name:      "stale_records",
			Help:      "Records stuck in pending/processing at the last sweep.",
		}),
	}
	reg.MustRegister(m.outcomes, m.truncations, m.finalizeFailures, m.generation, m.staleRecords)
	return m
}

func (m *Metrics) Outcome(code string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(code).Inc()
}

func (m *Metrics) Truncated() {
	if m == nil {
		return
	}
	m.truncations.Inc()
}

func (m *Metrics) FinalizeFailed() {
	if m == nil {
		return
	}
	m.finalizeFailures.Inc()
}

// FinalizeFailures exposes the critical counter for alert wiring and tests.
func (m *Metrics) FinalizeFailures() prometheus.Counter {
	return m.finalizeFailures
}

func (m *Metrics) ObserveGeneration(d time.Duration) {
	if m == nil {
		return
	}
	m.generation.Observe(d.Seconds())
}

func (m *Metrics) SetStale(n int) {
	if m == nil {
		return
	}
	m.staleRecords.Set(float64(n))
}
