package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the engine.
//
// Metrics:
//   - plains_phase_duration_seconds{task,phase} - Histogram of phase execution times
//   - plains_phase_total{task,phase,outcome} - Count of settled phases
//   - plains_publish_total{outcome} - Count of publish calls
//   - plains_phases_active - Phases currently pending
type Metrics struct {
	PhaseDuration *prometheus.HistogramVec
	PhaseTotal    *prometheus.CounterVec
	PublishTotal  *prometheus.CounterVec
	PhasesActive  prometheus.Gauge
}

// NewMetrics creates the engine metrics and registers them with reg.
// Callers own reg; registering twice on the same registerer panics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PhaseDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "plains_phase_duration_seconds",
				Help:    "Duration of task phase execution in seconds",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms to ~4m
			},
			[]string{"task", "phase"},
		),
		PhaseTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plains_phase_total",
				Help: "Total number of settled task phases",
			},
			[]string{"task", "phase", "outcome"}, // "resolved" or "rejected"
		),
		PublishTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plains_publish_total",
				Help: "Total number of publish calls",
			},
			[]string{"outcome"}, // "success" or "failure"
		),
		PhasesActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "plains_phases_active",
				Help: "Number of task phases currently pending",
			},
		),
	}
}

func (m *Metrics) phaseStarted() {
	if m == nil {
		return
	}
	m.PhasesActive.Inc()
}

func (m *Metrics) phaseSettled(d *Deferred) {
	if m == nil {
		return
	}
	m.PhasesActive.Dec()
	m.PhaseDuration.WithLabelValues(d.name, string(d.phase)).Observe(d.Elapsed().Seconds())
	m.PhaseTotal.WithLabelValues(d.name, string(d.phase), string(d.State())).Inc()
}

func (m *Metrics) published(err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.PublishTotal.WithLabelValues(outcome).Inc()
}
