package asyncstep

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes controller behavior to prometheus. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	Outcomes        *prometheus.CounterVec
	Duration        *prometheus.HistogramVec
	WorkersInFlight prometheus.Gauge
	WorkersOrphaned prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "asyncstep_outcomes_total",
				Help: "Total number of step invocations by terminal outcome.",
			},
			[]string{"step", "outcome"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "asyncstep_execution_duration_seconds",
				Help:    "Wall-clock duration of step invocations in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"step"},
		),
		WorkersInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "asyncstep_workers_in_flight",
			Help: "Number of units of work currently executing.",
		}),
		WorkersOrphaned: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "asyncstep_workers_orphaned",
			Help: "Number of abandoned workers that have not returned yet.",
		}),
	}

	for _, c := range []prometheus.Collector{m.Outcomes, m.Duration, m.WorkersInFlight, m.WorkersOrphaned} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) observe(step string, kind OutcomeKind, d time.Duration) {
	if m == nil {
		return
	}
	m.Outcomes.WithLabelValues(step, string(kind)).Inc()
	m.Duration.WithLabelValues(step).Observe(d.Seconds())
}

func (m *Metrics) workerStarted() {
	if m != nil {
		m.WorkersInFlight.Inc()
	}
}

func (m *Metrics) workerFinished() {
	if m != nil {
		m.WorkersInFlight.Dec()
	}
}

func (m *Metrics) orphanStarted() {
	if m != nil {
		m.WorkersOrphaned.Inc()
	}
}

func (m *Metrics) orphanFinished() {
	if m != nil {
		m.WorkersOrphaned.Dec()
	}
}
