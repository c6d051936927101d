// Package metrics exposes Prometheus instruments for the roast pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"roastbot/internal/core/domain"
)

const namespace = "roastbot"

// Metrics holds all roastbot instruments. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	runsCreated        prometheus.Counter
	runsTerminal       *prometheus.CounterVec
	outcomes           *prometheus.CounterVec
	stageDuration      *prometheus.HistogramVec
	inFlight           prometheus.Gauge
	subscribersDropped prometheus.Counter
	retries            prometheus.Counter
}

// New creates the instruments on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_created_total",
			Help:      "Number of runs accepted.",
		}),
		runsTerminal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_terminal_total",
			Help:      "Number of runs that reached a terminal state.",
		}, []string{"state"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outcomes_total",
			Help:      "Per-target outcomes by status and reason.",
		}, []string{"status", "reason"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of processor stages.",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 90, 120},
		}, []string{"stage"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "processors_in_flight",
			Help:      "Company processors currently running.",
		}),
		subscribersDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscribers_dropped_total",
			Help:      "Stream subscribers dropped for falling behind.",
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "target_retries_total",
			Help:      "Extra processing attempts made by the retry policy.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.runsCreated,
		m.runsTerminal,
		m.outcomes,
		m.stageDuration,
		m.inFlight,
		m.subscribersDropped,
		m.retries,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RunCreated() {
	if m == nil {
		return
	}
	m.runsCreated.Inc()
}

func (m *Metrics) RunTerminal(state domain.RunState) {
	if m == nil {
		return
	}
	m.runsTerminal.WithLabelValues(string(state)).Inc()
}

func (m *Metrics) ObserveOutcome(o domain.Outcome) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(string(o.Status), o.ErrorReason).Inc()
}

// ObserveStage records how long one processor stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) ProcessorStarted() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

func (m *Metrics) ProcessorFinished() {
	if m == nil {
		return
	}
	m.inFlight.Dec()
}

func (m *Metrics) SubscriberDropped() {
	if m == nil {
		return
	}
	m.subscribersDropped.Inc()
}

func (m *Metrics) Retried() {
	if m == nil {
		return
	}
	m.retries.Inc()
}
