// Package metrics exposes Prometheus metrics for the dialog workflow and
// implements workflow.Observer on top of them.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pesio-ai/be-inventory/internal/workflow"
)

const namespace = "inventory"

// Metrics holds the workflow collectors and the registry they live in
type Metrics struct {
	registry *prometheus.Registry

	Transitions    *prometheus.CounterVec
	Lookups        *prometheus.CounterVec
	Commits        *prometheus.CounterVec
	CommitDuration *prometheus.HistogramVec
}

// New creates the collectors on a fresh registry with Go runtime metrics
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		Transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "workflow",
				Name:      "transitions_total",
				Help:      "Total number of dialog state transitions",
			},
			[]string{"flow", "from", "to", "event"},
		),

		Lookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "workflow",
				Name:      "lookups_total",
				Help:      "Total number of completed lookups by kind and outcome (ok, error, stale)",
			},
			[]string{"flow", "kind", "outcome"},
		),

		Commits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "workflow",
				Name:      "commits_total",
				Help:      "Total number of commit attempts by outcome and error category",
			},
			[]string{"flow", "outcome", "category"},
		),

		CommitDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "workflow",
				Name:      "commit_duration_seconds",
				Help:      "Commit duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"flow", "outcome"},
		),
	}

	m.registry.MustRegister(
		m.Transitions,
		m.Lookups,
		m.Commits,
		m.CommitDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterSessionGauge exposes the number of live dialog sessions
func (m *Metrics) RegisterSessionGauge(count func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "sessions_active",
			Help:      "Number of open dialog sessions",
		},
		func() float64 { return float64(count()) },
	))
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Transition implements workflow.Observer
func (m *Metrics) Transition(flow string, from, to workflow.State, event workflow.Event) {
	m.Transitions.WithLabelValues(flow, string(from), string(to), string(event)).Inc()
}

// LookupCompleted implements workflow.Observer
func (m *Metrics) LookupCompleted(flow string, kind workflow.LookupKind, outcome string) {
	m.Lookups.WithLabelValues(flow, string(kind), outcome).Inc()
}

// CommitCompleted implements workflow.Observer
func (m *Metrics) CommitCompleted(flow, outcome string, category workflow.Category, elapsed time.Duration) {
	m.Commits.WithLabelValues(flow, outcome, string(category)).Inc()
	m.CommitDuration.WithLabelValues(flow, outcome).Observe(elapsed.Seconds())
}
