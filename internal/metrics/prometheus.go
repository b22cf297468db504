// Package metrics exposes Prometheus metrics for the refresh pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	resultSuccess = "success"
	resultFailure = "failure"
)

// Manager owns the refresh metrics on a private registry.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         *prometheus.Registry

	refreshTotal     *prometheus.CounterVec
	refreshDuration  prometheus.Histogram
	stageErrors      *prometheus.CounterVec
	lastSuccess      prometheus.Gauge
	membersPopulated *prometheus.GaugeVec
	coalesced        prometheus.Counter
	publishErrors    prometheus.Counter
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "forecast_panels",
		subsystem:        "pipeline",
		histogramBuckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.registry = prometheus.NewRegistry()
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.refreshTotal = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "refresh_total",
		Help:      "Completed refresh runs by result",
	}, []string{"result"})

	m.refreshDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "refresh_duration_seconds",
		Help:      "Wall time of a fetch, normalize and render run",
		Buckets:   m.histogramBuckets,
	})

	m.stageErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "stage_errors_total",
		Help:      "Refresh failures by pipeline stage",
	}, []string{"stage"})

	m.lastSuccess = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix time of the last stored artifact",
	})

	m.membersPopulated = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "members_populated",
		Help:      "Ensemble members present in the last dataset, per variable",
	}, []string{"variable"})

	m.coalesced = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "coalesced_triggers_total",
		Help:      "Refresh triggers that joined an in-flight run instead of starting one",
	})

	m.publishErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "publish_errors_total",
		Help:      "Stored artifacts that at least one sink failed to publish",
	})
}

// RefreshSucceeded records a stored artifact.
func (m *Manager) RefreshSucceeded(took time.Duration, at time.Time) {
	m.refreshTotal.WithLabelValues(resultSuccess).Inc()
	m.refreshDuration.Observe(took.Seconds())
	m.lastSuccess.Set(float64(at.Unix()))
}

// RefreshFailed records a run that failed in the named stage.
func (m *Manager) RefreshFailed(stage string, took time.Duration) {
	m.refreshTotal.WithLabelValues(resultFailure).Inc()
	m.refreshDuration.Observe(took.Seconds())
	m.stageErrors.WithLabelValues(stage).Inc()
}

// MembersPopulated sets the member count seen for a variable.
func (m *Manager) MembersPopulated(variable string, n int) {
	m.membersPopulated.WithLabelValues(variable).Set(float64(n))
}

// Coalesced counts a trigger that shared another caller's run.
func (m *Manager) Coalesced() {
	m.coalesced.Inc()
}

// PublishFailed counts an artifact that did not reach every sink.
func (m *Manager) PublishFailed() {
	m.publishErrors.Inc()
}

// Registry exposes the private registry so callers can add process-level collectors.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
