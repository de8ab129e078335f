package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors
type Metrics struct {
	registry *prometheus.Registry

	// Orchestrator metrics
	SetupsTotal      *prometheus.CounterVec
	InstallsTotal    *prometheus.CounterVec
	InstallDuration  prometheus.Histogram
	DevServerStarts  *prometheus.CounterVec
	FailuresTotal    *prometheus.CounterVec
	SessionsActive   prometheus.Gauge
	SkippedManifests prometheus.Counter

	// Sandbox metrics
	SandboxMessages *prometheus.CounterVec
	SandboxPending  prometheus.Gauge
	SyncMessages    prometheus.Counter

	// Bridge metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewMetrics creates a metrics collector with its own registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		SetupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "devcontainer_setups_total",
				Help: "Project setups by outcome",
			},
			[]string{"result"},
		),
		InstallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "devcontainer_installs_total",
				Help: "Dependency installs by outcome",
			},
			[]string{"result"},
		),
		InstallDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "devcontainer_install_duration_seconds",
				Help:    "Dependency install duration in seconds",
				Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
		),
		DevServerStarts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "devcontainer_devserver_starts_total",
				Help: "Dev server starts by transport mode and outcome",
			},
			[]string{"mode", "result"},
		),
		FailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "devcontainer_failures_total",
				Help: "Classified dev server failures by kind",
			},
			[]string{"kind"},
		),
		SessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "devcontainer_sessions_active",
				Help: "Runtime sessions currently initialized",
			},
		),
		SkippedManifests: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "devcontainer_skipped_manifests_total",
				Help: "Manifest updates skipped because they failed validation",
			},
		),

		SandboxMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "devcontainer_sandbox_messages_total",
				Help: "Sandbox channel messages by direction and type",
			},
			[]string{"direction", "type"},
		),
		SandboxPending: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "devcontainer_sandbox_pending_requests",
				Help: "Correlated sandbox requests awaiting a reply",
			},
		),
		SyncMessages: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "devcontainer_sync_messages_total",
				Help: "File sync messages mirrored to the sandbox",
			},
		),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "devcontainer_bridge_requests_total",
				Help: "Preview requests served by the bridge",
			},
			[]string{"method", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "devcontainer_bridge_request_duration_seconds",
				Help:    "Preview request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"method"},
		),
	}
}

// Registry returns the private registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus exposition handler for this registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records a bridge request
func (m *Metrics) RecordHTTPRequest(method, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, status).Inc()
	m.RequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordSetup records a setup outcome
func (m *Metrics) RecordSetup(err error) {
	if m == nil {
		return
	}
	m.SetupsTotal.WithLabelValues(result(err)).Inc()
}

// RecordInstall records an install outcome and its duration
func (m *Metrics) RecordInstall(err error, duration time.Duration) {
	if m == nil {
		return
	}
	m.InstallsTotal.WithLabelValues(result(err)).Inc()
	m.InstallDuration.Observe(duration.Seconds())
}

// RecordDevServerStart records a dev server start outcome
func (m *Metrics) RecordDevServerStart(mode string, err error) {
	if m == nil {
		return
	}
	m.DevServerStarts.WithLabelValues(mode, result(err)).Inc()
}

// RecordFailure records a classified failure kind
func (m *Metrics) RecordFailure(kind string) {
	if m == nil {
		return
	}
	m.FailuresTotal.WithLabelValues(kind).Inc()
}

// RecordSandboxMessage records a message crossing the sandbox channel
func (m *Metrics) RecordSandboxMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.SandboxMessages.WithLabelValues(direction, msgType).Inc()
}

// SetSandboxPending sets the in-flight request gauge
func (m *Metrics) SetSandboxPending(n int) {
	if m == nil {
		return
	}
	m.SandboxPending.Set(float64(n))
}

// IncSync counts a mirrored file sync
func (m *Metrics) IncSync() {
	if m == nil {
		return
	}
	m.SyncMessages.Inc()
}

// IncSkippedManifest counts a skipped manifest update
func (m *Metrics) IncSkippedManifest() {
	if m == nil {
		return
	}
	m.SkippedManifests.Inc()
}

// SessionStarted marks a runtime session as initialized
func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
}

// SessionEnded marks a runtime session as torn down
func (m *Metrics) SessionEnded() {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
