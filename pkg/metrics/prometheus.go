// Package metrics provides Prometheus metrics for the Canary scoring engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the Canary service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Probe metrics
	probesTotal   *prometheus.CounterVec
	probeDuration prometheus.Histogram

	// Event log metrics
	eventsEmitted  prometheus.Counter
	eventsDropped  prometheus.Counter
	appendRetries  prometheus.Counter
	appendDuration prometheus.Histogram

	// Scheduler metrics
	ticksSkipped      *prometheus.CounterVec
	schedulersRunning prometheus.Gauge
	lastFiringUnixMS  *prometheus.GaugeVec

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "canary",
		subsystem:        "scoring",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.probesTotal = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "probes_total",
			Help:      "Total probes executed by check, probe family, and result",
		},
		[]string{"check", "family", "result"},
	)

	m.probeDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "probe_duration_seconds",
		Help:      "Wall-clock duration of individual probes",
		Buckets:   m.histogramBuckets,
	})

	m.eventsEmitted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_emitted_total",
		Help:      "Total scoring events appended to the log store",
	})

	m.eventsDropped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_dropped_total",
		Help:      "Total scoring events dropped after exhausting append retries",
	})

	m.appendRetries = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "append_retries_total",
		Help:      "Total retried log append attempts",
	})

	m.appendDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "append_duration_seconds",
		Help:      "Duration of log append calls including retries",
		Buckets:   m.histogramBuckets,
	})

	m.ticksSkipped = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "ticks_skipped_total",
			Help:      "Aligned ticks skipped because the prior firing was still running",
		},
		[]string{"check"},
	)

	m.schedulersRunning = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "schedulers_running",
		Help:      "Number of check schedulers currently running",
	})

	m.lastFiringUnixMS = auto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "last_firing_unix_ms",
			Help:      "Aligned timestamp of the last completed firing per check",
		},
		[]string{"check"},
	)

	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by endpoint and method",
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_request_duration_milliseconds",
			Help:      "HTTP request duration in milliseconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"endpoint", "method", "status_code"},
	)
}

// RecordProbe records one completed probe.
func RecordProbe(check, family string, success bool, durationSeconds float64) {
	result := "fail"
	if success {
		result = "pass"
	}
	globalManager.probesTotal.WithLabelValues(check, family, result).Inc()
	globalManager.probeDuration.Observe(durationSeconds)
}

// RecordEventEmitted increments the emitted events counter.
func RecordEventEmitted() {
	globalManager.eventsEmitted.Inc()
}

// RecordEventDropped increments the dropped events counter.
func RecordEventDropped() {
	globalManager.eventsDropped.Inc()
}

// RecordAppendRetry increments the append retry counter.
func RecordAppendRetry() {
	globalManager.appendRetries.Inc()
}

// RecordAppendDuration records the duration of a log append call.
func RecordAppendDuration(seconds float64) {
	globalManager.appendDuration.Observe(seconds)
}

// RecordTickSkipped increments the skipped tick counter for a check.
func RecordTickSkipped(check string) {
	globalManager.ticksSkipped.WithLabelValues(check).Inc()
}

// UpdateSchedulersRunning sets the number of running schedulers.
func UpdateSchedulersRunning(count int) {
	globalManager.schedulersRunning.Set(float64(count))
}

// UpdateLastFiring sets the last completed firing timestamp for a check.
func UpdateLastFiring(check string, alignedTSMS int64) {
	globalManager.lastFiringUnixMS.WithLabelValues(check).Set(float64(alignedTSMS))
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
