// Package metrics provides Prometheus metrics for the questlog service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector the service exports.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Lifecycle
	transitions   *prometheus.CounterVec
	reviews       *prometheus.CounterVec
	missedMarked  prometheus.Counter
	awards        prometheus.Counter
	awardPoints   prometheus.Counter
	duplicateAwds prometheus.Counter

	// Deadline sweep
	sweepDuration prometheus.Histogram
	sweepLastUnix prometheus.Gauge

	// Persistence
	repositoryUpdateLatency prometheus.Histogram
	repositoryQueryLatency  prometheus.Histogram
	persistenceRetries      prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "questlog",
		subsystem:        "tracker",
		histogramBuckets: prometheus.DefBuckets,
		constLabels:      map[string]string{},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) histogramOpts(name, help string) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.transitions = auto.NewCounterVec(
		m.counterOpts("transitions_total", "Assignment and submission operations by outcome"),
		[]string{"operation", "outcome"},
	)
	m.reviews = auto.NewCounterVec(
		m.counterOpts("reviews_total", "Review decisions applied to submissions"),
		[]string{"decision"},
	)
	m.missedMarked = auto.NewCounter(m.counterOpts("assignments_missed_total", "Assignments moved to missed by deadline evaluation"))
	m.awards = auto.NewCounter(m.counterOpts("skill_awards_total", "Skill awards persisted"))
	m.awardPoints = auto.NewCounter(m.counterOpts("skill_award_points_total", "Adjusted points folded into skill ledgers"))
	m.duplicateAwds = auto.NewCounter(m.counterOpts("skill_awards_duplicate_total", "Award writes skipped because the submission was already scored"))

	m.sweepDuration = auto.NewHistogram(m.histogramOpts("sweep_duration_milliseconds", "Deadline sweep duration in milliseconds"))
	m.sweepLastUnix = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "sweep_last_unix",
		Help:        "Unix timestamp of the last completed deadline sweep",
		ConstLabels: m.constLabels,
	})

	m.repositoryUpdateLatency = auto.NewHistogram(m.histogramOpts("repository_update_latency_milliseconds", "Repository write transaction latency in milliseconds"))
	m.repositoryQueryLatency = auto.NewHistogram(m.histogramOpts("repository_query_latency_milliseconds", "Repository read transaction latency in milliseconds"))
	m.persistenceRetries = auto.NewCounter(m.counterOpts("persistence_retries_total", "Transactions retried after a transient storage failure"))

	m.httpRequests = auto.NewCounterVec(
		m.counterOpts("http_requests_total", "Total number of HTTP requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds"),
		[]string{"endpoint", "method", "status_code"},
	)

	m.errorRateByComponent = auto.NewCounterVec(
		m.counterOpts("errors_by_component_total", "Total number of errors by component"),
		[]string{"component", "error_type"},
	)
}

// RecordTransition counts a lifecycle operation with its outcome label.
func RecordTransition(operation, outcome string) {
	globalManager.transitions.WithLabelValues(operation, outcome).Inc()
}

// RecordReview counts an applied review decision.
func RecordReview(decision string) {
	globalManager.reviews.WithLabelValues(decision).Inc()
}

// RecordMissed counts assignments marked missed.
func RecordMissed(n int) {
	globalManager.missedMarked.Add(float64(n))
}

// RecordAward counts one persisted award and its adjusted points.
func RecordAward(points int) {
	globalManager.awards.Inc()
	if points > 0 {
		globalManager.awardPoints.Add(float64(points))
	}
}

// RecordDuplicateAward counts an award write skipped as already scored.
func RecordDuplicateAward() {
	globalManager.duplicateAwds.Inc()
}

// RecordSweep records a completed deadline sweep.
func RecordSweep(durationMs float64, finishedUnix int64) {
	globalManager.sweepDuration.Observe(durationMs)
	globalManager.sweepLastUnix.Set(float64(finishedUnix))
}

// RecordRepositoryUpdateLatency records repository write latency.
func RecordRepositoryUpdateLatency(latencyMs float64) {
	globalManager.repositoryUpdateLatency.Observe(latencyMs)
}

// RecordRepositoryQueryLatency records repository read latency.
func RecordRepositoryQueryLatency(latencyMs float64) {
	globalManager.repositoryQueryLatency.Observe(latencyMs)
}

// RecordPersistenceRetry counts one retried transaction.
func RecordPersistenceRetry() {
	globalManager.persistenceRetries.Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
