package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/tabsynth/pkg/constants"
)

// Status label values
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// PrometheusMetrics provides Prometheus-based metrics collection on a private registry.
// Every recording method is safe to call on a nil receiver.
type PrometheusMetrics struct {
	logger   *logrus.Logger
	registry *prometheus.Registry
	config   *PrometheusConfig

	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Synthesis metrics
	describeRequestsTotal   *prometheus.CounterVec
	describeDuration        *prometheus.HistogramVec
	generationRequestsTotal *prometheus.CounterVec
	generationDuration      *prometheus.HistogramVec
	generationActive        prometheus.Gauge
	generatedRowsTotal      *prometheus.CounterVec
	networkEdges            prometheus.Gauge
	epsilonSpentTotal       *prometheus.CounterVec

	// Storage metrics
	storageOperationsTotal *prometheus.CounterVec
	storageDuration        *prometheus.HistogramVec
}

// PrometheusConfig configures Prometheus metrics
type PrometheusConfig struct {
	Enabled   bool   `json:"enabled" mapstructure:"enabled"`
	Path      string `json:"path" mapstructure:"path"`
	Namespace string `json:"namespace" mapstructure:"namespace"`
	Subsystem string `json:"subsystem" mapstructure:"subsystem"`
}

// DefaultPrometheusConfig returns the configuration used when none is supplied
func DefaultPrometheusConfig() *PrometheusConfig {
	return &PrometheusConfig{
		Enabled:   true,
		Path:      "/metrics",
		Namespace: constants.AppName,
		Subsystem: "synthesis",
	}
}

// NewPrometheusMetrics creates a new Prometheus metrics instance
func NewPrometheusMetrics(config *PrometheusConfig, logger *logrus.Logger) (*PrometheusMetrics, error) {
	if config == nil {
		config = DefaultPrometheusConfig()
	}

	if logger == nil {
		logger = logrus.New()
	}

	pm := &PrometheusMetrics{
		logger:   logger,
		registry: prometheus.NewRegistry(),
		config:   config,
	}

	pm.initializeMetrics()

	if err := pm.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	return pm, nil
}

// Handler serves the registry in the Prometheus exposition format
func (pm *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(pm.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// GetRegistry returns the Prometheus registry
func (pm *PrometheusMetrics) GetRegistry() *prometheus.Registry {
	return pm.registry
}

// GetConfig returns the configuration
func (pm *PrometheusMetrics) GetConfig() *PrometheusConfig {
	return pm.config
}

// RecordHTTPRequest counts one served request
func (pm *PrometheusMetrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if pm == nil {
		return
	}
	pm.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	pm.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordDescribe counts one dataset description run
func (pm *PrometheusMetrics) RecordDescribe(mode string, err error, duration time.Duration) {
	if pm == nil {
		return
	}
	pm.describeRequestsTotal.WithLabelValues(mode, status(err)).Inc()
	pm.describeDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// RecordGeneration counts one generation run and the rows it produced
func (pm *PrometheusMetrics) RecordGeneration(mode string, rows int, err error, duration time.Duration) {
	if pm == nil {
		return
	}
	pm.generationRequestsTotal.WithLabelValues(mode, status(err)).Inc()
	pm.generationDuration.WithLabelValues(mode).Observe(duration.Seconds())
	if err == nil {
		pm.generatedRowsTotal.WithLabelValues(mode).Add(float64(rows))
	}
}

// GenerationStarted marks a generation as in flight and returns the function that ends it
func (pm *PrometheusMetrics) GenerationStarted() func() {
	if pm == nil {
		return func() {}
	}
	pm.generationActive.Inc()
	return pm.generationActive.Dec
}

// SetNetworkEdges records the size of the most recently learned network
func (pm *PrometheusMetrics) SetNetworkEdges(edges int) {
	if pm == nil {
		return
	}
	pm.networkEdges.Set(float64(edges))
}

// AddEpsilonSpent accumulates privacy budget by purpose
func (pm *PrometheusMetrics) AddEpsilonSpent(purpose string, epsilon float64) {
	if pm == nil || epsilon <= 0 {
		return
	}
	pm.epsilonSpentTotal.WithLabelValues(purpose).Add(epsilon)
}

// RecordStorageOperation counts one description store operation
func (pm *PrometheusMetrics) RecordStorageOperation(backend, operation string, err error, duration time.Duration) {
	if pm == nil {
		return
	}
	pm.storageOperationsTotal.WithLabelValues(backend, operation, status(err)).Inc()
	pm.storageDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
}

func status(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}

// initializeMetrics initializes all Prometheus metrics
func (pm *PrometheusMetrics) initializeMetrics() {
	namespace := pm.config.Namespace
	subsystem := pm.config.Subsystem

	// HTTP metrics
	pm.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	pm.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Synthesis metrics
	pm.describeRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "describe_requests_total",
			Help:      "Total number of dataset description runs",
		},
		[]string{"mode", "status"},
	)

	pm.describeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "describe_duration_seconds",
			Help:      "Dataset description duration in seconds",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
		[]string{"mode"},
	)

	pm.generationRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "generation_requests_total",
			Help:      "Total number of generation requests",
		},
		[]string{"mode", "status"},
	)

	pm.generationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "generation_duration_seconds",
			Help:      "Generation request duration in seconds",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
		},
		[]string{"mode"},
	)

	pm.generationActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "generation_active",
			Help:      "Number of active generation requests",
		},
	)

	pm.generatedRowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "generated_rows_total",
			Help:      "Total number of synthetic rows produced",
		},
		[]string{"mode"},
	)

	pm.networkEdges = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "bayesian_network_edges",
			Help:      "Number of edges in the most recently learned Bayesian network",
		},
	)

	pm.epsilonSpentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "epsilon_spent_total",
			Help:      "Privacy budget spent, by purpose",
		},
		[]string{"purpose"},
	)

	// Storage metrics
	pm.storageOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "operations_total",
			Help:      "Total number of storage operations",
		},
		[]string{"backend", "operation", "status"},
	)

	pm.storageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "operation_duration_seconds",
			Help:      "Storage operation duration in seconds",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5},
		},
		[]string{"backend", "operation"},
	)
}

// registerMetrics registers all metrics with the Prometheus registry
func (pm *PrometheusMetrics) registerMetrics() error {
	metrics := []prometheus.Collector{
		pm.httpRequestsTotal,
		pm.httpRequestDuration,
		pm.describeRequestsTotal,
		pm.describeDuration,
		pm.generationRequestsTotal,
		pm.generationDuration,
		pm.generationActive,
		pm.generatedRowsTotal,
		pm.networkEdges,
		pm.epsilonSpentTotal,
		pm.storageOperationsTotal,
		pm.storageDuration,
	}

	for _, metric := range metrics {
		if err := pm.registry.Register(metric); err != nil {
			return fmt.Errorf("failed to register metric: %w", err)
		}
	}

	return nil
}
