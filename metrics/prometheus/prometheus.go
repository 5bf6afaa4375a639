// Package prometheus provides the Prometheus implementation of metrics.Collector.
// It is only imported when Prometheus metrics are needed.
package prometheus

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sandrolain/responsecache/metrics"
)

// Collector implements metrics.Collector for Prometheus
type Collector struct {
	storeRequests    *prometheus.CounterVec
	storeOpDuration  *prometheus.HistogramVec
	storeFailures    *prometheus.CounterVec
	storeEntries     *prometheus.GaugeVec
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	httpResponseSize *prometheus.CounterVec
}

// CollectorConfig provides configuration options for the Prometheus collector
type CollectorConfig struct {
	// Registry is the Prometheus registry to use. If nil, uses prometheus.DefaultRegisterer
	Registry prometheus.Registerer

	// Namespace for metrics (default: "responsecache")
	Namespace string

	// Subsystem for metrics (optional)
	Subsystem string

	// ConstLabels are labels added to all metrics
	ConstLabels prometheus.Labels
}

// NewCollector creates a new Prometheus collector with default registry and configuration
func NewCollector() *Collector {
	return NewCollectorWithConfig(CollectorConfig{})
}

// NewCollectorWithRegistry creates a new Prometheus collector with a custom registry
func NewCollectorWithRegistry(reg prometheus.Registerer) *Collector {
	return NewCollectorWithConfig(CollectorConfig{
		Registry: reg,
	})
}

// NewCollectorWithConfig creates a new Prometheus collector with custom configuration
func NewCollectorWithConfig(config CollectorConfig) *Collector {
	if config.Registry == nil {
		config.Registry = prometheus.DefaultRegisterer
	}
	if config.Namespace == "" {
		config.Namespace = "responsecache"
	}

	factory := promauto.With(config.Registry)

	return &Collector{
		storeRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   config.Namespace,
				Subsystem:   config.Subsystem,
				Name:        "store_requests_total",
				Help:        "Total number of store operations",
				ConstLabels: config.ConstLabels,
			},
			[]string{"operation", "store_backend", "result"},
		),
		storeOpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   config.Namespace,
				Subsystem:   config.Subsystem,
				Name:        "store_operation_duration_seconds",
				Help:        "Duration of store operations in seconds",
				Buckets:     []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
				ConstLabels: config.ConstLabels,
			},
			[]string{"operation", "store_backend"},
		),
		storeFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   config.Namespace,
				Subsystem:   config.Subsystem,
				Name:        "store_failures_total",
				Help:        "Total number of store failures absorbed by the middleware",
				ConstLabels: config.ConstLabels,
			},
			[]string{"operation", "reason"},
		),
		storeEntries: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   config.Namespace,
				Subsystem:   config.Subsystem,
				Name:        "store_entries",
				Help:        "Current number of entries in the store",
				ConstLabels: config.ConstLabels,
			},
			[]string{"store_backend"},
		),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   config.Namespace,
				Subsystem:   config.Subsystem,
				Name:        "http_requests_total",
				Help:        "Total number of HTTP requests handled by the cache middleware",
				ConstLabels: config.ConstLabels,
			},
			[]string{"method", "decision", "status_code"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   config.Namespace,
				Subsystem:   config.Subsystem,
				Name:        "http_request_duration_seconds",
				Help:        "Duration of HTTP requests in seconds",
				Buckets:     []float64{.001, .005, .01, .05, .1, .5, 1, 2, 5, 10, 30},
				ConstLabels: config.ConstLabels,
			},
			[]string{"method", "decision"},
		),
		httpResponseSize: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   config.Namespace,
				Subsystem:   config.Subsystem,
				Name:        "http_response_size_bytes_total",
				Help:        "Total size of HTTP response bodies in bytes",
				ConstLabels: config.ConstLabels,
			},
			[]string{"decision"},
		),
	}
}

// RecordStoreOperation records a store operation
func (c *Collector) RecordStoreOperation(operation, backend, result string, duration time.Duration) {
	c.storeRequests.WithLabelValues(operation, backend, result).Inc()
	c.storeOpDuration.WithLabelValues(operation, backend).Observe(duration.Seconds())
}

// RecordStoreFailure records a store failure
func (c *Collector) RecordStoreFailure(operation, reason string) {
	c.storeFailures.WithLabelValues(operation, reason).Inc()
}

// RecordStoreEntries records the current number of store entries
func (c *Collector) RecordStoreEntries(backend string, count int64) {
	c.storeEntries.WithLabelValues(backend).Set(float64(count))
}

// RecordRequest records an HTTP request
func (c *Collector) RecordRequest(method, decision string, statusCode int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, decision, strconv.Itoa(statusCode)).Inc()
	c.httpDuration.WithLabelValues(method, decision).Observe(duration.Seconds())
}

// RecordResponseSize records HTTP response size
func (c *Collector) RecordResponseSize(decision string, sizeBytes int64) {
	c.httpResponseSize.WithLabelValues(decision).Add(float64(sizeBytes))
}

// Verify interface implementation at compile time
var _ metrics.Collector = (*Collector)(nil)
