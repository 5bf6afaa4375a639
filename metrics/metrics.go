// Package metrics provides an interface for collecting response cache metrics.
// It defines a generic interface that can be implemented by various metrics
// systems (Prometheus, DDSketch, ...) without adding dependencies to the core
// responsecache package.
package metrics

import (
	"time"
)

// Result values recorded for store operations.
const (
	ResultHit     = "hit"
	ResultMiss    = "miss"
	ResultSuccess = "success"
	ResultError   = "error"
)

// Failure reasons recorded with RecordStoreFailure.
const (
	ReasonStorageUnavailable = "storage_unavailable"
	ReasonMalformedEntry     = "malformed_entry"
	ReasonOther              = "other"
)

// Collector defines the interface for metrics collection.
type Collector interface {
	// RecordStoreOperation records a store operation
	// Parameters:
	//   - operation: "get" or "set"
	//   - backend: store backend name (e.g., "memory", "redis", "leveldb")
	//   - result: ResultHit, ResultMiss, ResultSuccess or ResultError
	//   - duration: operation duration
	RecordStoreOperation(operation, backend, result string, duration time.Duration)

	// RecordStoreFailure records a store failure absorbed by the middleware
	// Parameters:
	//   - operation: "get" or "set"
	//   - reason: one of the Reason* constants
	RecordStoreFailure(operation, reason string)

	// RecordStoreEntries records the current number of stored entries
	RecordStoreEntries(backend string, count int64)

	// RecordRequest records a request handled by the middleware
	// Parameters:
	//   - method: HTTP method
	//   - decision: "deny", "hit" or "miss"
	//   - statusCode: HTTP status code written to the client
	//   - duration: time spent in the middleware, downstream included
	RecordRequest(method, decision string, statusCode int, duration time.Duration)

	// RecordResponseSize records the body size of a response
	RecordResponseSize(decision string, sizeBytes int64)
}

// NoOpCollector implements Collector with no-op operations.
// It is the default collector when metrics are not enabled.
type NoOpCollector struct{}

// RecordStoreOperation does nothing (no-op implementation)
func (n *NoOpCollector) RecordStoreOperation(operation, backend, result string, duration time.Duration) {
}

// RecordStoreFailure does nothing (no-op implementation)
func (n *NoOpCollector) RecordStoreFailure(operation, reason string) {}

// RecordStoreEntries does nothing (no-op implementation)
func (n *NoOpCollector) RecordStoreEntries(backend string, count int64) {}

// RecordRequest does nothing (no-op implementation)
func (n *NoOpCollector) RecordRequest(method, decision string, statusCode int, duration time.Duration) {
}

// RecordResponseSize does nothing (no-op implementation)
func (n *NoOpCollector) RecordResponseSize(decision string, sizeBytes int64) {}

// DefaultCollector is the default no-op collector used when metrics are not enabled
var DefaultCollector Collector = &NoOpCollector{}

// Multi fans every record out to all collectors.
type Multi []Collector

func (m Multi) RecordStoreOperation(operation, backend, result string, duration time.Duration) {
	for _, c := range m {
		c.RecordStoreOperation(operation, backend, result, duration)
	}
}

func (m Multi) RecordStoreFailure(operation, reason string) {
	for _, c := range m {
		c.RecordStoreFailure(operation, reason)
	}
}

func (m Multi) RecordStoreEntries(backend string, count int64) {
	for _, c := range m {
		c.RecordStoreEntries(backend, count)
	}
}

func (m Multi) RecordRequest(method, decision string, statusCode int, duration time.Duration) {
	for _, c := range m {
		c.RecordRequest(method, decision, statusCode, duration)
	}
}

func (m Multi) RecordResponseSize(decision string, sizeBytes int64) {
	for _, c := range m {
		c.RecordResponseSize(decision, sizeBytes)
	}
}

// Verify that NoOpCollector and Multi implement Collector
var (
	_ Collector = (*NoOpCollector)(nil)
	_ Collector = Multi(nil)
)
