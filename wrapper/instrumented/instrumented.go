// Package instrumented wraps a responsecache.Store with operation metrics.
package instrumented

import (
	"context"
	"time"

	"github.com/sandrolain/responsecache"
	"github.com/sandrolain/responsecache/metrics"
)

// Counter is implemented by stores that can report how many entries they
// hold. The count is recorded after every successful write.
type Counter interface {
	Len() int
}

// Store wraps a responsecache.Store and records the outcome and latency of
// each call.
type Store struct {
	underlying responsecache.Store
	collector  metrics.Collector
	backend    string // backend name: "memory", "redis", "leveldb", etc.
}

// New creates a Store that records metrics for all operations.
//
// Parameters:
//   - store: the underlying store to wrap
//   - backend: the name of the store backend (e.g., "disk", "redis", "leveldb")
//   - collector: the metrics collector (if nil, uses metrics.DefaultCollector)
//
// Example:
//
//	collector := prometheus.NewCollector()
//	store := instrumented.New(diskstore.New("/tmp/cache"), "disk", collector)
func New(store responsecache.Store, backend string, collector metrics.Collector) *Store {
	if collector == nil {
		collector = metrics.DefaultCollector
	}
	return &Store{underlying: store, collector: collector, backend: backend}
}

// Get retrieves an entry with metrics recording.
func (s *Store) Get(ctx context.Context, id string) (responsecache.Entry, bool, error) {
	start := time.Now()
	entry, found, err := s.underlying.Get(ctx, id)
	duration := time.Since(start)

	result := metrics.ResultMiss
	if err != nil {
		result = metrics.ResultError
	} else if found {
		result = metrics.ResultHit
	}
	s.collector.RecordStoreOperation("get", s.backend, result, duration)

	return entry, found, err
}

// Set stores an entry with metrics recording.
func (s *Store) Set(ctx context.Context, id string, entry responsecache.Entry) error {
	start := time.Now()
	err := s.underlying.Set(ctx, id, entry)
	duration := time.Since(start)

	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	s.collector.RecordStoreOperation("set", s.backend, result, duration)

	if c, ok := s.underlying.(Counter); ok && err == nil {
		s.collector.RecordStoreEntries(s.backend, int64(c.Len()))
	}
	return err
}

// Verify interface implementation at compile time
var _ responsecache.Store = (*Store)(nil)
