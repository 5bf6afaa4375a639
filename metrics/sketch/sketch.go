// Package sketch implements metrics.Collector with DDSketch latency
// quantiles, for deployments that want percentile reports in the logs
// without a metrics server.
package sketch

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"
	"github.com/sandrolain/responsecache/metrics"
)

// LatencyTracker tracks latency quantiles per series using DDSketch.
type LatencyTracker struct {
	mu               sync.Mutex
	sketches         map[string]*ddsketch.DDSketch
	relativeAccuracy float64
}

// NewLatencyTracker creates a new latency tracker.
// relativeAccuracy determines the accuracy of quantile estimates (e.g., 0.01 = 1% accuracy)
func NewLatencyTracker(relativeAccuracy float64) *LatencyTracker {
	return &LatencyTracker{
		sketches:         make(map[string]*ddsketch.DDSketch),
		relativeAccuracy: relativeAccuracy,
	}
}

// Record records a duration for the given series.
func (lt *LatencyTracker) Record(series string, duration time.Duration) {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	sketch, exists := lt.sketches[series]
	if !exists {
		var err error
		sketch, err = ddsketch.LogUnboundedDenseDDSketch(lt.relativeAccuracy)
		if err != nil {
			sketch, _ = ddsketch.NewDefaultDDSketch(lt.relativeAccuracy)
		}
		lt.sketches[series] = sketch
	}

	// milliseconds
	_ = sketch.Add(float64(duration.Microseconds()) / 1000.0)
}

// Stats summarizes one series, in milliseconds.
type Stats struct {
	Series string
	Count  int64
	Min    float64
	P50    float64
	P90    float64
	P99    float64
	Max    float64
}

// GetStats returns statistics for the given series.
func (lt *LatencyTracker) GetStats(series string) (Stats, error) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	return lt.statsLocked(series)
}

func (lt *LatencyTracker) statsLocked(series string) (Stats, error) {
	sketch, exists := lt.sketches[series]
	if !exists {
		return Stats{}, fmt.Errorf("no data for series: %s", series)
	}

	count := sketch.GetCount()
	if count == 0 {
		return Stats{Series: series}, nil
	}

	min, _ := sketch.GetMinValue()
	p50, _ := sketch.GetValueAtQuantile(0.50)
	p90, _ := sketch.GetValueAtQuantile(0.90)
	p99, _ := sketch.GetValueAtQuantile(0.99)
	max, _ := sketch.GetMaxValue()

	return Stats{
		Series: series,
		Count:  int64(count),
		Min:    min,
		P50:    p50,
		P90:    p90,
		P99:    p99,
		Max:    max,
	}, nil
}

// GetAllStats returns statistics for all tracked series, sorted by name.
func (lt *LatencyTracker) GetAllStats() []Stats {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	stats := make([]Stats, 0, len(lt.sketches))
	for series := range lt.sketches {
		if s, err := lt.statsLocked(series); err == nil {
			stats = append(stats, s)
		}
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Series < stats[j].Series })
	return stats
}

func (s Stats) String() string {
	if s.Count == 0 {
		return fmt.Sprintf("%s: no data", s.Series)
	}
	return fmt.Sprintf("%s (n=%d): min=%.2fms p50=%.2fms p90=%.2fms p99=%.2fms max=%.2fms",
		s.Series, s.Count, s.Min, s.P50, s.P90, s.P99, s.Max)
}

// Collector records request and store latencies into a LatencyTracker.
// Counters without a duration are ignored.
type Collector struct {
	Tracker *LatencyTracker
}

// NewCollector returns a Collector with 1% relative accuracy.
func NewCollector() *Collector {
	return &Collector{Tracker: NewLatencyTracker(0.01)}
}

func (c *Collector) RecordStoreOperation(operation, backend, result string, duration time.Duration) {
	c.Tracker.Record("store."+backend+"."+operation, duration)
}

func (c *Collector) RecordStoreFailure(operation, reason string) {}

func (c *Collector) RecordStoreEntries(backend string, count int64) {}

func (c *Collector) RecordRequest(method, decision string, statusCode int, duration time.Duration) {
	c.Tracker.Record("request."+decision, duration)
}

func (c *Collector) RecordResponseSize(decision string, sizeBytes int64) {}

var _ metrics.Collector = (*Collector)(nil)
