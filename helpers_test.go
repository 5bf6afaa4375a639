package responsecache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: epoch} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// scriptedStore wraps a MemoryStore and can be told to fail.
type scriptedStore struct {
	*MemoryStore
	getErr error
	setErr error
	gets   atomic.Int32
	sets   atomic.Int32
}

func newScriptedStore(clock Clock) *scriptedStore {
	return &scriptedStore{MemoryStore: NewMemoryStore(clock)}
}

func (s *scriptedStore) Get(ctx context.Context, id string) (Entry, bool, error) {
	s.gets.Add(1)
	if s.getErr != nil {
		return Entry{}, false, s.getErr
	}
	return s.MemoryStore.Get(ctx, id)
}

func (s *scriptedStore) Set(ctx context.Context, id string, e Entry) error {
	s.sets.Add(1)
	if s.setErr != nil {
		return s.setErr
	}
	return s.MemoryStore.Set(ctx, id, e)
}

type recordingCollector struct {
	mu        sync.Mutex
	decisions []string
	failures  []string
}

func (c *recordingCollector) RecordStoreOperation(operation, backend, result string, duration time.Duration) {
}

func (c *recordingCollector) RecordStoreFailure(operation, reason string) {
	c.mu.Lock()
	c.failures = append(c.failures, operation+":"+reason)
	c.mu.Unlock()
}

func (c *recordingCollector) RecordStoreEntries(backend string, count int64) {}

func (c *recordingCollector) RecordRequest(method, decision string, statusCode int, duration time.Duration) {
	c.mu.Lock()
	c.decisions = append(c.decisions, decision)
	c.mu.Unlock()
}

func (c *recordingCollector) RecordResponseSize(decision string, sizeBytes int64) {}
