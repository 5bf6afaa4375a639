package responsecache

import (
	"context"
	"sync"
	"time"
)

// A Store persists cache entries keyed by an opaque cache id.
//
// Get reports found=false for an absent id; the entry is never partially
// populated. Set overwrites any previous entry for the id atomically. When
// entry.Modified is zero the store records its own write time, otherwise the
// given time is persisted as-is (used to migrate or pre-date entries).
// Implementations wrap ErrStorageUnavailable when the backing location cannot
// be written and ErrMalformedEntry when stored data cannot be decoded.
type Store interface {
	Get(ctx context.Context, id string) (entry Entry, found bool, err error)
	Set(ctx context.Context, id string, entry Entry) error
}

// Clock supplies the current time. Tests substitute a fixed clock.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// SystemClock is the Clock backed by time.Now.
var SystemClock Clock = realClock{}

// MemoryStore is a Store that keeps entries in an in-memory map.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]Entry
	clock Clock
}

// NewMemoryStore returns an empty MemoryStore. A nil clock uses SystemClock.
func NewMemoryStore(clock Clock) *MemoryStore {
	if clock == nil {
		clock = SystemClock
	}
	return &MemoryStore{items: map[string]Entry{}, clock: clock}
}

// Get returns a copy of the entry stored under id.
func (s *MemoryStore) Get(_ context.Context, id string) (Entry, bool, error) {
	s.mu.RLock()
	e, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return Entry{}, false, nil
	}
	return e.Clone(), true, nil
}

// Set stores a copy of entry under id.
func (s *MemoryStore) Set(_ context.Context, id string, entry Entry) error {
	e := entry.Clone().Stamp(s.clock.Now())
	s.mu.Lock()
	s.items[id] = e
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
