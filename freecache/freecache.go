// Package freecache provides a zero-GC overhead implementation of
// responsecache.Store using github.com/coocood/freecache as the underlying storage.
//
// This backend suits processes that keep millions of responses in memory
// with automatic LRU eviction.
//
// Example usage:
//
//	store := freecache.New(100*1024*1024, 0) // 100MB, no expiration
//	mw, _ := responsecache.New(store, time.Minute)
package freecache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coocood/freecache"
	"github.com/sandrolain/responsecache"
)

// Store is an implementation of responsecache.Store that uses freecache for storage.
type Store struct {
	cache      *freecache.Cache
	expiration time.Duration
}

// New creates a new Store with the specified size in bytes. The cache size
// will be set to 512KB at minimum. A positive expiration evicts entries that
// long after they were written; zero keeps them until the cache is full.
//
// For large cache sizes, you may want to call debug.SetGCPercent()
// with a lower value to reduce GC overhead.
func New(size int, expiration time.Duration) *Store {
	return &Store{
		cache:      freecache.NewCache(size),
		expiration: expiration,
	}
}

// Get returns the entry stored under id.
func (s *Store) Get(_ context.Context, id string) (responsecache.Entry, bool, error) {
	data, err := s.cache.Get([]byte(id))
	if errors.Is(err, freecache.ErrNotFound) {
		return responsecache.Entry{}, false, nil
	}
	if err != nil {
		return responsecache.Entry{}, false, fmt.Errorf("freecache get %q: %w", id, err)
	}
	entry, err := responsecache.DecodeEntry(data)
	if err != nil {
		return responsecache.Entry{}, false, err
	}
	return entry, true, nil
}

// Set stores the entry under id, evicting the least recently used entries
// when the cache is full. Entries larger than 1/1024 of the cache size are
// rejected by freecache.
func (s *Store) Set(_ context.Context, id string, entry responsecache.Entry) error {
	data, err := responsecache.EncodeEntry(entry.Stamp(time.Now()))
	if err != nil {
		return err
	}
	if err := s.cache.Set([]byte(id), data, int(s.expiration/time.Second)); err != nil {
		return fmt.Errorf("freecache set %q: %w", id, err)
	}
	return nil
}

// EntryCount returns the number of entries currently in the cache
func (s *Store) EntryCount() int64 {
	return s.cache.EntryCount()
}

// HitRate returns the ratio of hits to total lookups
func (s *Store) HitRate() float64 {
	return s.cache.HitRate()
}

// EvacuateCount returns the number of times entries were evicted due to cache being full
func (s *Store) EvacuateCount() int64 {
	return s.cache.EvacuateCount()
}

// Clear removes all entries from the cache
func (s *Store) Clear() {
	s.cache.Clear()
}
