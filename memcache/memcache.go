// Package memcache provides an implementation of responsecache.Store that uses
// gomemcache to store cached responses.
package memcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/sandrolain/responsecache"
)

// Store is an implementation of responsecache.Store that keeps responses in
// memcache servers.
type Store struct {
	*memcache.Client
	expiration time.Duration
}

// storeKey maps a cache id to a valid memcache key. Ids are hashed because
// memcache keys are limited to 250 bytes without spaces or control characters.
func storeKey(id string) string {
	sum := sha256.Sum256([]byte(id))
	return "responsecache:" + hex.EncodeToString(sum[:])
}

// Get returns the entry stored under id.
func (s *Store) Get(_ context.Context, id string) (responsecache.Entry, bool, error) {
	item, err := s.Client.Get(storeKey(id))
	if errors.Is(err, memcache.ErrCacheMiss) {
		return responsecache.Entry{}, false, nil
	}
	if err != nil {
		return responsecache.Entry{}, false, fmt.Errorf("memcache get %q: %w", id, err)
	}
	entry, err := responsecache.DecodeEntry(item.Value)
	if err != nil {
		return responsecache.Entry{}, false, err
	}
	return entry, true, nil
}

// Set saves the entry under id.
func (s *Store) Set(_ context.Context, id string, entry responsecache.Entry) error {
	data, err := responsecache.EncodeEntry(entry.Stamp(time.Now()))
	if err != nil {
		return err
	}
	item := &memcache.Item{
		Key:        storeKey(id),
		Value:      data,
		Expiration: int32(s.expiration / time.Second),
	}
	if err := s.Client.Set(item); err != nil {
		responsecache.GetLogger().Warn("failed to write to memcache", "id", id, "error", err)
		return fmt.Errorf("memcache set %q: %w", id, err)
	}
	return nil
}

// New returns a new Store using the provided memcache server(s) with equal
// weight. If a server is listed multiple times, it gets a proportional amount
// of weight.
func New(server ...string) *Store {
	return NewWithClient(memcache.New(server...), 0)
}

// NewWithClient returns a new Store with the given memcache client. A
// positive expiration lets memcache drop entries that long after writing.
func NewWithClient(client *memcache.Client, expiration time.Duration) *Store {
	return &Store{Client: client, expiration: expiration}
}
