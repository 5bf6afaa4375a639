// Package natskv provides a NATS JetStream Key/Value backed
// responsecache.Store.
package natskv

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/sandrolain/responsecache"
)

// Config holds the configuration for creating a NATS K/V store.
type Config struct {
	// NATSUrl is the URL of the NATS server (e.g., "nats://localhost:4222").
	// If empty, defaults to nats.DefaultURL.
	NATSUrl string

	// Bucket is the name of the K/V bucket holding entries.
	// Required field.
	Bucket string

	// Description is an optional description for the K/V bucket.
	Description string

	// TTL is the time-to-live for stored entries.
	// If zero, entries don't expire (unless deleted by NATS based on other policies).
	TTL time.Duration

	// NATSOptions are additional options to pass to nats.Connect.
	// Optional.
	NATSOptions []nats.Option
}

// Store is an implementation of responsecache.Store that keeps encoded
// entries in a NATS JetStream Key/Value bucket.
type Store struct {
	kv jetstream.KeyValue
	nc *nats.Conn
}

// key maps a cache id to a valid K/V key. NATS keys are limited to a small
// character set, so ids are hashed.
func key(id string) string {
	sum := sha256.Sum256([]byte(id))
	return "responsecache." + hex.EncodeToString(sum[:])
}

// Get returns the entry stored under id.
func (s *Store) Get(ctx context.Context, id string) (responsecache.Entry, bool, error) {
	kve, err := s.kv.Get(ctx, key(id))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return responsecache.Entry{}, false, nil
		}
		return responsecache.Entry{}, false, fmt.Errorf("natskv store get failed for id %q: %w", id, err)
	}
	entry, err := responsecache.DecodeEntry(kve.Value())
	if err != nil {
		return responsecache.Entry{}, false, fmt.Errorf("natskv store id %q: %w", id, err)
	}
	return entry, true, nil
}

// Set replaces the entry under id.
func (s *Store) Set(ctx context.Context, id string, entry responsecache.Entry) error {
	data, err := responsecache.EncodeEntry(entry.Stamp(time.Now()))
	if err != nil {
		return err
	}
	if _, err := s.kv.Put(ctx, key(id), data); err != nil {
		if s.unavailable(err) {
			return fmt.Errorf("natskv store set failed for id %q: %w: %w", id, responsecache.ErrStorageUnavailable, err)
		}
		return fmt.Errorf("natskv store set failed for id %q: %w", id, err)
	}
	return nil
}

func (s *Store) unavailable(err error) bool {
	if s.nc != nil && s.nc.IsClosed() {
		return true
	}
	return errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, jetstream.ErrBucketNotFound)
}

// Close closes the underlying NATS connection if it was created by New().
// It's a no-op when using NewWithKeyValue().
func (s *Store) Close() error {
	if s.nc != nil {
		s.nc.Close()
	}
	return nil
}

// New creates a new Store with the given configuration.
// It establishes a connection to NATS, creates a JetStream context,
// and creates or updates the K/V bucket according to the configuration.
// The caller should call Close() on the returned store when done.
func New(ctx context.Context, config Config) (*Store, error) {
	if config.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	url := config.NATSUrl
	if url == "" {
		url = nats.DefaultURL
	}

	nc, err := nats.Connect(url, config.NATSOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      config.Bucket,
		Description: config.Description,
		TTL:         config.TTL,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create or update K/V bucket: %w", err)
	}

	return &Store{kv: kv, nc: nc}, nil
}

// NewWithKeyValue returns a new Store with the given JetStream KeyValue.
// The returned store will not close the NATS connection when Close() is called.
func NewWithKeyValue(kv jetstream.KeyValue) *Store {
	return &Store{kv: kv}
}
