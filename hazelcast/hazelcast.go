// Package hazelcast provides a Hazelcast backed responsecache.Store.
package hazelcast

import (
	"context"
	"fmt"
	"time"

	"github.com/hazelcast/hazelcast-go-client"
	"github.com/hazelcast/hazelcast-go-client/types"
	"github.com/sandrolain/responsecache"
)

// Config holds the configuration for creating a Hazelcast store.
type Config struct {
	// Addresses are the cluster member addresses (e.g., "localhost:5701").
	// Optional - defaults to the client default.
	Addresses []string

	// ClusterName is the name of the cluster to join.
	// Optional - defaults to "dev".
	ClusterName string

	// MapName is the distributed map holding entries.
	// Optional - defaults to "responsecache".
	MapName string

	// ConnectTimeout bounds the initial cluster connection.
	// Optional - defaults to 5 seconds.
	ConnectTimeout time.Duration
}

// Store is an implementation of responsecache.Store that keeps encoded
// entries in a Hazelcast distributed map.
type Store struct {
	m      *hazelcast.Map
	client *hazelcast.Client
}

// key prefixes ids to avoid collision with other data stored in the map.
func key(id string) string {
	return "responsecache:" + id
}

// Get returns the entry stored under id.
func (s *Store) Get(ctx context.Context, id string) (responsecache.Entry, bool, error) {
	val, err := s.m.Get(ctx, key(id))
	if err != nil {
		return responsecache.Entry{}, false, fmt.Errorf("hazelcast store get failed for id %q: %w", id, err)
	}
	if val == nil {
		return responsecache.Entry{}, false, nil
	}

	data, ok := val.([]byte)
	if !ok {
		return responsecache.Entry{}, false, fmt.Errorf("hazelcast store id %q: %w: unexpected value type %T", id, responsecache.ErrMalformedEntry, val)
	}
	entry, err := responsecache.DecodeEntry(data)
	if err != nil {
		return responsecache.Entry{}, false, fmt.Errorf("hazelcast store id %q: %w", id, err)
	}
	return entry, true, nil
}

// Set replaces the entry under id.
func (s *Store) Set(ctx context.Context, id string, entry responsecache.Entry) error {
	data, err := responsecache.EncodeEntry(entry.Stamp(time.Now()))
	if err != nil {
		return err
	}
	if err := s.m.Set(ctx, key(id), data); err != nil {
		if s.client != nil && !s.client.Running() {
			return fmt.Errorf("hazelcast store set failed for id %q: %w: %w", id, responsecache.ErrStorageUnavailable, err)
		}
		return fmt.Errorf("hazelcast store set failed for id %q: %w", id, err)
	}
	return nil
}

// Close shuts the client down when it was created by New.
func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Shutdown(ctx)
}

// New connects to the cluster and returns a Store backed by the configured map.
func New(ctx context.Context, config Config) (*Store, error) {
	if config.MapName == "" {
		config.MapName = "responsecache"
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 5 * time.Second
	}

	hzConfig := hazelcast.Config{}
	if config.ClusterName != "" {
		hzConfig.Cluster.Name = config.ClusterName
	}
	if len(config.Addresses) > 0 {
		hzConfig.Cluster.Network.SetAddresses(config.Addresses...)
	}
	hzConfig.Cluster.Unisocket = true
	hzConfig.Cluster.ConnectionStrategy.Timeout = types.Duration(config.ConnectTimeout)

	client, err := hazelcast.StartNewClientWithConfig(ctx, hzConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Hazelcast: %w", err)
	}

	m, err := client.GetMap(ctx, config.MapName)
	if err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if shutdownErr := client.Shutdown(shutdownCtx); shutdownErr != nil {
			responsecache.GetLogger().Warn("failed to shut down Hazelcast client", "error", shutdownErr)
		}
		return nil, fmt.Errorf("failed to get Hazelcast map %q: %w", config.MapName, err)
	}

	return &Store{m: m, client: client}, nil
}

// NewWithMap returns a new Store with the given Hazelcast map. The caller
// owns the client.
func NewWithMap(m *hazelcast.Map) *Store {
	return &Store{m: m}
}
