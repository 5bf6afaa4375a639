// Package stores builds the configured responsecache.Store stack.
package stores

import (
	"context"
	"errors"
	"fmt"
	"os"

	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/sandrolain/responsecache"
	"github.com/sandrolain/responsecache/blobstore"
	"github.com/sandrolain/responsecache/diskstore"
	"github.com/sandrolain/responsecache/filestore"
	"github.com/sandrolain/responsecache/freecache"
	"github.com/sandrolain/responsecache/hazelcast"
	"github.com/sandrolain/responsecache/internal/config"
	"github.com/sandrolain/responsecache/leveldbstore"
	"github.com/sandrolain/responsecache/memcache"
	"github.com/sandrolain/responsecache/metrics"
	"github.com/sandrolain/responsecache/mongodb"
	"github.com/sandrolain/responsecache/natskv"
	"github.com/sandrolain/responsecache/postgresql"
	"github.com/sandrolain/responsecache/redis"
	"github.com/sandrolain/responsecache/s3store"
	"github.com/sandrolain/responsecache/sqlite"
	"github.com/sandrolain/responsecache/wrapper/compressstore"
	"github.com/sandrolain/responsecache/wrapper/instrumented"
	"github.com/sandrolain/responsecache/wrapper/multistore"
	"github.com/sandrolain/responsecache/wrapper/securestore"
)

// Stack is a built store together with the resources backing it.
type Stack struct {
	Store   responsecache.Store
	closers []func(context.Context) error
}

// Close releases the backend connections in reverse creation order.
func (s *Stack) Close(ctx context.Context) error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Stack) onClose(fn func(context.Context) error) {
	s.closers = append(s.closers, fn)
}

func closeErr(fn func() error) func(context.Context) error {
	return func(context.Context) error { return fn() }
}

// Build opens the backend named by cfg and wraps it with compression,
// encryption, instrumentation and an optional in-memory tier, in that
// order from the backend outwards.
func Build(ctx context.Context, cfg config.Store, collector metrics.Collector) (*Stack, error) {
	if collector == nil {
		collector = &metrics.NoOpCollector{}
	}
	stack := &Stack{}

	backend, err := open(ctx, cfg, stack)
	if err != nil {
		_ = stack.Close(ctx)
		return nil, fmt.Errorf("open %s store: %w", cfg.Backend, err)
	}

	store := backend
	if cfg.Passphrase != "" {
		if store, err = securestore.New(securestore.Config{Store: store, Passphrase: cfg.Passphrase}); err != nil {
			_ = stack.Close(ctx)
			return nil, err
		}
	}
	if cfg.Compression != "" {
		if store, err = compress(store, cfg.Compression); err != nil {
			_ = stack.Close(ctx)
			return nil, err
		}
	}
	store = instrumented.New(store, cfg.Backend, collector)

	if cfg.MemoryTier > 0 && cfg.Backend != config.BackendMemory {
		front := instrumented.New(freecache.New(cfg.MemoryTier, cfg.Expiration), "memory-tier", collector)
		if store, err = multistore.New(front, store); err != nil {
			_ = stack.Close(ctx)
			return nil, err
		}
	}

	stack.Store = store
	return stack, nil
}

func compress(store responsecache.Store, name string) (responsecache.Store, error) {
	algorithm, err := compressstore.ParseAlgorithm(name)
	if err != nil {
		return nil, err
	}
	switch algorithm {
	case compressstore.Brotli:
		return compressstore.NewBrotli(compressstore.BrotliConfig{Store: store})
	case compressstore.Snappy:
		return compressstore.NewSnappy(compressstore.SnappyConfig{Store: store})
	default:
		return compressstore.NewGzip(compressstore.GzipConfig{Store: store})
	}
}

func open(ctx context.Context, cfg config.Store, stack *Stack) (responsecache.Store, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return responsecache.NewMemoryStore(responsecache.SystemClock), nil

	case config.BackendFile:
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, err
		}
		return filestore.New(cfg.Path), nil

	case config.BackendDisk:
		return diskstore.New(cfg.Path), nil

	case config.BackendLevelDB:
		s, err := leveldbstore.New(cfg.Path)
		if err != nil {
			return nil, err
		}
		stack.onClose(closeErr(s.Close))
		return s, nil

	case config.BackendSQLite:
		s, err := sqlite.New(ctx, cfg.Path)
		if err != nil {
			return nil, err
		}
		stack.onClose(closeErr(s.Close))
		return s, nil

	case config.BackendFreecache:
		return freecache.New(cfg.Size, cfg.Expiration), nil

	case config.BackendRedis:
		rc := redis.DefaultConfig()
		rc.Address = cfg.Addresses[0]
		rc.Password = cfg.Password
		rc.Expiration = cfg.Expiration
		if cfg.KeyPrefix != "" {
			rc.KeyPrefix = cfg.KeyPrefix
		}
		s, err := redis.New(ctx, rc)
		if err != nil {
			return nil, err
		}
		stack.onClose(closeErr(s.Close))
		return s, nil

	case config.BackendMemcache:
		s := memcache.New(cfg.Addresses...)
		return memcache.NewWithClient(s.Client, cfg.Expiration), nil

	case config.BackendPostgres:
		pc := postgresql.DefaultConfig()
		if cfg.KeyPrefix != "" {
			pc.KeyPrefix = cfg.KeyPrefix
		}
		s, err := postgresql.New(ctx, cfg.Addresses[0], pc)
		if err != nil {
			return nil, err
		}
		stack.onClose(func(context.Context) error { s.Close(); return nil })
		return s, nil

	case config.BackendMongoDB:
		mc := mongodb.DefaultConfig()
		mc.URI = cfg.Addresses[0]
		mc.Database = cfg.Database
		mc.TTL = cfg.Expiration
		if cfg.KeyPrefix != "" {
			mc.KeyPrefix = cfg.KeyPrefix
		}
		s, err := mongodb.New(ctx, mc)
		if err != nil {
			return nil, err
		}
		stack.onClose(closeErr(s.Close))
		return s, nil

	case config.BackendNATS:
		nc := natskv.Config{Bucket: cfg.Bucket, TTL: cfg.Expiration}
		if len(cfg.Addresses) > 0 {
			nc.NATSUrl = cfg.Addresses[0]
		}
		s, err := natskv.New(ctx, nc)
		if err != nil {
			return nil, err
		}
		stack.onClose(closeErr(s.Close))
		return s, nil

	case config.BackendHazelcast:
		hc := hazelcast.Config{Addresses: cfg.Addresses, ClusterName: cfg.Database, MapName: cfg.Bucket}
		s, err := hazelcast.New(ctx, hc)
		if err != nil {
			return nil, err
		}
		stack.onClose(s.Close)
		return s, nil

	case config.BackendBlob:
		bc := blobstore.DefaultConfig()
		bc.BucketURL = cfg.Path
		if cfg.KeyPrefix != "" {
			bc.KeyPrefix = cfg.KeyPrefix
		}
		s, err := blobstore.New(ctx, bc)
		if err != nil {
			return nil, err
		}
		stack.onClose(closeErr(s.Close))
		return s, nil

	case config.BackendS3:
		return s3store.New(ctx, s3store.Config{
			Bucket:       cfg.Bucket,
			KeyPrefix:    cfg.KeyPrefix,
			Region:       cfg.Region,
			Endpoint:     cfg.Endpoint,
			UsePathStyle: cfg.Endpoint != "",
		})

	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}
