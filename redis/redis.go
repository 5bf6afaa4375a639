// Package redis provides a Redis backed responsecache.Store using go-redis.
// Each entry is a hash with modified, status, header and body fields,
// replaced in a single MULTI/EXEC transaction.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sandrolain/responsecache"
)

const (
	fieldModified = "modified"
	fieldStatus   = "status"
	fieldHeader   = "header"
	fieldBody     = "body"
)

// Config holds the configuration for creating a Redis store.
type Config struct {
	// Address is the Redis server address (e.g., "localhost:6379").
	// Required field.
	Address string

	// Password is the Redis password for authentication.
	// Optional - leave empty if no authentication is required.
	Password string

	// DB is the Redis database number to use.
	// Optional - defaults to 0.
	DB int

	// KeyPrefix is prepended to every cache id.
	// Optional - defaults to "responsecache:".
	KeyPrefix string

	// Expiration lets Redis drop entries that long after they were written.
	// Optional - defaults to 0 (entries are kept until overwritten).
	Expiration time.Duration

	// PoolSize is the maximum number of socket connections.
	// Optional - defaults to 10 per CPU (go-redis default).
	PoolSize int

	// DialTimeout is the timeout for connecting to Redis.
	// Optional - defaults to 5 seconds.
	DialTimeout time.Duration

	// ReadTimeout is the timeout for reading from Redis.
	// Optional - defaults to 3 seconds.
	ReadTimeout time.Duration

	// WriteTimeout is the timeout for writing to Redis.
	// Optional - defaults to 3 seconds.
	WriteTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		KeyPrefix:    "responsecache:",
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// Store is an implementation of responsecache.Store that keeps responses in
// a Redis server.
type Store struct {
	client     redis.UniversalClient
	prefix     string
	expiration time.Duration
	owned      bool
}

func (s *Store) key(id string) string {
	return s.prefix + id
}

// Get returns the entry stored under id.
func (s *Store) Get(ctx context.Context, id string) (responsecache.Entry, bool, error) {
	fields, err := s.client.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		return responsecache.Entry{}, false, fmt.Errorf("redis store get failed for id %q: %w", id, err)
	}
	if len(fields) == 0 {
		return responsecache.Entry{}, false, nil
	}
	entry, err := decode(fields)
	if err != nil {
		return responsecache.Entry{}, false, fmt.Errorf("redis store id %q: %w", id, err)
	}
	return entry, true, nil
}

// Set replaces the entry under id.
func (s *Store) Set(ctx context.Context, id string, entry responsecache.Entry) error {
	entry = entry.Stamp(time.Now())
	key := s.key(id)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			fieldModified, entry.Modified.Unix(),
			fieldStatus, entry.StatusCode(),
			fieldHeader, responsecache.EncodeHeader(entry.Header),
			fieldBody, entry.Body,
		)
		if s.expiration > 0 {
			pipe.Expire(ctx, key, s.expiration)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, redis.ErrClosed) {
			return fmt.Errorf("redis store set failed for id %q: %w: %w", id, responsecache.ErrStorageUnavailable, err)
		}
		return fmt.Errorf("redis store set failed for id %q: %w", id, err)
	}
	return nil
}

func decode(fields map[string]string) (responsecache.Entry, error) {
	modified, err := strconv.ParseInt(fields[fieldModified], 10, 64)
	if err != nil {
		return responsecache.Entry{}, fmt.Errorf("%w: modified %q", responsecache.ErrMalformedEntry, fields[fieldModified])
	}
	status, err := strconv.Atoi(fields[fieldStatus])
	if err != nil {
		return responsecache.Entry{}, fmt.Errorf("%w: status %q", responsecache.ErrMalformedEntry, fields[fieldStatus])
	}
	header, err := responsecache.DecodeHeader([]byte(fields[fieldHeader]))
	if err != nil {
		return responsecache.Entry{}, err
	}
	return responsecache.Entry{
		Modified: time.Unix(modified, 0),
		Status:   status,
		Header:   header,
		Body:     []byte(fields[fieldBody]),
	}, nil
}

// Close closes the client when it was created by New.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}

// New creates a new Store with the given configuration and checks the
// connection. The caller should call Close() when done.
func New(ctx context.Context, config Config) (*Store, error) {
	if config.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	defaults := DefaultConfig()
	if config.KeyPrefix == "" {
		config.KeyPrefix = defaults.KeyPrefix
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = defaults.DialTimeout
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = defaults.ReadTimeout
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}

	client := redis.NewClient(&redis.Options{
		Addr:         config.Address,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Store{client: client, prefix: config.KeyPrefix, expiration: config.Expiration, owned: true}, nil
}

// NewWithClient returns a new Store using a client managed by the caller.
func NewWithClient(client redis.UniversalClient, keyPrefix string, expiration time.Duration) *Store {
	if keyPrefix == "" {
		keyPrefix = DefaultConfig().KeyPrefix
	}
	return &Store{client: client, prefix: keyPrefix, expiration: expiration}
}
