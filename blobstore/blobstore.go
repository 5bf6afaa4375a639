// Package blobstore provides a responsecache.Store implementation that uses
// Go Cloud Development Kit (CDK) blob storage.
//
// Supports any provider with a registered URL opener:
//   - Amazon S3
//   - Google Cloud Storage
//   - Azure Blob Storage
//   - In-memory (for testing)
//   - Local filesystem
//
// Example usage with S3:
//
//	import (
//	    "context"
//	    _ "gocloud.dev/blob/s3blob"
//	    "github.com/sandrolain/responsecache/blobstore"
//	)
//
//	ctx := context.Background()
//	store, err := blobstore.New(ctx, blobstore.Config{
//	    BucketURL: "s3://my-bucket?region=us-west-2",
//	    KeyPrefix: "responsecache/",
//	})
package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	"github.com/sandrolain/responsecache"
)

// Config holds the configuration for the blob store.
type Config struct {
	// BucketURL is the Go Cloud blob URL (e.g., "s3://bucket?region=us-west-2")
	BucketURL string

	// KeyPrefix is prepended to all blob keys (default: "cache/")
	KeyPrefix string

	// Timeout for blob operations (default: 30s)
	Timeout time.Duration

	// Bucket is an optional pre-opened bucket (if nil, BucketURL is used)
	Bucket *blob.Bucket
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		KeyPrefix: "cache/",
		Timeout:   30 * time.Second,
	}
}

// Store implements responsecache.Store using Go Cloud blob storage. Each
// entry is one blob holding the encoded response.
type Store struct {
	bucket     *blob.Bucket
	keyPrefix  string
	timeout    time.Duration
	ownsBucket bool
}

// New creates a new blob store with the given configuration.
// Call Close() to clean up resources when done.
func New(ctx context.Context, config Config) (*Store, error) {
	if config.BucketURL == "" && config.Bucket == nil {
		return nil, fmt.Errorf("either BucketURL or Bucket must be provided")
	}

	if config.KeyPrefix == "" {
		config.KeyPrefix = DefaultConfig().KeyPrefix
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultConfig().Timeout
	}

	if config.Bucket != nil {
		return &Store{bucket: config.Bucket, keyPrefix: config.KeyPrefix, timeout: config.Timeout}, nil
	}

	bucket, err := blob.OpenBucket(ctx, config.BucketURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open bucket: %w", err)
	}
	return &Store{bucket: bucket, keyPrefix: config.KeyPrefix, timeout: config.Timeout, ownsBucket: true}, nil
}

// NewWithBucket creates a store using an already-opened bucket.
// The caller is responsible for closing the bucket.
func NewWithBucket(bucket *blob.Bucket, keyPrefix string, timeout time.Duration) *Store {
	if keyPrefix == "" {
		keyPrefix = DefaultConfig().KeyPrefix
	}
	if timeout == 0 {
		timeout = DefaultConfig().Timeout
	}
	return &Store{bucket: bucket, keyPrefix: keyPrefix, timeout: timeout}
}

// blobKey hashes the id so any id is a valid object name.
func (s *Store) blobKey(id string) string {
	hash := sha256.Sum256([]byte(id))
	return s.keyPrefix + hex.EncodeToString(hash[:])
}

// withTimeout applies the configured timeout when ctx has no deadline.
func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Get returns the entry stored under id.
func (s *Store) Get(ctx context.Context, id string) (responsecache.Entry, bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	data, err := s.bucket.ReadAll(ctx, s.blobKey(id))
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return responsecache.Entry{}, false, nil
		}
		return responsecache.Entry{}, false, fmt.Errorf("blob store get failed for id %q: %w", id, err)
	}

	entry, err := responsecache.DecodeEntry(data)
	if err != nil {
		return responsecache.Entry{}, false, fmt.Errorf("blob store id %q: %w", id, err)
	}
	return entry, true, nil
}

// Set writes the entry under id, replacing any previous blob.
func (s *Store) Set(ctx context.Context, id string, entry responsecache.Entry) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	data, err := responsecache.EncodeEntry(entry.Stamp(time.Now()))
	if err != nil {
		return err
	}

	opts := &blob.WriterOptions{ContentType: "application/http"}
	if err := s.bucket.WriteAll(ctx, s.blobKey(id), data, opts); err != nil {
		switch gcerrors.Code(err) {
		case gcerrors.FailedPrecondition, gcerrors.PermissionDenied:
			return fmt.Errorf("blob store set failed for id %q: %w: %w", id, responsecache.ErrStorageUnavailable, err)
		}
		return fmt.Errorf("blob store set failed for id %q: %w", id, err)
	}
	return nil
}

// Close closes the bucket if it was opened by New().
// If the bucket was provided via NewWithBucket(), it's not closed.
func (s *Store) Close() error {
	if s.ownsBucket {
		if err := s.bucket.Close(); err != nil {
			return fmt.Errorf("failed to close blob bucket: %w", err)
		}
	}
	return nil
}
