// Package compressstore provides a Store wrapper that compresses response
// bodies at rest. Supports gzip, brotli and snappy. The served response is
// unaffected: bodies are decompressed on read and Content-Encoding is never
// touched.
package compressstore

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/sandrolain/responsecache"
)

// headerAlgorithm records the algorithm a stored body was compressed with.
// Entries without it are returned as stored.
const headerAlgorithm = "X-Responsecache-Compression"

// DefaultMinSize is the body size below which bodies are stored as-is.
const DefaultMinSize = 256

// Algorithm represents the compression algorithm to use
type Algorithm int

const (
	// Gzip uses gzip compression (good balance of compression and speed)
	Gzip Algorithm = iota
	// Brotli uses brotli compression (best compression ratio, slower)
	Brotli
	// Snappy uses snappy compression (fastest, lower compression ratio)
	Snappy
)

// String returns the string representation of the algorithm
func (a Algorithm) String() string {
	switch a {
	case Gzip:
		return "gzip"
	case Brotli:
		return "brotli"
	case Snappy:
		return "snappy"
	default:
		return "unknown"
	}
}

// ParseAlgorithm returns the Algorithm named s.
func ParseAlgorithm(s string) (Algorithm, error) {
	for _, a := range []Algorithm{Gzip, Brotli, Snappy} {
		if a.String() == s {
			return a, nil
		}
	}
	return 0, fmt.Errorf("unknown compression algorithm %q", s)
}

// Stats holds compression statistics
type Stats struct {
	CompressedBytes   int64   // Total body bytes after compression
	UncompressedBytes int64   // Total body bytes before compression
	CompressedCount   int64   // Number of compressed entries
	UncompressedCount int64   // Number of entries stored as-is (too small)
	CompressionRatio  float64 // Compression ratio (0.0-1.0, lower is better)
	SavingsPercent    float64 // Space savings percentage
}

// codec compresses and decompresses one algorithm.
type codec interface {
	compress([]byte) ([]byte, error)
	decompress([]byte) ([]byte, error)
}

// Store wraps another Store and compresses entry bodies before writing them.
type Store struct {
	store     responsecache.Store
	algorithm Algorithm
	codec     codec
	minSize   int

	compressedBytes   atomic.Int64
	uncompressedBytes atomic.Int64
	compressedCount   atomic.Int64
	uncompressedCount atomic.Int64
}

func newStore(store responsecache.Store, algorithm Algorithm, c codec, minSize int) (*Store, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if minSize < 0 {
		return nil, fmt.Errorf("invalid minimum size: %d", minSize)
	}
	if minSize == 0 {
		minSize = DefaultMinSize
	}
	return &Store{store: store, algorithm: algorithm, codec: c, minSize: minSize}, nil
}

// codecFor returns a decoder for entries written with any algorithm.
func codecFor(a Algorithm) (codec, error) {
	switch a {
	case Gzip:
		return gzipCodec{level: defaultGzipLevel}, nil
	case Brotli:
		return brotliCodec{level: defaultBrotliLevel}, nil
	case Snappy:
		return snappyCodec{}, nil
	default:
		return nil, fmt.Errorf("unsupported decompression algorithm: %v", a)
	}
}

// Get returns the entry with its body decompressed.
func (s *Store) Get(ctx context.Context, id string) (responsecache.Entry, bool, error) {
	entry, found, err := s.store.Get(ctx, id)
	if err != nil || !found {
		return entry, found, err
	}

	name := entry.Header.Get(headerAlgorithm)
	if name == "" {
		return entry, true, nil
	}
	algorithm, err := ParseAlgorithm(name)
	if err != nil {
		return responsecache.Entry{}, false, fmt.Errorf("compressstore id %q: %w: %v", id, responsecache.ErrMalformedEntry, err)
	}

	c := s.codec
	if algorithm != s.algorithm {
		if c, err = codecFor(algorithm); err != nil {
			return responsecache.Entry{}, false, err
		}
	}
	body, err := c.decompress(entry.Body)
	if err != nil {
		return responsecache.Entry{}, false, fmt.Errorf("compressstore id %q: %w: %v", id, responsecache.ErrMalformedEntry, err)
	}

	entry.Header = entry.Header.Clone()
	entry.Header.Del(headerAlgorithm)
	if entry.Header.Get("Content-Length") != "" {
		entry.Header.Set("Content-Length", strconv.Itoa(len(body)))
	}
	entry.Body = body
	return entry, true, nil
}

// Set compresses the body and stores the entry. Bodies smaller than the
// minimum size, or whose compression fails, are stored as-is.
func (s *Store) Set(ctx context.Context, id string, entry responsecache.Entry) error {
	size := int64(len(entry.Body))
	if len(entry.Body) < s.minSize {
		s.uncompressedCount.Add(1)
		s.uncompressedBytes.Add(size)
		return s.store.Set(ctx, id, entry)
	}

	compressed, err := s.codec.compress(entry.Body)
	if err != nil {
		responsecache.GetLogger().Warn("compression failed, storing uncompressed",
			"id", id,
			"algorithm", s.algorithm.String(),
			"error", err)
		s.uncompressedCount.Add(1)
		s.uncompressedBytes.Add(size)
		return s.store.Set(ctx, id, entry)
	}

	stored := entry
	stored.Header = entry.Header.Clone()
	if stored.Header == nil {
		stored.Header = make(map[string][]string)
	}
	stored.Header.Set(headerAlgorithm, s.algorithm.String())
	stored.Body = compressed
	if err := s.store.Set(ctx, id, stored); err != nil {
		return err
	}

	s.compressedCount.Add(1)
	s.compressedBytes.Add(int64(len(compressed)))
	s.uncompressedBytes.Add(size)
	return nil
}

// Algorithm returns the algorithm used for writes.
func (s *Store) Algorithm() Algorithm {
	return s.algorithm
}

// Stats returns compression statistics
func (s *Store) Stats() Stats {
	compressed := s.compressedBytes.Load()
	uncompressed := s.uncompressedBytes.Load()

	var ratio, savings float64
	if uncompressed > 0 {
		ratio = float64(compressed) / float64(uncompressed)
		savings = (1.0 - ratio) * 100
	}

	return Stats{
		CompressedBytes:   compressed,
		UncompressedBytes: uncompressed,
		CompressedCount:   s.compressedCount.Load(),
		UncompressedCount: s.uncompressedCount.Load(),
		CompressionRatio:  ratio,
		SavingsPercent:    savings,
	}
}
