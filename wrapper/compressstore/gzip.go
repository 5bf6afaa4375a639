package compressstore

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/sandrolain/responsecache"
)

const defaultGzipLevel = gzip.DefaultCompression

// GzipConfig holds the configuration for Gzip compression
type GzipConfig struct {
	// Store is the underlying store (required)
	Store responsecache.Store

	// Level is the compression level (-2 to 9)
	// Default: gzip.DefaultCompression (-1)
	Level int

	// MinSize is the smallest body compressed. Default: DefaultMinSize
	MinSize int
}

// NewGzip creates a new Store with Gzip compression
func NewGzip(config GzipConfig) (*Store, error) {
	if config.Level == 0 {
		config.Level = defaultGzipLevel
	}
	if config.Level < gzip.HuffmanOnly || config.Level > gzip.BestCompression {
		return nil, fmt.Errorf("invalid gzip compression level: %d", config.Level)
	}
	return newStore(config.Store, Gzip, gzipCodec{level: config.Level}, config.MinSize)
}

type gzipCodec struct {
	level int
}

func (c gzipCodec) compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer

	w, err := gzip.NewWriterLevel(&buf, c.level)
	if err != nil {
		return nil, fmt.Errorf("gzip writer creation failed: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("gzip write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("gzip close failed: %w", err)
	}
	return buf.Bytes(), nil
}

func (gzipCodec) decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip reader creation failed: %w", err)
	}
	defer r.Close()

	decompressed, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gzip read failed: %w", err)
	}
	return decompressed, nil
}
