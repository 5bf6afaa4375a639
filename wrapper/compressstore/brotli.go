package compressstore

import (
	"bytes"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/sandrolain/responsecache"
)

const defaultBrotliLevel = 6

// BrotliConfig holds the configuration for Brotli compression
type BrotliConfig struct {
	// Store is the underlying store (required)
	Store responsecache.Store

	// Level is the compression level (0 to 11)
	// Default: 6
	Level int

	// MinSize is the smallest body compressed. Default: DefaultMinSize
	MinSize int
}

// NewBrotli creates a new Store with Brotli compression
func NewBrotli(config BrotliConfig) (*Store, error) {
	if config.Level == 0 {
		config.Level = defaultBrotliLevel
	}
	if config.Level < brotli.BestSpeed || config.Level > brotli.BestCompression {
		return nil, fmt.Errorf("invalid brotli compression level: %d", config.Level)
	}
	return newStore(config.Store, Brotli, brotliCodec{level: config.Level}, config.MinSize)
}

type brotliCodec struct {
	level int
}

func (c brotliCodec) compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer

	w := brotli.NewWriterLevel(&buf, c.level)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("brotli write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("brotli close failed: %w", err)
	}
	return buf.Bytes(), nil
}

func (brotliCodec) decompress(data []byte) ([]byte, error) {
	decompressed, err := io.ReadAll(brotli.NewReader(bytes.NewReader(data)))
	if err != nil {
		return nil, fmt.Errorf("brotli read failed: %w", err)
	}
	return decompressed, nil
}
