package compressstore

import (
	"fmt"

	"github.com/golang/snappy"
	"github.com/sandrolain/responsecache"
)

// SnappyConfig holds the configuration for Snappy compression
type SnappyConfig struct {
	// Store is the underlying store (required)
	Store responsecache.Store

	// MinSize is the smallest body compressed. Default: DefaultMinSize
	MinSize int
}

// NewSnappy creates a new Store with Snappy compression
func NewSnappy(config SnappyConfig) (*Store, error) {
	return newStore(config.Store, Snappy, snappyCodec{}, config.MinSize)
}

type snappyCodec struct{}

func (snappyCodec) compress(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

func (snappyCodec) decompress(data []byte) ([]byte, error) {
	decompressed, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("snappy decode failed: %w", err)
	}
	return decompressed, nil
}
