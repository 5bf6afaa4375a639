// Package diskstore provides an implementation of responsecache.Store that
// uses the diskv package to supplement an in-memory map with persistent storage.
package diskstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/peterbourgon/diskv"
	"github.com/sandrolain/responsecache"
)

// Store is a responsecache.Store that keeps encoded entries in files.
type Store struct {
	d *diskv.Diskv
}

// Get returns the entry stored under id.
// The context parameter is accepted for interface compliance but not used for disk operations.
func (s *Store) Get(_ context.Context, id string) (responsecache.Entry, bool, error) {
	data, err := s.d.Read(idToFilename(id))
	if errors.Is(err, fs.ErrNotExist) {
		return responsecache.Entry{}, false, nil
	}
	if err != nil {
		return responsecache.Entry{}, false, fmt.Errorf("diskstore read %q: %w", id, err)
	}
	entry, err := responsecache.DecodeEntry(data)
	if err != nil {
		return responsecache.Entry{}, false, err
	}
	return entry, true, nil
}

// Set writes the entry under id. Writes go through a temporary file and a
// rename, so readers see either the old or the new entry.
// The context parameter is accepted for interface compliance but not used for disk operations.
func (s *Store) Set(_ context.Context, id string, entry responsecache.Entry) error {
	data, err := responsecache.EncodeEntry(entry.Stamp(time.Now()))
	if err != nil {
		return err
	}
	key := idToFilename(id)
	if err := s.d.Write(key, data); err != nil {
		responsecache.GetLogger().Warn("failed to write to disk store", "key", key, "error", err)
		return fmt.Errorf("diskstore write %q: %w: %w", id, responsecache.ErrStorageUnavailable, err)
	}
	return nil
}

func idToFilename(id string) string {
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])
}

// New returns a new Store that will keep files in basePath.
func New(basePath string) *Store {
	return &Store{
		d: diskv.New(diskv.Options{
			BasePath:     basePath,
			TempDir:      filepath.Join(basePath, ".tmp"),
			CacheSizeMax: 100 * 1024 * 1024, // 100MB
		}),
	}
}

// NewWithDiskv returns a new Store using the provided Diskv as underlying
// storage.
func NewWithDiskv(d *diskv.Diskv) *Store {
	return &Store{d}
}
