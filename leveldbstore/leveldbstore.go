// Package leveldbstore provides an implementation of responsecache.Store that
// uses github.com/syndtr/goleveldb/leveldb
package leveldbstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sandrolain/responsecache"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Store is an implementation of responsecache.Store with leveldb storage
type Store struct {
	db *leveldb.DB
}

const entryPrefix = "entry:"

// Get returns the entry stored under id.
// The context parameter is accepted for interface compliance but not used for LevelDB operations.
func (s *Store) Get(_ context.Context, id string) (responsecache.Entry, bool, error) {
	data, err := s.db.Get([]byte(entryPrefix+id), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return responsecache.Entry{}, false, nil
	}
	if err != nil {
		return responsecache.Entry{}, false, fmt.Errorf("leveldb store get failed for id %q: %w", id, err)
	}
	entry, err := responsecache.DecodeEntry(data)
	if err != nil {
		return responsecache.Entry{}, false, err
	}
	return entry, true, nil
}

// Set writes the entry under id.
// The context parameter is accepted for interface compliance but not used for LevelDB operations.
func (s *Store) Set(_ context.Context, id string, entry responsecache.Entry) error {
	data, err := responsecache.EncodeEntry(entry.Stamp(time.Now()))
	if err != nil {
		return err
	}
	if err := s.db.Put([]byte(entryPrefix+id), data, nil); err != nil {
		if errors.Is(err, leveldb.ErrClosed) {
			return fmt.Errorf("leveldb store set failed for id %q: %w: %w", id, responsecache.ErrStorageUnavailable, err)
		}
		return fmt.Errorf("leveldb store set failed for id %q: %w", id, err)
	}
	return nil
}

// Len counts the stored entries.
func (s *Store) Len() (int64, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(entryPrefix)), nil)
	defer iter.Release()
	var n int64
	for iter.Next() {
		n++
	}
	return n, iter.Error()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// New returns a new Store that will keep its leveldb database in path.
func New(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %q: %w: %w", path, responsecache.ErrStorageUnavailable, err)
	}
	return &Store{db: db}, nil
}

// NewWithDB returns a new Store using the provided leveldb as underlying
// storage.
func NewWithDB(db *leveldb.DB) *Store {
	return &Store{db}
}
