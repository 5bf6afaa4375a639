package leveldbstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/sandrolain/responsecache"
	"github.com/sandrolain/responsecache/test"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatalf("New leveldb: %v", err)
	}
	return store
}

func TestLevelDBStore(t *testing.T) {
	store := newStore(t)
	defer store.Close()

	test.Store(t, store)

	n, err := store.Len()
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Fatalf("expected 4 entries, got %d", n)
	}
}

func TestLevelDBStoreMalformedEntry(t *testing.T) {
	store := newStore(t)
	defer store.Close()

	if err := store.db.Put([]byte(entryPrefix+"broken"), []byte("garbage"), nil); err != nil {
		t.Fatal(err)
	}
	_, _, err := store.Get(context.Background(), "broken")
	if !errors.Is(err, responsecache.ErrMalformedEntry) {
		t.Fatalf("expected ErrMalformedEntry, got %v", err)
	}
}

func TestLevelDBStoreClosed(t *testing.T) {
	store := newStore(t)
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	err := store.Set(context.Background(), "id", responsecache.Entry{Body: []byte("x")})
	if !errors.Is(err, responsecache.ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
}
