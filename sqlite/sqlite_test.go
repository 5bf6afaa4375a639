package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandrolain/responsecache"
	"github.com/sandrolain/responsecache/test"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(context.Background(), filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore(t *testing.T) {
	store := newTestStore(t)
	test.Store(t, store)

	n, err := store.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestSQLiteStoreMalformedHeaders(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.db.ExecContext(ctx,
		`INSERT INTO responsecache (id, modified, status, headers, body) VALUES (?, 0, 200, ?, ?)`,
		"broken", []byte("not a header"), []byte{})
	require.NoError(t, err)

	_, _, err = store.Get(ctx, "broken")
	assert.ErrorIs(t, err, responsecache.ErrMalformedEntry)
}

func TestSQLiteStoreClosed(t *testing.T) {
	store, err := New(context.Background(), filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	err = store.Set(context.Background(), "id", responsecache.Entry{Body: []byte("x")})
	assert.ErrorIs(t, err, responsecache.ErrStorageUnavailable)
}

func TestSQLiteStoreReadOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	writable, err := New(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, writable.Close())

	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	require.NoError(t, err)
	defer db.Close()

	store := &Store{db: db}
	err = store.Set(context.Background(), "id", responsecache.Entry{Body: []byte("x")})
	assert.ErrorIs(t, err, responsecache.ErrStorageUnavailable)
}
