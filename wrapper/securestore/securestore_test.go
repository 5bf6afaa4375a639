package securestore

import (
	"bytes"
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandrolain/responsecache"
	"github.com/sandrolain/responsecache/diskstore"
	"github.com/sandrolain/responsecache/test"
)

const passphrase = "test-passphrase-123"

func TestNew(t *testing.T) {
	s, err := New(Config{Store: responsecache.NewMemoryStore(nil)})
	require.NoError(t, err)
	assert.False(t, s.IsEncrypted())

	s, err = New(Config{Store: responsecache.NewMemoryStore(nil), Passphrase: passphrase})
	require.NoError(t, err)
	assert.True(t, s.IsEncrypted())

	_, err = New(Config{})
	assert.Error(t, err)
}

func TestConformance(t *testing.T) {
	t.Run("hashing only", func(t *testing.T) {
		s, err := New(Config{Store: responsecache.NewMemoryStore(nil)})
		require.NoError(t, err)
		test.Store(t, s)
	})
	t.Run("encrypted", func(t *testing.T) {
		s, err := New(Config{Store: responsecache.NewMemoryStore(nil), Passphrase: passphrase})
		require.NoError(t, err)
		test.Store(t, s)
	})
}

func TestIDHashing(t *testing.T) {
	ctx := context.Background()
	backend := responsecache.NewMemoryStore(nil)
	s, err := New(Config{Store: backend})
	require.NoError(t, err)

	require.NoError(t, s.Set(ctx, "GET /account?user=42", responsecache.Entry{Body: []byte("v")}))

	_, found, err := backend.Get(ctx, "GET /account?user=42")
	require.NoError(t, err)
	assert.False(t, found, "plain id must not reach the backend")

	got, found, err := backend.Get(ctx, hashID("GET /account?user=42"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "v", string(got.Body))
	assert.Len(t, hashID("x"), 64)
	assert.Equal(t, hashID("x"), hashID("x"))
}

func TestEncryptedAtRest(t *testing.T) {
	ctx := context.Background()
	backend := responsecache.NewMemoryStore(nil)
	s, err := New(Config{Store: backend, Passphrase: passphrase})
	require.NoError(t, err)

	secret := []byte("account balance: 1000")
	entry := responsecache.Entry{
		Status: http.StatusOK,
		Header: http.Header{"X-Account": {"42"}},
		Body:   secret,
	}
	require.NoError(t, s.Set(ctx, "acct", entry))

	raw, found, err := backend.Get(ctx, hashID("acct"))
	require.NoError(t, err)
	require.True(t, found)
	assert.False(t, bytes.Contains(raw.Body, secret))
	assert.Empty(t, raw.Header.Get("X-Account"), "headers are sealed too")
	assert.Equal(t, "1", raw.Header.Get(headerSealed))

	got, found, err := s.Get(ctx, "acct")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, secret, got.Body)
	assert.Equal(t, "42", got.Header.Get("X-Account"))
	assert.Equal(t, raw.Modified, got.Modified)
}

func TestCorruptedCiphertext(t *testing.T) {
	ctx := context.Background()
	backend := responsecache.NewMemoryStore(nil)
	s, err := New(Config{Store: backend, Passphrase: passphrase})
	require.NoError(t, err)

	require.NoError(t, backend.Set(ctx, hashID("bad"), responsecache.Entry{
		Header: http.Header{headerSealed: {"1"}},
		Body:   []byte("short"),
	}))
	_, _, err = s.Get(ctx, "bad")
	assert.ErrorIs(t, err, responsecache.ErrMalformedEntry)

	require.NoError(t, backend.Set(ctx, hashID("plain"), responsecache.Entry{Body: []byte("not sealed")}))
	_, _, err = s.Get(ctx, "plain")
	assert.ErrorIs(t, err, responsecache.ErrMalformedEntry)
}

func TestDifferentPassphrases(t *testing.T) {
	ctx := context.Background()
	backend := responsecache.NewMemoryStore(nil)
	writer, err := New(Config{Store: backend, Passphrase: "first"})
	require.NoError(t, err)
	reader, err := New(Config{Store: backend, Passphrase: "second"})
	require.NoError(t, err)

	require.NoError(t, writer.Set(ctx, "id", responsecache.Entry{Body: []byte("secret")}))
	_, found, err := reader.Get(ctx, "id")
	assert.False(t, found)
	assert.ErrorIs(t, err, responsecache.ErrMalformedEntry)
}

func TestWithDiskStore(t *testing.T) {
	s, err := New(Config{Store: diskstore.New(t.TempDir()), Passphrase: passphrase})
	require.NoError(t, err)
	test.Store(t, s)
}
