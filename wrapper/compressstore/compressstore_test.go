package compressstore

import (
	"compress/gzip"
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandrolain/responsecache"
	"github.com/sandrolain/responsecache/test"
)

var page = []byte(strings.Repeat("<p>This is a compressible paragraph of markup.</p>\n", 100))

func newAll(t *testing.T, backend responsecache.Store) map[Algorithm]*Store {
	t.Helper()
	g, err := NewGzip(GzipConfig{Store: backend})
	require.NoError(t, err)
	b, err := NewBrotli(BrotliConfig{Store: backend})
	require.NoError(t, err)
	s, err := NewSnappy(SnappyConfig{Store: backend})
	require.NoError(t, err)
	return map[Algorithm]*Store{Gzip: g, Brotli: b, Snappy: s}
}

func TestConformance(t *testing.T) {
	for _, algorithm := range []Algorithm{Gzip, Brotli, Snappy} {
		t.Run(algorithm.String(), func(t *testing.T) {
			store := newAll(t, responsecache.NewMemoryStore(nil))[algorithm]
			test.Store(t, store)
		})
	}
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name string
		new  func() (*Store, error)
	}{
		{"gzip nil store", func() (*Store, error) { return NewGzip(GzipConfig{}) }},
		{"gzip level too high", func() (*Store, error) {
			return NewGzip(GzipConfig{Store: responsecache.NewMemoryStore(nil), Level: 100})
		}},
		{"gzip level too low", func() (*Store, error) {
			return NewGzip(GzipConfig{Store: responsecache.NewMemoryStore(nil), Level: -10})
		}},
		{"brotli level too high", func() (*Store, error) {
			return NewBrotli(BrotliConfig{Store: responsecache.NewMemoryStore(nil), Level: 12})
		}},
		{"snappy nil store", func() (*Store, error) { return NewSnappy(SnappyConfig{}) }},
		{"negative min size", func() (*Store, error) {
			return NewSnappy(SnappyConfig{Store: responsecache.NewMemoryStore(nil), MinSize: -1})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.new()
			assert.Error(t, err)
		})
	}

	s, err := NewGzip(GzipConfig{Store: responsecache.NewMemoryStore(nil), Level: gzip.BestCompression})
	require.NoError(t, err)
	assert.Equal(t, Gzip, s.Algorithm())
}

func TestBodyCompressedAtRest(t *testing.T) {
	ctx := context.Background()
	for algorithm, store := range newAll(t, responsecache.NewMemoryStore(nil)) {
		t.Run(algorithm.String(), func(t *testing.T) {
			backend := store.store
			entry := responsecache.Entry{
				Header: http.Header{
					"Content-Type":   {"text/html"},
					"Content-Length": {"5100"},
				},
				Body: page,
			}
			require.NoError(t, store.Set(ctx, "page", entry))

			raw, found, err := backend.Get(ctx, "page")
			require.NoError(t, err)
			require.True(t, found)
			assert.Less(t, len(raw.Body), len(page))
			assert.Equal(t, algorithm.String(), raw.Header.Get(headerAlgorithm))

			got, found, err := store.Get(ctx, "page")
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, page, got.Body)
			assert.Empty(t, got.Header.Get(headerAlgorithm))
			assert.Empty(t, got.Header.Get("Content-Encoding"), "served encoding is untouched")
			assert.Equal(t, "5100", got.Header.Get("Content-Length"))
			assert.Equal(t, "text/html", got.Header.Get("Content-Type"))
			assert.Nil(t, entry.Header[headerAlgorithm], "caller header not mutated")
		})
	}
}

func TestSmallBodyStoredAsIs(t *testing.T) {
	ctx := context.Background()
	backend := responsecache.NewMemoryStore(nil)
	store, err := NewSnappy(SnappyConfig{Store: backend})
	require.NoError(t, err)

	require.NoError(t, store.Set(ctx, "small", responsecache.Entry{Body: []byte("tiny")}))
	raw, _, err := backend.Get(ctx, "small")
	require.NoError(t, err)
	assert.Equal(t, "tiny", string(raw.Body))
	assert.Empty(t, raw.Header.Get(headerAlgorithm))

	stats := store.Stats()
	assert.Equal(t, int64(0), stats.CompressedCount)
	assert.Equal(t, int64(1), stats.UncompressedCount)
}

func TestMixedAlgorithms(t *testing.T) {
	ctx := context.Background()
	backend := responsecache.NewMemoryStore(nil)
	stores := newAll(t, backend)

	require.NoError(t, stores[Brotli].Set(ctx, "page", responsecache.Entry{Body: page}))

	for algorithm, store := range stores {
		got, found, err := store.Get(ctx, "page")
		require.NoError(t, err, algorithm.String())
		require.True(t, found)
		assert.Equal(t, page, got.Body, "reading brotli entry through %s store", algorithm)
	}
}

func TestCorruptedBody(t *testing.T) {
	ctx := context.Background()
	for algorithm, store := range newAll(t, responsecache.NewMemoryStore(nil)) {
		t.Run(algorithm.String(), func(t *testing.T) {
			require.NoError(t, store.store.Set(ctx, "bad", responsecache.Entry{
				Header: http.Header{headerAlgorithm: {algorithm.String()}},
				Body:   []byte("definitely not compressed"),
			}))
			_, found, err := store.Get(ctx, "bad")
			assert.False(t, found)
			assert.ErrorIs(t, err, responsecache.ErrMalformedEntry)
		})
	}
}

func TestUnknownAlgorithm(t *testing.T) {
	ctx := context.Background()
	store := newAll(t, responsecache.NewMemoryStore(nil))[Gzip]
	require.NoError(t, store.store.Set(ctx, "bad", responsecache.Entry{
		Header: http.Header{headerAlgorithm: {"lzma"}},
		Body:   []byte("x"),
	}))
	_, _, err := store.Get(ctx, "bad")
	assert.ErrorIs(t, err, responsecache.ErrMalformedEntry)
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	store, err := NewGzip(GzipConfig{Store: responsecache.NewMemoryStore(nil)})
	require.NoError(t, err)

	assert.Equal(t, Stats{}, store.Stats())

	require.NoError(t, store.Set(ctx, "a", responsecache.Entry{Body: page}))
	require.NoError(t, store.Set(ctx, "b", responsecache.Entry{Body: []byte("small")}))

	stats := store.Stats()
	assert.Equal(t, int64(1), stats.CompressedCount)
	assert.Equal(t, int64(1), stats.UncompressedCount)
	assert.Equal(t, int64(len(page)+len("small")), stats.UncompressedBytes)
	assert.Greater(t, stats.SavingsPercent, 50.0)
	assert.Less(t, stats.CompressionRatio, 0.5)
}

func TestAlgorithmString(t *testing.T) {
	assert.Equal(t, "gzip", Gzip.String())
	assert.Equal(t, "brotli", Brotli.String())
	assert.Equal(t, "snappy", Snappy.String())
	assert.Equal(t, "unknown", Algorithm(99).String())

	a, err := ParseAlgorithm("brotli")
	require.NoError(t, err)
	assert.Equal(t, Brotli, a)
	_, err = ParseAlgorithm("zstd")
	assert.Error(t, err)
}
