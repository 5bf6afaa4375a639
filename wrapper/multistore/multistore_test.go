package multistore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandrolain/responsecache"
	"github.com/sandrolain/responsecache/test"
)

type fixedClock time.Time

func (c fixedClock) Now() time.Time { return time.Time(c) }

// failingStore fails every call.
type failingStore struct{}

func (failingStore) Get(context.Context, string) (responsecache.Entry, bool, error) {
	return responsecache.Entry{}, false, errors.New("tier down")
}

func (failingStore) Set(context.Context, string, responsecache.Entry) error {
	return errors.New("tier down")
}

func mem() *responsecache.MemoryStore { return responsecache.NewMemoryStore(nil) }

func TestNew(t *testing.T) {
	a, b := mem(), mem()

	_, err := New()
	assert.Error(t, err)
	_, err = New(a, nil)
	assert.Error(t, err)
	_, err = New(a, a)
	assert.Error(t, err)

	s, err := New(a, b)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Tiers())
}

func TestConformance(t *testing.T) {
	s, err := New(mem(), mem(), mem())
	require.NoError(t, err)
	test.Store(t, s)
}

func TestSetWritesAllTiersWithOneModifiedTime(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tiers := []*responsecache.MemoryStore{
		responsecache.NewMemoryStore(fixedClock(now.Add(time.Hour))),
		responsecache.NewMemoryStore(fixedClock(now.Add(2 * time.Hour))),
	}
	s, err := New(tiers[0], tiers[1])
	require.NoError(t, err)
	s.clock = fixedClock(now)

	require.NoError(t, s.Set(ctx, "id", responsecache.Entry{Body: []byte("v")}))
	for i, tier := range tiers {
		got, found, err := tier.Get(ctx, "id")
		require.NoError(t, err)
		require.True(t, found, "tier %d", i)
		assert.True(t, got.Modified.Equal(now), "tier %d modified = %v", i, got.Modified)
	}
}

func TestPromotion(t *testing.T) {
	ctx := context.Background()
	fast, middle, slow := mem(), mem(), mem()
	s, err := New(fast, middle, slow)
	require.NoError(t, err)

	modified := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, slow.Set(ctx, "id", responsecache.Entry{Modified: modified, Body: []byte("cold")}))

	got, found, err := s.Get(ctx, "id")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "cold", string(got.Body))

	for name, tier := range map[string]*responsecache.MemoryStore{"fast": fast, "middle": middle} {
		promoted, found, err := tier.Get(ctx, "id")
		require.NoError(t, err)
		require.True(t, found, "%s tier not promoted", name)
		assert.True(t, promoted.Modified.Equal(modified), "%s tier lost the modification time", name)
	}
}

func TestFoundInFirstTierDoesNotTouchOthers(t *testing.T) {
	ctx := context.Background()
	fast, slow := mem(), mem()
	s, err := New(fast, slow)
	require.NoError(t, err)

	require.NoError(t, fast.Set(ctx, "id", responsecache.Entry{Body: []byte("hot")}))
	_, found, err := s.Get(ctx, "id")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 0, slow.Len())
}

func TestFailingTierIsSkipped(t *testing.T) {
	ctx := context.Background()
	slow := mem()
	s, err := New(failingStore{}, slow)
	require.NoError(t, err)

	require.NoError(t, slow.Set(ctx, "id", responsecache.Entry{Body: []byte("v")}))
	got, found, err := s.Get(ctx, "id")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "v", string(got.Body))

	_, found, err = s.Get(ctx, "missing")
	assert.False(t, found)
	assert.Error(t, err, "tier error surfaces when nothing was found")

	assert.Error(t, s.Set(ctx, "id", responsecache.Entry{}))
}

func TestSetWritesSlowerTiersPastAFailure(t *testing.T) {
	ctx := context.Background()
	slow := mem()
	s, err := New(failingStore{}, slow)
	require.NoError(t, err)

	err = s.Set(ctx, "id", responsecache.Entry{Body: []byte("kept")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tier 0")

	got, found, err := slow.Get(ctx, "id")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "kept", string(got.Body))
}

func TestNotFound(t *testing.T) {
	s, err := New(mem(), mem())
	require.NoError(t, err)
	_, found, err := s.Get(context.Background(), "missing")
	assert.NoError(t, err)
	assert.False(t, found)
}

func TestConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	s, err := New(mem(), mem())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("id-%d", i%5)
			_ = s.Set(ctx, id, responsecache.Entry{Body: []byte(id)})
			got, found, err := s.Get(ctx, id)
			assert.NoError(t, err)
			if assert.True(t, found) {
				assert.Equal(t, id, string(got.Body))
			}
		}(i)
	}
	wg.Wait()
}
