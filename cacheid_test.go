package responsecache

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCacheIDRoundTrip(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, CacheID(r))
	assert.Equal(t, "abc", CacheID(WithCacheID(r, "abc")))
}

func TestIDIsUnambiguous(t *testing.T) {
	assert.Equal(t, ID("a", "b"), ID("a", "b"))
	assert.NotEqual(t, ID("ab", "c"), ID("a", "bc"))
	assert.NotEqual(t, ID("a"), ID("a", ""))
	assert.Len(t, ID("x"), 64)
}

func TestRequestID(t *testing.T) {
	get := httptest.NewRequest(http.MethodGet, "/articles?page=2", nil)
	other := httptest.NewRequest(http.MethodGet, "/articles?page=3", nil)
	post := httptest.NewRequest(http.MethodPost, "/articles?page=2", nil)

	assert.NotEmpty(t, RequestID(get))
	assert.NotEqual(t, RequestID(get), RequestID(other))
	assert.Empty(t, RequestID(post))
}

func TestIdentify(t *testing.T) {
	var seen string
	h := Identify(RequestID)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = CacheID(r)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/a", nil))
	assert.Equal(t, ID(http.MethodGet, "/a", ""), seen)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodDelete, "/a", nil))
	assert.Empty(t, seen)
}
