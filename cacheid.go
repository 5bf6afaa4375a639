package responsecache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"net/http"
)

type cacheIDKey struct{}

// WithCacheID returns a shallow copy of r carrying the given cache id.
func WithCacheID(r *http.Request, id string) *http.Request {
	return r.WithContext(ContextWithCacheID(r.Context(), id))
}

// ContextWithCacheID returns a context carrying the given cache id.
func ContextWithCacheID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, cacheIDKey{}, id)
}

// CacheID returns the cache id attached to r, or "" when there is none.
func CacheID(r *http.Request) string {
	id, _ := r.Context().Value(cacheIDKey{}).(string)
	return id
}

// Identify returns middleware that attaches fn(r) as the cache id of every
// request. An empty result leaves the request uncacheable.
func Identify(fn func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id := fn(r); id != "" {
				r = WithCacheID(r, id)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ID fingerprints the request parameters that make a response unique. The
// parts are length-prefixed so ("ab", "c") and ("a", "bc") differ.
func ID(parts ...string) string {
	h := sha256.New()
	var n [8]byte
	for _, p := range parts {
		binary.LittleEndian.PutUint64(n[:], uint64(len(p)))
		h.Write(n[:])
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// RequestID is a default id function: method, path and raw query.
func RequestID(r *http.Request) string {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return ""
	}
	return ID(r.Method, r.URL.Path, r.URL.RawQuery)
}
