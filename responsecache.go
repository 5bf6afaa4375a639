// Package responsecache provides HTTP server middleware that caches whole
// responses under an id computed upstream.
//
// For an eligible request the middleware serves a fresh stored response
// without running the wrapped handler. Otherwise it runs the handler,
// optionally transforms the body, stores the result and attaches Expires,
// Last-Modified and ETag headers. Requests without a cache id, or whose
// Cache-Control asks for no-store/no-cache, bypass the cache and their
// responses are marked non-cacheable.
package responsecache

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/sandrolain/responsecache/locking"
	"github.com/sandrolain/responsecache/metrics"
)

// XResponseCache is the header added to responses when
// WithMarkCachedResponses is enabled. Its value is a Decision string.
const XResponseCache = "X-Response-Cache"

// Middleware caches responses of the handlers it wraps.
// It is immutable after New and safe for concurrent use.
type Middleware struct {
	store          Store
	lifetime       time.Duration
	policy         Policy
	denyDirectives []string
	beforeCache    BeforeCacheFunc
	shouldCache    ShouldCacheFunc
	etag           ETagFunc
	clock          Clock
	logger         *slog.Logger
	metrics        metrics.Collector
	locker         locking.Group
	resilience     *ResilienceConfig
	markResponses  bool
	conditional    bool
}

// New returns a Middleware caching responses in store for lifetime.
// A lifetime <= 0 disables caching: every request takes the deny path.
func New(store Store, lifetime time.Duration, opts ...Option) (*Middleware, error) {
	if store == nil {
		return nil, errors.New("responsecache: nil Store")
	}
	m := &Middleware{
		store:       store,
		lifetime:    lifetime,
		policy:      DefaultPolicy(),
		beforeCache: identity,
		shouldCache: Always,
		etag:        ETag,
		clock:       SystemClock,
		metrics:     metrics.DefaultCollector,
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, fmt.Errorf("responsecache: applying option: %w", err)
		}
	}
	m.denyDirectives = m.policy.DenyDirectives()
	if exec := m.resilience.executor(); exec != nil {
		m.store = &resilientStore{store: m.store, executor: exec}
	}
	return m, nil
}

// Lifetime returns the configured cache lifetime.
func (m *Middleware) Lifetime() time.Duration { return m.lifetime }

// Handler wraps next with the cache.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.serve(w, r, next)
	})
}

// result is a response ready to be written to the client.
type result struct {
	decision  Decision
	status    int
	header    http.Header
	body      []byte
	cacheable bool
}

func (m *Middleware) serve(w http.ResponseWriter, r *http.Request, next http.Handler) {
	start := time.Now()
	id := CacheID(r)

	if Decide(id, m.lifetime, r.Header.Get("Cache-Control"), m.denyDirectives) == Deny {
		m.log().Debug("response cache bypassed", "method", r.Method, "url", r.URL.String())
		status := m.deny(w, r, next)
		m.metrics.RecordRequest(r.Method, Deny.String(), status, time.Since(start))
		return
	}

	res := m.resolve(r, id, next)
	status := m.write(w, r, res)
	m.metrics.RecordRequest(r.Method, res.decision.String(), status, time.Since(start))
	m.metrics.RecordResponseSize(res.decision.String(), int64(len(res.body)))
}

// deny runs next with the original writer and forces the deny policy onto
// the response header before it is sent.
func (m *Middleware) deny(w http.ResponseWriter, r *http.Request, next http.Handler) int {
	hw := &hookWriter{ResponseWriter: w, before: func(h http.Header) {
		m.policy.Deny(h)
		if m.markResponses {
			h.Set(XResponseCache, Deny.String())
		}
	}}
	next.ServeHTTP(hw, r)
	hw.fire()
	return hw.statusCode()
}

// resolve serves a fresh stored entry or regenerates one. With a locker
// configured, regeneration happens under the id's lock and the store is
// read again once the lock is held.
func (m *Middleware) resolve(r *http.Request, id string, next http.Handler) *result {
	if res := m.lookup(r, id); res != nil {
		return res
	}
	if m.locker == nil {
		return m.regenerate(r, id, next)
	}

	v, err := m.locker.DoWithLock(id, func() (interface{}, error) {
		if res := m.lookup(r, id); res != nil {
			return res, nil
		}
		return m.regenerate(r, id, next), nil
	})
	if err != nil {
		m.log().Warn("response cache lock failed", "cache_id", id, "error", err)
		return m.regenerate(r, id, next)
	}
	return v.(*result)
}

// lookup returns the stored response for id when it is still fresh.
func (m *Middleware) lookup(r *http.Request, id string) *result {
	entry, found, err := m.store.Get(r.Context(), id)
	if err != nil {
		m.storeFailed(r, "get", id, err)
		return nil
	}
	if Evaluate(entry, found, m.lifetime, m.clock.Now()) != ServeCached {
		return nil
	}

	h := http.Header{}
	m.policy.Allow(h, m.lifetime)
	overlay(h, entry.Header)
	overlay(h, composeHeaders(entry.Modified, m.lifetime, entry.Body, m.etag))

	m.log().Debug("response served from cache", "cache_id", id, "modified", entry.Modified)
	return &result{
		decision:  ServeCached,
		status:    entry.StatusCode(),
		header:    h,
		body:      entry.Body,
		cacheable: true,
	}
}

// regenerate runs next into a buffer, applies the before-cache hook, stores
// the entry and composes the validation headers from the current time.
// The allow value is only set when the handler left Cache-Control empty.
func (m *Middleware) regenerate(r *http.Request, id string, next http.Handler) *result {
	rec := newRecorder()
	next.ServeHTTP(rec, r)

	status := rec.statusCode()
	body := rec.body.Bytes()
	if !m.shouldCache(status, rec.header) {
		m.policy.Deny(rec.header)
		return &result{decision: Regenerate, status: status, header: rec.header, body: body}
	}

	now := m.clock.Now()
	if transformed := m.beforeCache(now, body); !bytes.Equal(transformed, body) {
		body = transformed
		if rec.header.Get("Content-Length") != "" {
			rec.header.Set("Content-Length", strconv.Itoa(len(body)))
		}
	}

	if ctx := r.Context(); ctx.Err() != nil {
		m.log().Debug("response not cached, request canceled", "cache_id", id, "error", ctx.Err())
	} else if err := m.store.Set(ctx, id, Entry{Status: status, Header: rec.header.Clone(), Body: body}); err != nil {
		m.storeFailed(r, "set", id, err)
	} else {
		m.log().Debug("response cached", "cache_id", id, "status", status, "size", len(body))
	}

	if len(rec.header.Values("Cache-Control")) == 0 {
		m.policy.Allow(rec.header, m.lifetime)
	}
	overlay(rec.header, composeHeaders(now, m.lifetime, body, m.etag))
	return &result{
		decision:  Regenerate,
		status:    status,
		header:    rec.header,
		body:      body,
		cacheable: true,
	}
}

func (m *Middleware) write(w http.ResponseWriter, r *http.Request, res *result) int {
	dst := w.Header()
	for name, values := range res.header {
		dst[name] = values
	}
	if m.markResponses {
		dst.Set(XResponseCache, res.decision.String())
	}

	status := res.status
	if m.conditional && res.cacheable && status == http.StatusOK && notModified(r, dst) {
		dst.Del("Content-Length")
		dst.Del("Content-Type")
		w.WriteHeader(http.StatusNotModified)
		return http.StatusNotModified
	}

	w.WriteHeader(status)
	if _, err := w.Write(res.body); err != nil {
		m.log().Debug("response write failed", "url", r.URL.String(), "error", err)
	}
	return status
}

// storeFailed logs and counts a store failure. Failures never reach the client.
func (m *Middleware) storeFailed(r *http.Request, op, id string, err error) {
	reason, level := metrics.ReasonOther, slog.LevelWarn
	switch {
	case errors.Is(err, ErrStorageUnavailable):
		reason, level = metrics.ReasonStorageUnavailable, slog.LevelError
	case errors.Is(err, ErrMalformedEntry):
		reason = metrics.ReasonMalformedEntry
	}
	m.log().Log(r.Context(), level, "response cache store failure",
		"operation", op,
		"cache_id", id,
		"error", err)
	m.metrics.RecordStoreFailure(op, reason)
}
