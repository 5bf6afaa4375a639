package responsecache

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/sandrolain/responsecache/locking"
	"github.com/sandrolain/responsecache/metrics"
)

// Option is a function that configures a Middleware.
// Use the With* functions to create Options.
type Option func(*Middleware) error

// BeforeCacheFunc transforms a freshly generated body before it is stored
// and served. It receives the generation time of the response.
type BeforeCacheFunc func(lastModified time.Time, body []byte) []byte

// identity is the default BeforeCacheFunc.
func identity(_ time.Time, body []byte) []byte { return body }

// ShouldCacheFunc decides whether a regenerated response is stored.
type ShouldCacheFunc func(status int, header http.Header) bool

// Always is the default ShouldCacheFunc: every regenerated response is stored.
func Always(int, http.Header) bool { return true }

// OnlyOK stores 200 responses only.
func OnlyOK(status int, _ http.Header) bool { return status == http.StatusOK }

// OnlyShared stores 200 responses a shared cache may keep: no no-store or
// private directive in Cache-Control and no Set-Cookie header.
func OnlyShared(status int, header http.Header) bool {
	if status != http.StatusOK || len(header.Values("Set-Cookie")) > 0 {
		return false
	}
	cc := parseCacheControl(header)
	return !cc.has("no-store") && !cc.has("private")
}

// WithBeforeCache sets the hook applied to regenerated bodies. The hook runs
// at most once per regeneration, before the body is stored and before the
// ETag is computed. If it returns a body equal to its input, the original
// body is kept.
func WithBeforeCache(fn BeforeCacheFunc) Option {
	return func(m *Middleware) error {
		if fn == nil {
			return errors.New("responsecache: nil BeforeCacheFunc")
		}
		m.beforeCache = fn
		return nil
	}
}

// WithPolicy replaces the Cache-Control policy.
// Default: DefaultPolicy()
func WithPolicy(p Policy) Option {
	return func(m *Middleware) error {
		if p == nil {
			return errors.New("responsecache: nil Policy")
		}
		m.policy = p
		return nil
	}
}

// WithLogger sets a custom slog.Logger for the Middleware.
// If not set, the package-level logger (GetLogger) is used.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Middleware) error {
		m.logger = logger
		return nil
	}
}

// WithClock sets the time source. Stores that stamp their own write times
// should share it in tests.
func WithClock(c Clock) Option {
	return func(m *Middleware) error {
		if c == nil {
			return errors.New("responsecache: nil Clock")
		}
		m.clock = c
		return nil
	}
}

// WithShouldCache decides which regenerated responses are stored.
// Default: Always
func WithShouldCache(fn ShouldCacheFunc) Option {
	return func(m *Middleware) error {
		if fn == nil {
			return errors.New("responsecache: nil ShouldCacheFunc")
		}
		m.shouldCache = fn
		return nil
	}
}

// WithETagFunc replaces the body digest used for the ETag header.
// Default: ETag (xxhash64)
func WithETagFunc(fn ETagFunc) Option {
	return func(m *Middleware) error {
		if fn == nil {
			return errors.New("responsecache: nil ETagFunc")
		}
		m.etag = fn
		return nil
	}
}

// WithMarkCachedResponses adds the X-Response-Cache header (hit, miss or
// deny) to every response.
// Default: false
func WithMarkCachedResponses(mark bool) Option {
	return func(m *Middleware) error {
		m.markResponses = mark
		return nil
	}
}

// WithConditionalRequests answers cacheable requests carrying a matching
// If-None-Match or If-Modified-Since with 304 Not Modified.
// Default: false
func WithConditionalRequests(enable bool) Option {
	return func(m *Middleware) error {
		m.conditional = enable
		return nil
	}
}

// WithMetrics sets the collector for request and failure metrics.
// Default: metrics.DefaultCollector (no-op)
func WithMetrics(c metrics.Collector) Option {
	return func(m *Middleware) error {
		if c == nil {
			c = metrics.DefaultCollector
		}
		m.metrics = c
		return nil
	}
}

// WithLocker serializes regenerations of the same cache id. Waiting requests
// re-read the store once they hold the lock and serve the entry the first
// request stored.
// Default: no locking
func WithLocker(g locking.Group) Option {
	return func(m *Middleware) error {
		if g == nil {
			g = locking.NewNoOpGroup()
		}
		m.locker = g
		return nil
	}
}

// WithResilience applies retry and circuit breaker policies to store calls.
// Default: disabled
func WithResilience(config ResilienceConfig) Option {
	return func(m *Middleware) error {
		m.resilience = &config
		return nil
	}
}
