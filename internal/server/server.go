// Package server wires the caching reverse proxy together.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/sandrolain/responsecache"
	"github.com/sandrolain/responsecache/internal/config"
	"github.com/sandrolain/responsecache/internal/logging"
	"github.com/sandrolain/responsecache/internal/stores"
	"github.com/sandrolain/responsecache/locking"
	"github.com/sandrolain/responsecache/metrics"
	promcollector "github.com/sandrolain/responsecache/metrics/prometheus"
	"github.com/sandrolain/responsecache/metrics/sketch"
	"github.com/sandrolain/responsecache/wrapper/prewarmer"
)

// Server is the caching reverse proxy.
type Server struct {
	cfg      config.Config
	log      zerolog.Logger
	stack    *stores.Stack
	cache    *responsecache.Middleware
	registry *prometheus.Registry
	latency  *sketch.Collector
	handler  http.Handler
}

// New builds the store stack, the middleware and the router.
func New(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*Server, error) {
	origin, err := url.Parse(cfg.Server.Origin)
	if err != nil {
		return nil, fmt.Errorf("parse origin: %w", err)
	}

	s := &Server{
		cfg:      cfg,
		log:      logger.With().Str("component", "server").Logger(),
		registry: prometheus.NewRegistry(),
		latency:  sketch.NewCollector(),
	}
	var collector metrics.Collector = s.latency
	if cfg.Metrics.Enabled {
		collector = metrics.Multi{promcollector.NewCollectorWithRegistry(s.registry), s.latency}
	}

	if s.stack, err = stores.Build(ctx, cfg.Store, collector); err != nil {
		return nil, err
	}

	opts := []responsecache.Option{
		responsecache.WithLogger(logging.Slog(logger.With().Str("component", "cache").Logger())),
		responsecache.WithMetrics(collector),
		responsecache.WithMarkCachedResponses(cfg.Cache.MarkResponses),
		responsecache.WithConditionalRequests(cfg.Cache.Conditional),
		// responses are shared between clients
		responsecache.WithShouldCache(responsecache.OnlyShared),
	}
	if locker, err := newLocker(cfg.Cache); err != nil {
		_ = s.stack.Close(ctx)
		return nil, err
	} else if locker != nil {
		opts = append(opts, responsecache.WithLocker(locker))
	}
	if rc := resilience(cfg.Cache); rc != nil {
		opts = append(opts, responsecache.WithResilience(*rc))
	}

	if s.cache, err = responsecache.New(s.stack.Store, cfg.Cache.Lifetime, opts...); err != nil {
		_ = s.stack.Close(ctx)
		return nil, err
	}

	s.handler = s.routes(s.proxy(origin))
	return s, nil
}

func newLocker(c config.Cache) (locking.Group, error) {
	switch c.Lock {
	case "memory":
		return locking.NewMemLock(), nil
	case "file":
		return locking.NewFileLock(c.LockDir)
	default:
		return nil, nil
	}
}

func resilience(c config.Cache) *responsecache.ResilienceConfig {
	if c.Retries == 0 && c.BreakerThreshold == 0 {
		return nil
	}
	rc := &responsecache.ResilienceConfig{}
	if c.Retries > 0 {
		rc.RetryPolicy = responsecache.RetryPolicyBuilder().WithMaxRetries(c.Retries).Build()
	}
	if c.BreakerThreshold > 0 {
		rc.CircuitBreaker = responsecache.CircuitBreakerBuilder().WithFailureThreshold(uint(c.BreakerThreshold)).Build()
	}
	return rc
}

func (s *Server) proxy(origin *url.URL) http.Handler {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(origin)
			pr.SetXForwarded()
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			s.log.Warn().Err(err).Str("url", r.URL.String()).Msg("origin request failed")
			w.WriteHeader(http.StatusBadGateway)
		},
	}
}

// Identify fingerprints a request by method, path, query and the configured
// vary headers. Only GET and HEAD are cacheable.
func (s *Server) Identify(r *http.Request) string {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return ""
	}
	parts := []string{r.Method, r.URL.Path, r.URL.RawQuery}
	for _, h := range s.cfg.Cache.VaryHeaders {
		parts = append(parts, strings.Join(r.Header.Values(h), ","))
	}
	return responsecache.ID(parts...)
}

func (s *Server) routes(origin http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok"))
	})
	if s.cfg.Metrics.Enabled {
		r.Handle(s.cfg.Metrics.Path, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(responsecache.Identify(s.Identify))
		r.Use(s.cache.Handler)
		r.Handle("/*", origin)
	})
	return r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Run serves on the configured address until ctx is done, then shuts down
// gracefully and closes the store stack.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Server.Listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: s.cfg.Server.ReadHeaderTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info().
			Str("listen", ln.Addr().String()).
			Str("origin", s.cfg.Server.Origin).
			Str("backend", s.cfg.Store.Backend).
			Dur("lifetime", s.cfg.Cache.Lifetime).
			Msg("responsecache listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	bg, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.prewarm(bg, "http://"+ln.Addr().String())
	if s.cfg.Metrics.StatsInterval > 0 {
		go s.reportLatency(bg, s.cfg.Metrics.StatsInterval)
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errc:
	}
	cancel()

	shutdownCtx, done := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Warn().Err(err).Msg("shutdown")
	}
	if err := s.stack.Close(shutdownCtx); err != nil {
		s.log.Warn().Err(err).Msg("close store")
	}
	s.log.Info().Msg("responsecache stopped")
	return serveErr
}

// prewarm requests the configured URLs through the proxy. Paths are
// resolved against base.
func (s *Server) prewarm(ctx context.Context, base string) {
	pc := s.cfg.Prewarm
	if len(pc.URLs) == 0 && pc.Sitemap == "" {
		return
	}
	resolve := func(u string) string {
		if strings.HasPrefix(u, "/") {
			return base + u
		}
		return u
	}

	pw, err := prewarmer.New(prewarmer.Config{
		Client:  &http.Client{Timeout: 30 * time.Second},
		Workers: pc.Workers,
	})
	if err != nil {
		s.log.Error().Err(err).Msg("prewarm")
		return
	}

	urls := make([]string, 0, len(pc.URLs))
	for _, u := range pc.URLs {
		urls = append(urls, resolve(u))
	}
	if pc.Sitemap != "" {
		more, err := pw.SitemapURLs(ctx, resolve(pc.Sitemap))
		if err != nil {
			s.log.Warn().Err(err).Str("sitemap", pc.Sitemap).Msg("prewarm sitemap")
		}
		for _, u := range more {
			urls = append(urls, resolve(u))
		}
	}

	stats, err := pw.Prewarm(ctx, urls, func(res prewarmer.Result, completed, total int) {
		if res.Error != nil {
			s.log.Debug().Err(res.Error).Str("url", res.URL).Msg("prewarm failed")
		}
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("prewarm interrupted")
		return
	}
	s.log.Info().
		Int("urls", stats.Total).
		Int("failed", stats.Failed).
		Int("cached", stats.AlreadyCached).
		Dur("duration", stats.TotalDuration).
		Msg("prewarm done")
}

func (s *Server) reportLatency(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, st := range s.latency.Tracker.GetAllStats() {
				s.log.Info().
					Str("series", st.Series).
					Int64("count", st.Count).
					Float64("p50_ms", st.P50).
					Float64("p99_ms", st.P99).
					Msg("latency")
			}
		}
	}
}
