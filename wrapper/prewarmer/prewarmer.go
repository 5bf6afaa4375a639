// Package prewarmer fills a response cache ahead of traffic by requesting
// URLs through a server fronted by the responsecache middleware.
package prewarmer

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sandrolain/responsecache"
)

// DefaultUserAgent is sent when Config.UserAgent is empty.
const DefaultUserAgent = "responsecache-prewarmer/1.0"

// maxSitemapSize bounds the sitemap documents read into memory.
const maxSitemapSize = 10 << 20

var (
	// ErrNilClient is returned by New without an HTTP client.
	ErrNilClient = errors.New("prewarmer: http client is required")
	// ErrSitemapDepth is returned when sitemap indexes nest too deeply.
	ErrSitemapDepth = errors.New("prewarmer: sitemap index nesting too deep")
)

// Config configures a Prewarmer.
type Config struct {
	// Client performs the requests. Required.
	Client *http.Client
	// UserAgent defaults to DefaultUserAgent.
	UserAgent string
	// Timeout bounds each request. Zero means no per-request timeout.
	Timeout time.Duration
	// Workers is the number of concurrent requests. Values < 1 mean 1.
	Workers int
}

// Result describes one prewarmed URL.
type Result struct {
	URL        string
	StatusCode int
	Duration   time.Duration
	Size       int64
	// Decision is the X-Response-Cache value reported by the server,
	// empty when the server does not mark responses.
	Decision string
	Error    error
}

// FromCache reports whether the server answered from its cache.
func (r Result) FromCache() bool {
	return r.Decision == responsecache.ServeCached.String()
}

// Stats summarizes a run.
type Stats struct {
	Total         int
	Successful    int
	Failed        int
	AlreadyCached int
	TotalDuration time.Duration
	TotalBytes    int64
	Errors        []error
}

// ProgressFunc is called after each URL. Calls are serialized.
type ProgressFunc func(result Result, completed, total int)

// Prewarmer requests URLs so that the cache behind them is populated.
type Prewarmer struct {
	client    *http.Client
	userAgent string
	timeout   time.Duration
	workers   int
}

// New returns a Prewarmer.
func New(config Config) (*Prewarmer, error) {
	if config.Client == nil {
		return nil, ErrNilClient
	}
	ua := config.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	workers := config.Workers
	if workers < 1 {
		workers = 1
	}
	return &Prewarmer{
		client:    config.Client,
		userAgent: ua,
		timeout:   config.Timeout,
		workers:   workers,
	}, nil
}

// Prewarm requests every URL and returns the aggregated stats.
// Per-URL failures are collected in Stats; only context cancellation
// is returned as an error.
func (p *Prewarmer) Prewarm(ctx context.Context, urls []string, progress ProgressFunc) (*Stats, error) {
	start := time.Now()
	stats := &Stats{Total: len(urls)}

	var mu sync.Mutex
	completed := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for _, u := range urls {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res := p.fetch(gctx, u)

			mu.Lock()
			defer mu.Unlock()
			completed++
			stats.add(res)
			if progress != nil {
				progress(res, completed, stats.Total)
			}
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	stats.TotalDuration = time.Since(start)

	responsecache.GetLogger().Info("prewarm finished",
		"total", stats.Total,
		"successful", stats.Successful,
		"failed", stats.Failed,
		"cached", stats.AlreadyCached,
		"duration", stats.TotalDuration)
	return stats, err
}

func (s *Stats) add(res Result) {
	if res.Error != nil {
		s.Failed++
		s.Errors = append(s.Errors, fmt.Errorf("%s: %w", res.URL, res.Error))
		return
	}
	s.Successful++
	s.TotalBytes += res.Size
	if res.FromCache() {
		s.AlreadyCached++
	}
}

func (p *Prewarmer) fetch(ctx context.Context, url string) Result {
	res := Result{URL: url}
	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		res.Error = fmt.Errorf("create request: %w", err)
		return res
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		res.Error = fmt.Errorf("request: %w", err)
		return res
	}
	defer resp.Body.Close()

	res.StatusCode = resp.StatusCode
	res.Decision = resp.Header.Get(responsecache.XResponseCache)

	n, err := io.Copy(io.Discard, resp.Body)
	res.Size = n
	if err != nil {
		res.Error = fmt.Errorf("read body: %w", err)
		return res
	}
	if resp.StatusCode >= http.StatusBadRequest {
		res.Error = fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return res
}

// Sitemap is a sitemaps.org urlset document.
type Sitemap struct {
	XMLName xml.Name     `xml:"urlset"`
	URLs    []SitemapURL `xml:"url"`
}

// SitemapURL is one url entry of a Sitemap.
type SitemapURL struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod,omitempty"`
	ChangeFreq string `xml:"changefreq,omitempty"`
	Priority   string `xml:"priority,omitempty"`
}

// SitemapIndex is a sitemaps.org sitemapindex document.
type SitemapIndex struct {
	XMLName  xml.Name         `xml:"sitemapindex"`
	Sitemaps []SitemapLocator `xml:"sitemap"`
}

// SitemapLocator points at a child sitemap.
type SitemapLocator struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

// PrewarmSitemap collects the URLs of a sitemap (following sitemap
// indexes) and prewarms them.
func (p *Prewarmer) PrewarmSitemap(ctx context.Context, sitemapURL string, progress ProgressFunc) (*Stats, error) {
	urls, err := p.SitemapURLs(ctx, sitemapURL)
	if err != nil {
		return nil, err
	}
	return p.Prewarm(ctx, urls, progress)
}

// SitemapURLs returns the page URLs listed by a sitemap or sitemap index.
func (p *Prewarmer) SitemapURLs(ctx context.Context, sitemapURL string) ([]string, error) {
	return p.sitemapURLs(ctx, sitemapURL, 0)
}

func (p *Prewarmer) sitemapURLs(ctx context.Context, sitemapURL string, depth int) ([]string, error) {
	if depth > 3 {
		return nil, ErrSitemapDepth
	}
	data, err := p.download(ctx, sitemapURL)
	if err != nil {
		return nil, err
	}

	var index SitemapIndex
	if xml.Unmarshal(data, &index) == nil && len(index.Sitemaps) > 0 {
		var urls []string
		for _, sm := range index.Sitemaps {
			child, err := p.sitemapURLs(ctx, sm.Loc, depth+1)
			if err != nil {
				responsecache.GetLogger().Warn("skipping sitemap", "url", sm.Loc, "error", err)
				continue
			}
			urls = append(urls, child...)
		}
		return urls, nil
	}

	var sitemap Sitemap
	if err := xml.Unmarshal(data, &sitemap); err != nil {
		return nil, fmt.Errorf("parse sitemap %s: %w", sitemapURL, err)
	}
	urls := make([]string, 0, len(sitemap.URLs))
	for _, u := range sitemap.URLs {
		if u.Loc != "" {
			urls = append(urls, u.Loc)
		}
	}
	return urls, nil
}

func (p *Prewarmer) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create sitemap request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch sitemap: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch sitemap %s: status %d", url, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxSitemapSize))
}
