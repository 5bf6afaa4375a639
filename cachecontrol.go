package responsecache

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultDenyCacheControl is the Cache-Control value forced onto denied responses.
	DefaultDenyCacheControl = "no-store, no-cache, private, max-age=0"
	// DefaultAllowVisibility is the visibility directive of cacheable responses.
	DefaultAllowVisibility = "public"
)

// Policy marks responses as cacheable or non-cacheable and tells the
// evaluator which request directives opt out of caching.
type Policy interface {
	// Deny marks h as non-cacheable.
	Deny(h http.Header)
	// Allow marks h as cacheable for lifetime.
	Allow(h http.Header, lifetime time.Duration)
	// DenyDirectives returns the request Cache-Control directives that bypass the cache.
	DenyDirectives() []string
}

// HeaderPolicy is the default Policy. The deny directive set is derived from
// the deny header value itself, so a request asking for no-store or no-cache
// is never served from the cache.
type HeaderPolicy struct {
	// DenyValue is the Cache-Control value of denied responses.
	DenyValue string
	// Visibility is "public" or "private" for cacheable responses.
	Visibility string
}

// DefaultPolicy returns a HeaderPolicy with the default values.
func DefaultPolicy() HeaderPolicy {
	return HeaderPolicy{DenyValue: DefaultDenyCacheControl, Visibility: DefaultAllowVisibility}
}

// Deny implements Policy.
func (p HeaderPolicy) Deny(h http.Header) {
	v := p.DenyValue
	if v == "" {
		v = DefaultDenyCacheControl
	}
	h.Set("Cache-Control", v)
}

// Allow implements Policy.
func (p HeaderPolicy) Allow(h http.Header, lifetime time.Duration) {
	visibility := p.Visibility
	if visibility == "" {
		visibility = DefaultAllowVisibility
	}
	h.Set("Cache-Control", visibility+", max-age="+strconv.FormatInt(lifetimeSeconds(lifetime), 10))
}

// DenyDirectives implements Policy.
func (p HeaderPolicy) DenyDirectives() []string {
	h := http.Header{}
	p.Deny(h)
	return parseCacheControl(h).directives()
}

// cacheControl maps Cache-Control directive names to their values, keeping
// the order of first appearance.
type cacheControl struct {
	values map[string]string
	order  []string
}

// parseCacheControl splits every Cache-Control header line on commas.
// Duplicate directives keep their first value.
func parseCacheControl(headers http.Header) cacheControl {
	cc := cacheControl{values: map[string]string{}}
	for _, part := range strings.Split(strings.Join(headers.Values("Cache-Control"), ","), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		directive, value, _ := strings.Cut(part, "=")
		directive = strings.TrimSpace(directive)
		if _, seen := cc.values[directive]; seen {
			continue
		}
		cc.values[directive] = strings.TrimSpace(value)
		cc.order = append(cc.order, part)
	}
	return cc
}

// directives returns every directive as written, including its value
// ("max-age=0"), in header order.
func (cc cacheControl) directives() []string {
	return append([]string(nil), cc.order...)
}

// has reports whether the directive is present, matched case-insensitively.
func (cc cacheControl) has(directive string) bool {
	for name := range cc.values {
		if strings.EqualFold(name, directive) {
			return true
		}
	}
	return false
}
