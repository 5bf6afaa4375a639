package responsecache

import (
	"net/http"
	"strings"
	"time"
)

// notModified reports whether the request's validators match the response
// header. If-None-Match takes precedence over If-Modified-Since.
func notModified(r *http.Request, h http.Header) bool {
	if inm := r.Header.Get("If-None-Match"); inm != "" {
		return etagMatches(inm, h.Get("ETag"))
	}

	ims := r.Header.Get("If-Modified-Since")
	if ims == "" {
		return false
	}
	since, err := http.ParseTime(ims)
	if err != nil {
		return false
	}
	lastModified, err := http.ParseTime(h.Get("Last-Modified"))
	if err != nil {
		return false
	}
	return !lastModified.Truncate(time.Second).After(since)
}

// etagMatches implements the weak comparison of If-None-Match.
func etagMatches(header, etag string) bool {
	if etag == "" {
		return false
	}
	etag = strings.TrimPrefix(etag, "W/")
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}
