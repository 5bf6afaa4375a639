package responsecache

import (
	"fmt"
	"net/http"
	"time"

	"github.com/cespare/xxhash/v2"
)

// ETagFunc computes the entity tag of a response body, without quotes.
type ETagFunc func(body []byte) string

// ETag returns the xxhash64 digest of body as 16 lowercase hex digits.
func ETag(body []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(body))
}

// ComposeHeaders returns the validation headers for a response generated at
// lastModified and cacheable for lifetime: Expires, Last-Modified and a strong
// ETag over body. A zero lastModified means now.
func ComposeHeaders(lastModified time.Time, lifetime time.Duration, body []byte) http.Header {
	return composeHeaders(lastModified, lifetime, body, ETag)
}

func composeHeaders(lastModified time.Time, lifetime time.Duration, body []byte, etag ETagFunc) http.Header {
	if lastModified.IsZero() {
		lastModified = time.Now()
	}
	lastModified = time.Unix(lastModified.Unix(), 0)

	h := make(http.Header, 3)
	h.Set("Expires", lastModified.Add(time.Duration(lifetimeSeconds(lifetime))*time.Second).UTC().Format(http.TimeFormat))
	h.Set("Last-Modified", lastModified.UTC().Format(http.TimeFormat))
	h.Set("ETag", `"`+etag(body)+`"`)
	return h
}

// overlay sets every header of src on dst, replacing existing values.
func overlay(dst, src http.Header) {
	for name, values := range src {
		dst[name] = append([]string(nil), values...)
	}
}
