package responsecache

import (
	"strings"
	"time"
)

// Decision is the outcome of evaluating a request against the cache.
type Decision int

const (
	// Deny bypasses the cache: the downstream handler runs and its response
	// is marked non-cacheable.
	Deny Decision = iota
	// ServeCached answers from the stored entry without running the handler.
	ServeCached
	// Regenerate runs the handler and stores its response.
	Regenerate
)

func (d Decision) String() string {
	switch d {
	case Deny:
		return "deny"
	case ServeCached:
		return "hit"
	case Regenerate:
		return "miss"
	default:
		return "unknown"
	}
}

// Decide reports whether a request may use the cache at all. It returns Deny
// when caching is disabled (lifetime <= 0), when the request carries no cache
// id, or when the request Cache-Control value contains any of the deny
// directives (case-sensitive substring match). Otherwise it returns
// Regenerate, meaning the store has to be consulted with Evaluate.
func Decide(cacheID string, lifetime time.Duration, requestCacheControl string, denyDirectives []string) Decision {
	if lifetime <= 0 || cacheID == "" {
		return Deny
	}
	if requestCacheControl != "" {
		for _, directive := range denyDirectives {
			if directive != "" && strings.Contains(requestCacheControl, directive) {
				return Deny
			}
		}
	}
	return Regenerate
}

// Evaluate returns ServeCached when a found entry is still fresh at now and
// Regenerate otherwise. An entry is expired once modified+lifetime < now,
// compared in whole seconds. Entries dated in the future count as fresh.
func Evaluate(entry Entry, found bool, lifetime time.Duration, now time.Time) Decision {
	if !found {
		return Regenerate
	}
	if expired(entry.Modified, lifetime, now) {
		return Regenerate
	}
	return ServeCached
}

func expired(modified time.Time, lifetime time.Duration, now time.Time) bool {
	return modified.Unix()+lifetimeSeconds(lifetime) < now.Unix()
}

func lifetimeSeconds(lifetime time.Duration) int64 {
	return int64(lifetime / time.Second)
}
