package responsecache

import "errors"

var (
	// ErrStorageUnavailable is returned by a Store when its backing location
	// cannot be written (missing directory, permissions, closed connection).
	// The middleware logs it and still serves the freshly generated response.
	ErrStorageUnavailable = errors.New("responsecache: storage unavailable")

	// ErrMalformedEntry is returned by a Store when a stored entry cannot be
	// decoded. The middleware treats it as a miss and regenerates the entry.
	ErrMalformedEntry = errors.New("responsecache: malformed cache entry")
)
