package responsecache

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"
)

const (
	headerModified       = "X-Responsecache-Modified"
	headerImplicitLength = "X-Responsecache-Implicit-Length"
)

// Entry is a stored response. It is either wholly present or wholly absent.
type Entry struct {
	// Modified is the time the entry was generated, with whole-second
	// precision. A zero Modified passed to Store.Set asks the store to use
	// its own write time.
	Modified time.Time
	// Status is the HTTP status code replayed on a hit. Zero means 200.
	Status int
	Header http.Header
	Body   []byte
}

// StatusCode returns the status to replay for the entry.
func (e Entry) StatusCode() int {
	if e.Status == 0 {
		return http.StatusOK
	}
	return e.Status
}

// Stamp returns a copy of the entry whose Modified is set to now when it was
// left zero, truncated to whole seconds. Stores call it before persisting.
func (e Entry) Stamp(now time.Time) Entry {
	if e.Modified.IsZero() {
		e.Modified = now
	}
	e.Modified = time.Unix(e.Modified.Unix(), 0)
	return e
}

// Clone returns a deep copy of the entry.
func (e Entry) Clone() Entry {
	c := e
	c.Header = e.Header.Clone()
	if e.Body != nil {
		c.Body = append([]byte(nil), e.Body...)
	}
	return c
}

// EncodeEntry serializes the entry in HTTP/1.1 wire format with the
// modification time carried in a private header. Byte-oriented backends
// store the result as-is.
func EncodeEntry(e Entry) ([]byte, error) {
	header := make(http.Header, len(e.Header)+2)
	for _, name := range endToEndHeaders(e.Header) {
		header[name] = append([]string(nil), e.Header[name]...)
	}
	if header.Get("Content-Length") == "" {
		header.Set(headerImplicitLength, "1")
	}
	header.Set(headerModified, strconv.FormatInt(e.Modified.Unix(), 10))

	resp := &http.Response{
		Status:        fmt.Sprintf("%d %s", e.StatusCode(), http.StatusText(e.StatusCode())),
		StatusCode:    e.StatusCode(),
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		ContentLength: int64(len(e.Body)),
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
	}

	var buf bytes.Buffer
	if err := resp.Write(&buf); err != nil {
		return nil, fmt.Errorf("encode entry: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeEntry parses data produced by EncodeEntry. Any failure is reported
// as ErrMalformedEntry.
func DecodeEntry(data []byte) (Entry, error) {
	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(data)), nil)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrMalformedEntry, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: reading body: %v", ErrMalformedEntry, err)
	}

	raw := resp.Header.Get(headerModified)
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: bad modification time %q", ErrMalformedEntry, raw)
	}

	header := resp.Header
	if header.Get(headerImplicitLength) != "" {
		header.Del("Content-Length")
	}
	header.Del(headerImplicitLength)
	header.Del(headerModified)

	return Entry{
		Modified: time.Unix(secs, 0),
		Status:   resp.StatusCode,
		Header:   header,
		Body:     body,
	}, nil
}

// endToEndHeaders returns the header names that survive storage; hop-by-hop
// headers and those named in Connection are dropped.
func endToEndHeaders(h http.Header) []string {
	hopByHop := map[string]struct{}{
		"Connection":          {},
		"Keep-Alive":          {},
		"Proxy-Authenticate":  {},
		"Proxy-Authorization": {},
		"Te":                  {},
		"Trailer":             {},
		"Transfer-Encoding":   {},
		"Upgrade":             {},
	}
	for _, extra := range strings.Split(h.Get("Connection"), ",") {
		if extra = strings.TrimSpace(extra); extra != "" {
			hopByHop[http.CanonicalHeaderKey(extra)] = struct{}{}
		}
	}

	names := make([]string, 0, len(h))
	for name := range h {
		if _, ok := hopByHop[http.CanonicalHeaderKey(name)]; !ok {
			names = append(names, name)
		}
	}
	return names
}

// EncodeHeader serializes h in HTTP header wire format.
func EncodeHeader(h http.Header) []byte {
	var buf bytes.Buffer
	_ = h.Write(&buf)
	return buf.Bytes()
}

// DecodeHeader parses data produced by EncodeHeader. A failure is reported
// as ErrMalformedEntry.
func DecodeHeader(data []byte) (http.Header, error) {
	if len(data) == 0 {
		return http.Header{}, nil
	}
	r := textproto.NewReader(bufio.NewReader(io.MultiReader(bytes.NewReader(data), strings.NewReader("\r\n"))))
	h, err := r.ReadMIMEHeader()
	if err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrMalformedEntry, err)
	}
	return http.Header(h), nil
}
