package responsecache

import (
	"bytes"
	"net/http"
)

// recorder buffers a downstream response so it can be transformed and
// stored before anything reaches the client.
type recorder struct {
	header      http.Header
	status      int
	body        bytes.Buffer
	wroteHeader bool
}

func newRecorder() *recorder {
	return &recorder{header: http.Header{}}
}

func (r *recorder) Header() http.Header { return r.header }

func (r *recorder) WriteHeader(status int) {
	if r.wroteHeader {
		return
	}
	r.wroteHeader = true
	r.status = status
}

func (r *recorder) Write(p []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	return r.body.Write(p)
}

// statusCode returns the recorded status, 200 when the handler never set one.
func (r *recorder) statusCode() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

// hookWriter calls before exactly once, right before the response header is
// sent. The deny path uses it to force its Cache-Control value over whatever
// the handler set without buffering the body.
type hookWriter struct {
	http.ResponseWriter
	before func(http.Header)
	fired  bool
	status int
}

func (w *hookWriter) fire() {
	if !w.fired {
		w.fired = true
		w.before(w.ResponseWriter.Header())
	}
}

func (w *hookWriter) WriteHeader(status int) {
	w.fire()
	if w.status == 0 {
		w.status = status
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *hookWriter) Write(p []byte) (int, error) {
	w.fire()
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(p)
}

func (w *hookWriter) statusCode() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

func (w *hookWriter) Flush() {
	w.fire()
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *hookWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
