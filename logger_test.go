package responsecache

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWithLogger(t *testing.T) {
	var buf bytes.Buffer
	testLogger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	mw, err := New(NewMemoryStore(nil), lifetime, WithLogger(testLogger))
	if err != nil {
		t.Fatal(err)
	}
	if mw.log() != testLogger {
		t.Error("log() should return the custom logger when set")
	}

	w := httptest.NewRecorder()
	mw.Handler(&pageHandler{body: "x"}).ServeHTTP(w, WithCacheID(httptest.NewRequest(http.MethodGet, "/", nil), "id"))
	if !strings.Contains(buf.String(), "response cached") {
		t.Errorf("expected debug log for stored response, got %q", buf.String())
	}
}

func TestPackageLogger(t *testing.T) {
	defer SetLogger(nil)

	if GetLogger() != slog.Default() {
		t.Error("GetLogger should default to slog.Default()")
	}

	custom := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	SetLogger(custom)
	if GetLogger() != custom {
		t.Error("GetLogger should return the logger set with SetLogger")
	}

	mw, err := New(NewMemoryStore(nil), lifetime)
	if err != nil {
		t.Fatal(err)
	}
	if mw.log() != custom {
		t.Error("log() should fall back to the package logger")
	}
}
