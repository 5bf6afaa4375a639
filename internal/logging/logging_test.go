package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		out = append(out, m)
	}
	return out
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.TraceLevel, ParseLevel("trace"))
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, zerolog.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("bogus"))
}

func TestSetupJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := Setup(Config{Level: "warn", Format: "json", Output: &buf})
	require.NoError(t, err)
	defer closer.Close()

	logger.Info().Msg("dropped")
	logger.Warn().Str("component", "server").Msg("kept")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "kept", lines[0]["message"])
	assert.Equal(t, "server", lines[0]["component"])
	assert.Contains(t, lines[0], "time")
}

func TestSetupFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxy.log")
	var buf bytes.Buffer
	logger, closer, err := Setup(Config{Format: "json", File: path, Output: &buf})
	require.NoError(t, err)

	logger.Info().Msg("to both")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to both")
	assert.Contains(t, buf.String(), "to both")
}

func TestSetupFileError(t *testing.T) {
	_, _, err := Setup(Config{File: filepath.Join(t.TempDir(), "missing", "proxy.log")})
	assert.ErrorContains(t, err, "open log file")
}

func TestSlogBridge(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
	sl := Slog(logger).With("component", "middleware").WithGroup("store")

	sl.Debug("store operation",
		"op", "get",
		"attempt", 2,
		"found", true,
		"elapsed", 1500*time.Millisecond,
		"error", errors.New("boom"),
		slog.Group("entry", "status", 200))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	l := lines[0]
	assert.Equal(t, "debug", l["level"])
	assert.Equal(t, "store operation", l["message"])
	assert.Equal(t, "middleware", l["component"])
	assert.Equal(t, "get", l["store.op"])
	assert.EqualValues(t, 2, l["store.attempt"])
	assert.Equal(t, true, l["store.found"])
	assert.EqualValues(t, 1500, l["store.elapsed"])
	assert.Equal(t, "boom", l["store.error"])
	assert.EqualValues(t, 200, l["store.entry.status"])
}

func TestSlogBridgeLevels(t *testing.T) {
	var buf bytes.Buffer
	sl := Slog(zerolog.New(&buf).Level(zerolog.InfoLevel))

	assert.False(t, sl.Enabled(t.Context(), slog.LevelDebug))
	assert.True(t, sl.Enabled(t.Context(), slog.LevelWarn))

	sl.Debug("hidden")
	sl.Error("shown")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "error", lines[0]["level"])
}
