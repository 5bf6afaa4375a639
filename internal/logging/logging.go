// Package logging configures zerolog for the proxy and routes the
// library's slog output into it.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Config struct {
	// Level is one of trace, debug, info, warn or error (default info).
	Level string
	// Format is "console" or "json".
	Format string
	// File is appended to in addition to Output when set.
	File string
	// Output defaults to os.Stdout.
	Output io.Writer
}

// Setup configures the global zerolog logger. The returned closer releases
// the log file, if any.
func Setup(cfg Config) (zerolog.Logger, io.Closer, error) {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	if cfg.Format != "json" {
		out = zerolog.ConsoleWriter{Out: out}
	}

	writers := []io.Writer{out}
	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o644)
		if err != nil {
			return zerolog.Logger{}, nil, fmt.Errorf("open log file: %w", err)
		}
		writers = append(writers, f)
		closer = f
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(ParseLevel(cfg.Level)).
		With().Timestamp().Logger()
	log.Logger = logger
	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// ParseLevel maps a level name to zerolog, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Slog returns a slog.Logger writing through logger.
func Slog(logger zerolog.Logger) *slog.Logger {
	return slog.New(&Handler{logger: logger})
}

// Handler is a slog.Handler backed by a zerolog.Logger. Groups are
// flattened into dotted keys.
type Handler struct {
	logger zerolog.Logger
	attrs  []slog.Attr
	prefix string
}

func zerologLevel(l slog.Level) zerolog.Level {
	switch {
	case l < slog.LevelDebug:
		return zerolog.TraceLevel
	case l < slog.LevelInfo:
		return zerolog.DebugLevel
	case l < slog.LevelWarn:
		return zerolog.InfoLevel
	case l < slog.LevelError:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

func (h *Handler) Enabled(_ context.Context, l slog.Level) bool {
	zl := zerologLevel(l)
	return zl >= h.logger.GetLevel() && zl >= zerolog.GlobalLevel()
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	evt := h.logger.WithLevel(zerologLevel(r.Level))
	for _, a := range h.attrs {
		evt = appendAttr(evt, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		evt = appendAttr(evt, h.prefix, a)
		return true
	})
	evt.Msg(r.Message)
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	next.attrs = append(next.attrs, h.attrs...)
	for _, a := range attrs {
		a.Key = h.prefix + a.Key
		next.attrs = append(next.attrs, a)
	}
	return &next
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

func appendAttr(evt *zerolog.Event, prefix string, a slog.Attr) *zerolog.Event {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return evt
	}
	key := prefix + a.Key
	v := a.Value
	switch v.Kind() {
	case slog.KindString:
		return evt.Str(key, v.String())
	case slog.KindInt64:
		return evt.Int64(key, v.Int64())
	case slog.KindUint64:
		return evt.Uint64(key, v.Uint64())
	case slog.KindFloat64:
		return evt.Float64(key, v.Float64())
	case slog.KindBool:
		return evt.Bool(key, v.Bool())
	case slog.KindDuration:
		return evt.Dur(key, v.Duration())
	case slog.KindTime:
		return evt.Time(key, v.Time())
	case slog.KindGroup:
		for _, ga := range v.Group() {
			evt = appendAttr(evt, key+".", ga)
		}
		return evt
	default:
		if err, ok := v.Any().(error); ok {
			return evt.AnErr(key, err)
		}
		return evt.Interface(key, v.Any())
	}
}
