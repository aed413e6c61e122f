// Package logging builds the slog loggers used by robots.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel maps a configured level name to a slog level.
// Unknown or empty names fall back to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New returns a text logger writing to w at the given level.
// A nil writer logs to stderr.
func New(level string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)}))
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// WithLevel returns a logger that writes through l's handler but only emits
// records at or above level. The handler's own minimum is bypassed, so the
// result can be more verbose than l.
func WithLevel(l *slog.Logger, level string) *slog.Logger {
	h := l.Handler()
	if lh, ok := h.(*levelHandler); ok {
		h = lh.inner
	}
	return slog.New(&levelHandler{min: ParseLevel(level), inner: h})
}

type levelHandler struct {
	min   slog.Level
	inner slog.Handler
}

func (h *levelHandler) Enabled(_ context.Context, l slog.Level) bool { return l >= h.min }

func (h *levelHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.inner.Handle(ctx, r)
}

func (h *levelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelHandler{min: h.min, inner: h.inner.WithAttrs(attrs)}
}

func (h *levelHandler) WithGroup(name string) slog.Handler {
	return &levelHandler{min: h.min, inner: h.inner.WithGroup(name)}
}
