// Package logger builds the service's slog loggers and carries them through
// request contexts.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// SubsystemAPI is attached to API records as the "subsystem" attribute.
const SubsystemAPI = "api"

type contextKey struct{}

// Config controls logger construction.
type Config struct {
	Level slog.Level
}

// ParseLevel converts a level name to a slog.Level. Unknown names map to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// NewSubsystemLogger returns a JSON logger on stdout tagged with subsystem.
// When otelHandler is non-nil, records are also sent to it.
func NewSubsystemLogger(subsystem string, cfg Config, otelHandler slog.Handler) *slog.Logger {
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Level,
	})
	if otelHandler != nil {
		handler = &teeHandler{handlers: []slog.Handler{handler, otelHandler}, level: cfg.Level}
	}
	return slog.New(handler).With("subsystem", subsystem)
}

// AddToContext returns a copy of ctx carrying log.
func AddToContext(ctx context.Context, log *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, log)
}

// FromContext returns the logger stored in ctx, or slog.Default.
func FromContext(ctx context.Context) *slog.Logger {
	if log, ok := ctx.Value(contextKey{}).(*slog.Logger); ok && log != nil {
		return log
	}
	return slog.Default()
}

// teeHandler fans records out to several handlers.
type teeHandler struct {
	handlers []slog.Handler
	level    slog.Level
}

func (h *teeHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, handler := range h.handlers {
		if !handler.Enabled(ctx, r.Level) {
			continue
		}
		if err := handler.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (h *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		next[i] = handler.WithAttrs(attrs)
	}
	return &teeHandler{handlers: next, level: h.level}
}

func (h *teeHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		next[i] = handler.WithGroup(name)
	}
	return &teeHandler{handlers: next, level: h.level}
}
