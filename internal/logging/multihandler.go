// Package logging routes slog records to multiple destinations, so the
// tray app can log to stderr for interactive runs and to a rotating file
// for post-mortem debugging of a long-lived session.
package logging

import (
	"context"
	"log/slog"
)

// MultiHandler fans out each record to every wrapped handler.
type MultiHandler struct {
	handlers []slog.Handler
}

// NewMultiHandler creates a handler writing to all given destinations.
func NewMultiHandler(handlers ...slog.Handler) *MultiHandler {
	return &MultiHandler{handlers: handlers}
}

// Enabled reports whether at least one destination wants the level.
func (h *MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle writes the record to every enabled destination. A failing
// destination must not stop the remaining ones, so per-handler errors
// are dropped.
func (h *MultiHandler) Handle(ctx context.Context, record slog.Record) error {
	for _, handler := range h.handlers {
		if !handler.Enabled(ctx, record.Level) {
			continue
		}
		_ = handler.Handle(ctx, record)
	}
	return nil
}

// WithAttrs returns a new handler with additional attributes.
func (h *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.derive(func(hd slog.Handler) slog.Handler { return hd.WithAttrs(attrs) })
}

// WithGroup returns a new handler with a group name.
func (h *MultiHandler) WithGroup(name string) slog.Handler {
	return h.derive(func(hd slog.Handler) slog.Handler { return hd.WithGroup(name) })
}

// derive builds a MultiHandler whose destinations are transformed copies
// of the current ones.
func (h *MultiHandler) derive(transform func(slog.Handler) slog.Handler) *MultiHandler {
	next := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		next[i] = transform(handler)
	}
	return &MultiHandler{handlers: next}
}
