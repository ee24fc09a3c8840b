package boot

import (
	"context"
	"fmt"
	"io"
	"log/slog"
)

// NewLogger returns a slog.Logger that emits through the table's write
// capability. Records below level are discarded. Failures to write are
// dropped; there is no fallback sink once logging itself is unavailable.
func NewLogger(t *GenericTable, level slog.Level) *slog.Logger {
	return slog.New(&writeHandler{table: t, level: level})
}

// DiscardLogger returns a logger that drops everything. Subsystem
// constructors use it when the caller passes a nil logger.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeHandler adapts the table's write capability to slog.
type writeHandler struct {
	table *GenericTable
	level slog.Level
	attrs []slog.Attr
}

func (h *writeHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *writeHandler) Handle(_ context.Context, record slog.Record) error {
	buf := make([]byte, 0, 128)
	buf = append(buf, levelTag(record.Level)...)
	buf = append(buf, ": "...)
	buf = append(buf, record.Message...)

	for _, attr := range h.attrs {
		buf = appendAttr(buf, attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		buf = appendAttr(buf, attr)
		return true
	})
	buf = append(buf, '\n')

	if status := h.table.Write(buf); status != StatusSuccess {
		return status.Err()
	}
	return nil
}

func (h *writeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &writeHandler{table: h.table, level: h.level, attrs: merged}
}

func (h *writeHandler) WithGroup(string) slog.Handler {
	// Groups are not meaningful on a raw byte sink.
	return h
}

func appendAttr(buf []byte, attr slog.Attr) []byte {
	buf = append(buf, ' ')
	buf = append(buf, attr.Key...)
	buf = append(buf, '=')
	return fmt.Appendf(buf, "%v", attr.Value.Any())
}

func levelTag(level slog.Level) string {
	switch {
	case level < slog.LevelDebug:
		return "TRACE"
	case level < slog.LevelInfo:
		return "DEBUG"
	case level < slog.LevelWarn:
		return "INFO "
	case level < slog.LevelError:
		return "WARN "
	default:
		return "ERROR"
	}
}
