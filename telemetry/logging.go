package telemetry

import (
	"io"
	"log/slog"
	"strings"
)

// NewLogger builds a slog logger writing JSON (or text, when format is
// "text") to every writer in outs.
func NewLogger(level slog.Level, format string, outs ...io.Writer) *slog.Logger {
	w := io.MultiWriter(outs...)
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
