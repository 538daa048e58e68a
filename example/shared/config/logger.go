package config

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

const (
	formatJSON  = "json"
	attrService = "service"
)

// NewLogger builds a slog logger writing to w in the configured level and format.
// Unknown levels fall back to info, unknown formats to text. A nil writer means stdout.
func NewLogger(cfg LogConfig, service string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, formatJSON) {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	if service != "" {
		handler = handler.WithAttrs([]slog.Attr{slog.String(attrService, service)})
	}

	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
