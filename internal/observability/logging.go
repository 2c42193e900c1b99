package observability

import (
	"log/slog"
	"os"

	"github.com/meshwx/station-ingest/internal/config"
)

// NewLogger builds the process-wide slog.Logger from config. Components never
// reach for a package-level logger; this one is passed in explicitly.
func NewLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler).With("ingest", cfg.IngestName)
}
