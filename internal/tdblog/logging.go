// Package tdblog provides structured logging for the storage, index, and
// ingestion layers: a JSON slog handler writing to a size-rotated file,
// optionally duplicated to stderr for interactive runs.
package tdblog

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Config controls where and how logs are written.
type Config struct {
	Level         string // "debug", "info", "warn", "error"
	FilePath      string
	MaxSizeMB     int
	MaxFiles      int
	WriteToStderr bool
}

// DefaultConfig returns the settings used by cmd/tdbvs when no overrides
// are supplied: info level, 10 rotated 50MB files under ./logs, no stderr
// duplication (stderr is reserved for the progress TUI).
func DefaultConfig() Config {
	return Config{
		Level:         "info",
		FilePath:      filepath.Join("logs", "tdbvs.log"),
		MaxSizeMB:     50,
		MaxFiles:      10,
		WriteToStderr: false,
	}
}

// DebugConfig is DefaultConfig with debug level and stderr duplication.
func DebugConfig() Config {
	cfg := DefaultConfig()
	cfg.Level = "debug"
	cfg.WriteToStderr = true
	return cfg
}

// Setup builds a slog.Logger per cfg and returns it along with a cleanup
// function that must be called (typically via defer) to flush and close
// the underlying file.
func Setup(cfg Config) (*slog.Logger, func(), error) {
	rw, err := NewRotatingWriter(cfg.FilePath, cfg.MaxSizeMB, cfg.MaxFiles)
	if err != nil {
		return nil, nil, fmt.Errorf("setup logging: %w", err)
	}

	var w io.Writer = rw
	if cfg.WriteToStderr {
		w = io.MultiWriter(rw, os.Stderr)
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	})

	logger := slog.New(handler)

	cleanup := func() {
		_ = rw.Sync()
		_ = rw.Close()
	}

	return logger, cleanup, nil
}

// SetupDefault is Setup(DefaultConfig()), used by commands that have no
// need to customize logging.
func SetupDefault() (*slog.Logger, func(), error) {
	return Setup(DefaultConfig())
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// LevelFromString exposes parseLevel for config validation at startup.
func LevelFromString(level string) slog.Level {
	return parseLevel(level)
}
