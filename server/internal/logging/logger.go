// Package logging builds the relay's slog handler. The level lives in a
// slog.LevelVar so a config reload can change it without rebuilding the logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
)

// ParseLevel maps debug|info|warn|error to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("logging: unknown level %q", s)
	}
}

// New returns a logger writing to w in the given format ("json" or "text")
// at the level held by level.
func New(w io.Writer, format string, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// SetLevel parses s and stores it in level. Unknown names leave level as is.
func SetLevel(level *slog.LevelVar, s string) error {
	l, err := ParseLevel(s)
	if err != nil {
		return err
	}
	level.Set(l)
	return nil
}
