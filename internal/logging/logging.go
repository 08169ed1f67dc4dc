// Package logging configures the shared structured logger. The CLI calls
// Init at start-up; the other packages do not log.
package logging

import (
	"log/slog"
	"os"
)

// Default is the package-wide structured logger. Safe to use before Init is
// called; defaults to slog.Default().
var Default = slog.Default()

// Init configures the shared slog logger and calls slog.SetDefault so the
// stdlib log package also routes through the same handler.
func Init(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     level,
		AddSource: debug,
	})
	Default = slog.New(h)
	slog.SetDefault(Default)
	return Default
}
