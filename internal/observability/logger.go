package observability

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger returns the JSON logger every component derives from. verbose
// turns on debug output.
func NewLogger(verbose bool) *slog.Logger {
	return newLogger(os.Stdout, verbose)
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}
