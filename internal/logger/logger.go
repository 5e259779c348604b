// Package logger configures the process-wide structured logger.
package logger

import (
	"io"
	"log/slog"
	"os"
)

// Setup returns a JSON slog.Logger writing to w.
func Setup(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// SetupDefault configures the default logger to write JSON to stdout
// and returns it.
func SetupDefault() *slog.Logger {
	l := Setup(os.Stdout)
	slog.SetDefault(l)
	return l
}
