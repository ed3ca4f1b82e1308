package cli

import (
	"io"
	"log/slog"

	charmlog "github.com/charmbracelet/log"
)

// configureLogging routes slog through a charm logger on w and returns a
// function restoring the previous default.
func configureLogging(w io.Writer, verbose bool) func() {
	level := charmlog.InfoLevel
	if verbose {
		level = charmlog.DebugLevel
	}

	logger := charmlog.NewWithOptions(w, charmlog.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})

	previous := slog.Default()
	slog.SetDefault(slog.New(logger))
	return func() { slog.SetDefault(previous) }
}
