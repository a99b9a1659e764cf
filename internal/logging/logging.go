// Package logging configures the process-wide slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"

	charmlog "github.com/charmbracelet/log"
	"golang.org/x/term"
)

// Setup installs the default slog logger writing to stderr. Output is colored
// text on a terminal and JSON otherwise, so daemon log files stay parseable.
func Setup(verbose bool) {
	slog.SetDefault(New(os.Stderr, verbose, !isTerminal(os.Stderr)))
}

// New returns a slog logger backed by charmbracelet/log.
func New(w io.Writer, verbose, json bool) *slog.Logger {
	handler := charmlog.NewWithOptions(w, charmlog.Options{
		ReportTimestamp: true,
		Prefix:          "chetter",
	})

	if verbose {
		handler.SetLevel(charmlog.DebugLevel)
	} else {
		handler.SetLevel(charmlog.InfoLevel)
	}

	if json {
		handler.SetFormatter(charmlog.JSONFormatter)
	}

	return slog.New(handler)
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
