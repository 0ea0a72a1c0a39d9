package shared

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// SetupLogger builds the process logger. The debug flag wins over the
// configured level.
func SetupLogger(level string, debug bool) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
	})

	if debug {
		logger.SetLevel(log.DebugLevel)
		return logger
	}
	if lvl, err := log.ParseLevel(level); err == nil {
		logger.SetLevel(lvl)
	}
	return logger
}

// SetupTUILogger builds a logger that stays off the terminal the TUI owns.
// Without debug it discards everything; with debug it appends to a file.
func SetupTUILogger(debug bool) *log.Logger {
	if !debug {
		return log.New(io.Discard)
	}

	f, err := os.OpenFile("shellgame-debug.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return log.New(io.Discard)
	}
	logger := log.NewWithOptions(f, log.Options{ReportTimestamp: true})
	logger.SetLevel(log.DebugLevel)
	return logger
}
