// Package logging configures the daemon's structured logger, grounded on
// doismellburning-samoyed's use of github.com/charmbracelet/log for a
// long-running daemon's lifecycle/status output.
package logging

import (
	"os"

	"github.com/charmbracelet/log"
)

// New builds a charmbracelet/log logger writing timestamped, level-colored
// lines to stderr. verbose enables debug-level output.
func New(verbose bool) *log.Logger {
	level := log.InfoLevel
	if verbose {
		level = log.DebugLevel
	}
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Level:           level,
	})
	return logger
}
