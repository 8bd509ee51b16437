// Package logger provides the process-wide diagnostic logger for vidlaunch.
//
// Call sites use printf-style helpers (Info, Debug, Warn, Error) so that log
// statements read the same in every package. Messages go to stderr through
// logrus; user-facing progress output is printed to stdout by the callers and
// never routed through this package.
package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

var std = newLogger(os.Stderr)

func newLogger(out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp:       false,
		FullTimestamp:          true,
		TimestampFormat:        "15:04:05",
		DisableLevelTruncation: true,
		PadLevelText:           true,
	})
	return l
}

// SetVerbose switches between info and debug level.
func SetVerbose(verbose bool) {
	if verbose {
		std.SetLevel(logrus.DebugLevel)
		return
	}
	std.SetLevel(logrus.InfoLevel)
}

// SetLevel parses a level name ("debug", "info", "warn", "error").
//
// Unknown names leave the current level unchanged and return the parse error.
func SetLevel(name string) error {
	lvl, err := logrus.ParseLevel(name)
	if err != nil {
		return err
	}
	std.SetLevel(lvl)
	return nil
}

// SetOutput redirects log output, mostly for tests.
func SetOutput(w io.Writer) {
	std.SetOutput(w)
}

// Debug logs a debug message.
func Debug(format string, args ...interface{}) {
	std.Debugf(format, args...)
}

// Info logs an informational message.
func Info(format string, args ...interface{}) {
	std.Infof(format, args...)
}

// Warn logs a warning.
func Warn(format string, args ...interface{}) {
	std.Warnf(format, args...)
}

// Error logs an error.
func Error(format string, args ...interface{}) {
	std.Errorf(format, args...)
}
