// Package xrd holds the definitions shared across the multi-source read
// adaptor: positioned buffers for vector I/O, tuning options, the typed
// errors surfaced to callers and leveled logging helpers.
package xrd

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// LogLevel is re-exported so commands can bind it to a flag without
// importing logrus themselves.
type LogLevel = logrus.Level

// SetLogLevel adjusts the verbosity of the whole adaptor.
func SetLogLevel(level string) error {
	l, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("unknown log level %q: %w", level, err)
	}
	logrus.SetLevel(l)
	return nil
}

func logf(level logrus.Level, src interface{}, format string, args ...interface{}) {
	if !logrus.IsLevelEnabled(level) {
		return
	}
	if src != nil {
		logrus.StandardLogger().Logf(level, "%v: %s", src, fmt.Sprintf(format, args...))
		return
	}
	logrus.StandardLogger().Logf(level, format, args...)
}

// Debugf writes debug output prefixed with the object it concerns. src may
// be nil for messages with no object context.
func Debugf(src interface{}, format string, args ...interface{}) {
	logf(logrus.DebugLevel, src, format, args...)
}

// Infof writes info output prefixed with the object it concerns.
func Infof(src interface{}, format string, args ...interface{}) {
	logf(logrus.InfoLevel, src, format, args...)
}

// Warnf writes warning output prefixed with the object it concerns.
func Warnf(src interface{}, format string, args ...interface{}) {
	logf(logrus.WarnLevel, src, format, args...)
}

// Errorf writes error output prefixed with the object it concerns.
func Errorf(src interface{}, format string, args ...interface{}) {
	logf(logrus.ErrorLevel, src, format, args...)
}
