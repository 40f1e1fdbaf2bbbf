package utils

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the application logger
type Logger struct {
	log *logrus.Logger
}

// NewLogger creates a logger writing to stdout. format is "json" or "text";
// an unparsable level falls back to info.
func NewLogger(level, format string) *Logger {
	return newLogger(os.Stdout, level, format)
}

// NewDiscardLogger creates a logger that drops everything, for tests
func NewDiscardLogger() *Logger {
	return newLogger(io.Discard, "error", "text")
}

func newLogger(out io.Writer, level, format string) *Logger {
	l := logrus.New()
	l.SetOutput(out)
	if format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
	return &Logger{log: l}
}

// Info logs an informational message
func (l *Logger) Info(format string, v ...interface{}) {
	l.log.Infof(format, v...)
}

// Warn logs a warning
func (l *Logger) Warn(format string, v ...interface{}) {
	l.log.Warnf(format, v...)
}

// Error logs an error message
func (l *Logger) Error(format string, v ...interface{}) {
	l.log.Errorf(format, v...)
}

// WithFields returns an entry carrying the given structured fields
func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	return l.log.WithFields(logrus.Fields(fields))
}

// LogAction logs a mutation on a resource by a user
func (l *Logger) LogAction(action, resourceType, resourceID, userID string) {
	l.log.WithField(resourceType+"_id", resourceID).
		WithField("user_id", userID).
		Info(resourceType + " " + action)
}
