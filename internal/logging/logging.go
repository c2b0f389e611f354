package logging

import (
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

// NewLogger creates a configured logrus logger writing to stderr.
//
// format: "text" (human-readable) or "json" (structured).
func NewLogger(level log.Level, format string) *log.Logger {
	return NewLoggerWithWriter(level, format, os.Stderr)
}

// NewLoggerWithWriter creates a logger writing to the given writer.
func NewLoggerWithWriter(level log.Level, format string, w io.Writer) *log.Logger {
	l := log.New()
	l.SetOutput(w)
	l.SetLevel(level)

	switch strings.ToLower(format) {
	case "json":
		l.SetFormatter(&log.JSONFormatter{})
	default:
		l.SetFormatter(&log.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	}
	return l
}

// ParseLevel converts a string log level. Unrecognized values yield InfoLevel.
func ParseLevel(s string) log.Level {
	switch strings.ToLower(s) {
	case "debug":
		return log.DebugLevel
	case "info":
		return log.InfoLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return NewLoggerWithWriter(log.PanicLevel, "text", io.Discard)
}
