// Package logging provides log levels and a level-gated logger for georouter.
package logging

import (
	"fmt"
	"io"
	"log"
)

// LogLevel represents logging verbosity
type LogLevel int

// Log level constants from most verbose to least verbose
const (
	LogLevelDebug   LogLevel = iota // Debug level - most verbose
	LogLevelInfo                    // Info level - informational messages
	LogLevelWarning                 // Warning level - warning messages
	LogLevelError                   // Error level - error messages only
)

func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "debug"
	case LogLevelInfo:
		return "info"
	case LogLevelWarning:
		return "warning"
	case LogLevelError:
		return "error"
	default:
		return fmt.Sprintf("LogLevel(%d)", int(l))
	}
}

// ParseLogLevel parses a log level string
func ParseLogLevel(s string) (LogLevel, error) {
	switch s {
	case "debug":
		return LogLevelDebug, nil
	case "info":
		return LogLevelInfo, nil
	case "warning":
		return LogLevelWarning, nil
	case "error":
		return LogLevelError, nil
	default:
		return LogLevelError, fmt.Errorf("invalid log level: %s (must be debug, info, warning, or error)", s)
	}
}

// Logger writes messages at or above its level. The zero value is not usable; use New or Default.
type Logger struct {
	out   *log.Logger
	level LogLevel
}

// New creates a Logger writing to w with the standard log flags
func New(w io.Writer, level LogLevel) *Logger {
	return &Logger{out: log.New(w, "", log.LstdFlags), level: level}
}

// Default creates a Logger on top of the package-level standard logger
func Default(level LogLevel) *Logger {
	return &Logger{out: log.Default(), level: level}
}

// Level returns the configured level
func (l *Logger) Level() LogLevel {
	return l.level
}

// Enabled reports whether messages at level would be written
func (l *Logger) Enabled(level LogLevel) bool {
	return l.level <= level
}

func (l *Logger) logf(level LogLevel, format string, args ...any) {
	if !l.Enabled(level) {
		return
	}
	l.out.Printf(format, args...)
}

// Debugf logs at debug level
func (l *Logger) Debugf(format string, args ...any) { l.logf(LogLevelDebug, format, args...) }

// Infof logs at info level
func (l *Logger) Infof(format string, args ...any) { l.logf(LogLevelInfo, format, args...) }

// Warnf logs at warning level
func (l *Logger) Warnf(format string, args ...any) { l.logf(LogLevelWarning, format, args...) }

// Errorf logs at error level
func (l *Logger) Errorf(format string, args ...any) { l.logf(LogLevelError, format, args...) }
