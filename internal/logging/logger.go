// Package logging provides the loader's stderr logger with redaction
// support. Secret values must never reach a log line; wrap anything
// potentially sensitive in Secret, or scrub known values with Redact.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Logger writes leveled, optionally colored lines to stderr.
type Logger struct {
	debug   bool
	noColor bool
	out     io.Writer
}

// New creates a logger. Debug lines are suppressed unless debug is set.
func New(debug, noColor bool) *Logger {
	return &Logger{debug: debug, noColor: noColor, out: os.Stderr}
}

// NewWithWriter creates a logger writing to w. Used by tests.
func NewWithWriter(w io.Writer, debug bool) *Logger {
	return &Logger{debug: debug, noColor: true, out: w}
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...interface{}) {
	l.emit("\033[32m✓\033[0m", "✓", format, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.emit("\033[33m⚠\033[0m", "⚠", format, args...)
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...interface{}) {
	l.emit("\033[31m✗\033[0m", "✗", format, args...)
}

// Debug logs a debug message if debug mode is enabled.
func (l *Logger) Debug(format string, args ...interface{}) {
	if !l.debug {
		return
	}
	l.emit("\033[36m[DEBUG]\033[0m", "[DEBUG]", format, args...)
}

func (l *Logger) emit(colored, plain, format string, args ...interface{}) {
	prefix := colored
	if l.noColor {
		prefix = plain
	}
	fmt.Fprintf(l.out, "%s %s\n", prefix, fmt.Sprintf(format, args...))
}

// Secret wraps a value that must be redacted when formatted. Both %v and
// %#v render as [REDACTED].
type Secret string

func (s Secret) String() string   { return "[REDACTED]" }
func (s Secret) GoString() string { return "[REDACTED]" }

// Redact replaces occurrences of known secret values in s with
// [REDACTED]. Values of three characters or fewer are left alone to
// avoid mangling unrelated text.
func Redact(s string, secrets []string) string {
	result := s
	for _, secret := range secrets {
		if len(secret) > 3 {
			result = strings.ReplaceAll(result, secret, "[REDACTED]")
		}
	}
	return result
}

// Mask renders a value for display without revealing it: short values
// become all asterisks, longer values keep a few boundary characters.
func Mask(value string) string {
	switch {
	case len(value) == 0:
		return "(empty)"
	case len(value) <= 3:
		return strings.Repeat("*", len(value))
	case len(value) <= 8:
		return value[:1] + strings.Repeat("*", len(value)-2) + value[len(value)-1:]
	default:
		return value[:3] + strings.Repeat("*", 8) + value[len(value)-2:]
	}
}
