package jsonrpc

import (
	"fmt"
	"io"
	"os"
)

// Logger is the capability interface every component logs through, so
// callers (and tests) can swap in a recorder without a global logger.
type Logger interface {
	Errorf(format string, args ...interface{})
	Infof(format string, args ...interface{})
}

// StdLogger is a simple Logger that writes to an io.Writer.
type StdLogger struct {
	writer io.Writer
}

// Errorf writes a formatted error-level line.
func (l *StdLogger) Errorf(format string, args ...interface{}) {
	if l.writer != nil {
		fmt.Fprintf(l.writer, "ERROR "+format+"\n", args...)
	}
}

// Infof writes a formatted info-level line.
func (l *StdLogger) Infof(format string, args ...interface{}) {
	if l.writer != nil {
		fmt.Fprintf(l.writer, "INFO "+format+"\n", args...)
	}
}

// NewStdLogger creates a StdLogger writing to writer, defaulting to os.Stderr.
func NewStdLogger(writer io.Writer) *StdLogger {
	if writer == nil {
		writer = os.Stderr
	}
	return &StdLogger{writer: writer}
}

// DefaultLogger is the default Logger instance, writing to os.Stderr.
var DefaultLogger Logger = NewStdLogger(os.Stderr)
