package log

import (
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync"
)

// ConsoleOutput writes formatted entries to stderr (warnings and above) or
// stdout.
type ConsoleOutput struct {
	mu sync.Mutex
	// Writer overrides the default stdout/stderr split when set.
	Writer io.Writer
}

// NewConsoleOutput creates a ConsoleOutput with the default stream split.
func NewConsoleOutput() *ConsoleOutput { return &ConsoleOutput{} }

// Write implements Output.
func (o *ConsoleOutput) Write(entry *Entry, formatted []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	w := o.Writer
	if w == nil {
		if entry.Level >= WarnLevel {
			w = os.Stderr
		} else {
			w = os.Stdout
		}
	}
	_, err := w.Write(formatted)
	return err
}

// Close implements Output.
func (o *ConsoleOutput) Close() error { return nil }

// WriterOutput writes formatted entries to an arbitrary io.Writer. Used by
// tests and file-backed logging.
type WriterOutput struct {
	mu sync.Mutex
	W  io.Writer
}

// Write implements Output.
func (o *WriterOutput) Write(_ *Entry, formatted []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, err := o.W.Write(formatted)
	return err
}

// Close implements Output.
func (o *WriterOutput) Close() error { return nil }

// RedirectStdLog routes the standard library's global logger (used by Pebble
// among others) through the given Logger at info level.
func RedirectStdLog(logger Logger) {
	stdlog.SetFlags(0)
	stdlog.SetOutput(stdLogWriter{logger: logger})
}

type stdLogWriter struct {
	logger Logger
}

func (w stdLogWriter) Write(p []byte) (int, error) {
	msg := strings.TrimRight(string(p), "\n")
	if msg != "" {
		w.logger.Info(msg, Component("stdlog"))
	}
	return len(p), nil
}
