package logging

import (
	"fmt"
	"io"
	"sync"
)

// Logger 接收组件的诊断输出。
// Logger receives diagnostic output from pilot components. Components hold a
// Logger instead of writing to the process stderr themselves, so tests can
// capture output and the update poller shares one writer with the main loop.
type Logger interface {
	Debugf(format string, args ...any)
	Warnf(format string, args ...any)
}

// New returns a Logger writing prefixed lines to w. Debug lines are dropped
// unless debug is set. Writes are serialized with a mutex because the update
// poller and the main loop may log to the same terminal.
func New(w io.Writer, debug bool) Logger {
	return &writerLogger{w: w, debug: debug}
}

// Nop returns a Logger that discards everything.
func Nop() Logger { return nopLogger{} }

type writerLogger struct {
	mu    sync.Mutex
	w     io.Writer
	debug bool
}

func (l *writerLogger) Debugf(format string, args ...any) {
	if !l.debug {
		return
	}
	l.printf("[DEBUG] "+format, args...)
}

func (l *writerLogger) Warnf(format string, args ...any) {
	l.printf("[WARN] "+format, args...)
}

func (l *writerLogger) printf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, format+"\n", args...)
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any) {}
func (nopLogger) Warnf(string, ...any)  {}
