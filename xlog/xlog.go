// Package xlog provides the structured, key-value logger used throughout
// roomcore. Every package that logs takes a Logger at construction time and
// falls back to Root() when none is given.
package xlog

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/go-logfmt/logfmt"
)

// Logger writes leveled, key-value structured log lines.
type Logger interface {
	Debug(msg string, ctx ...any)
	Info(msg string, ctx ...any)
	Warn(msg string, ctx ...any)
	Error(msg string, ctx ...any)

	// With returns a child logger that prepends ctx to every line.
	With(ctx ...any) Logger
}

type logger struct {
	out    io.Writer
	mu     *sync.Mutex
	static []any
}

var (
	rootMu  sync.Mutex
	rootLog Logger = &logger{out: os.Stderr, mu: &sync.Mutex{}}
)

// Root returns the process-wide default logger.
func Root() Logger {
	rootMu.Lock()
	defer rootMu.Unlock()
	return rootLog
}

// SetRoot replaces the process-wide default logger.
func SetRoot(l Logger) {
	rootMu.Lock()
	defer rootMu.Unlock()
	rootLog = l
}

// New returns a logger tagging every line with component=name.
func New(component string) Logger {
	return Root().With("component", component)
}

func (l *logger) With(ctx ...any) Logger {
	cp := make([]any, 0, len(l.static)+len(ctx))
	cp = append(cp, l.static...)
	cp = append(cp, ctx...)
	return &logger{out: l.out, mu: l.mu, static: cp}
}

func (l *logger) Debug(msg string, ctx ...any) { l.write("debug", msg, ctx) }
func (l *logger) Info(msg string, ctx ...any)  { l.write("info", msg, ctx) }
func (l *logger) Warn(msg string, ctx ...any)  { l.write("warn", msg, ctx) }
func (l *logger) Error(msg string, ctx ...any) { l.write("error", msg, ctx) }

func (l *logger) write(level, msg string, ctx []any) {
	pairs := make([]any, 0, 4+len(l.static)+len(ctx))
	pairs = append(pairs, "t", time.Now().UTC().Format(time.RFC3339Nano), "lvl", level, "msg", msg)
	pairs = append(pairs, l.static...)
	pairs = append(pairs, ctx...)

	enc := logfmt.NewEncoder(l.out)
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := 0; i+1 < len(pairs); i += 2 {
		if err := enc.EncodeKeyval(pairs[i], pairs[i+1]); err != nil {
			fmt.Fprintf(l.out, "logfmt encode error: %v\n", err)
			return
		}
	}
	enc.EndRecord()
}

// Discard is a Logger that drops every line; useful in tests.
var Discard Logger = &discard{}

type discard struct{}

func (discard) Debug(string, ...any) {}
func (discard) Info(string, ...any)  {}
func (discard) Warn(string, ...any)  {}
func (discard) Error(string, ...any) {}
func (d discard) With(...any) Logger { return d }
