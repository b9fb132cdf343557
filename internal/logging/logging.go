// Package logging adapts logiface/stumpy into the small, typed logging
// surface the rest of this daemon depends on, replacing the kind of
// fragile %s-scanning variadic logger spec.md §9 calls out for
// re-architecture.
//
// Usage mirrors the teacher's own example
// (logiface-stumpy/example_test.go):
//
//	log := logging.New(os.Stderr)
//	log.Info("plugin loaded", logging.Str("slot", "hellodemo"))
package logging

import (
	"io"
	"os"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Field is one typed key/value pair attached to a log line. Unlike the
// source daemon's positional %s substitution, a Field always carries its
// own type and cannot be mismatched against the format string.
type Field struct {
	onBuilder func(*logiface.Builder[*stumpy.Event])
	onContext func(*logiface.Context[*stumpy.Event])
}

// Str attaches a string field.
func Str(key, val string) Field {
	return Field{
		onBuilder: func(b *logiface.Builder[*stumpy.Event]) { b.Str(key, val) },
		onContext: func(c *logiface.Context[*stumpy.Event]) { c.Str(key, val) },
	}
}

// Int attaches an integer field.
func Int(key string, val int) Field {
	return Field{
		onBuilder: func(b *logiface.Builder[*stumpy.Event]) { b.Int(key, val) },
		onContext: func(c *logiface.Context[*stumpy.Event]) { c.Int(key, val) },
	}
}

// Err attaches an error field.
func Err(err error) Field {
	return Field{
		onBuilder: func(b *logiface.Builder[*stumpy.Event]) { b.Err(err) },
		onContext: func(c *logiface.Context[*stumpy.Event]) { c.Err(err) },
	}
}

// Bool attaches a boolean field.
func Bool(key string, val bool) Field {
	return Field{
		onBuilder: func(b *logiface.Builder[*stumpy.Event]) { b.Bool(key, val) },
		onContext: func(c *logiface.Context[*stumpy.Event]) { c.Bool(key, val) },
	}
}

// Logger is the structured logging surface used throughout the daemon.
// Every method is safe to call with zero fields.
type Logger struct {
	l *logiface.Logger[*stumpy.Event]
}

// New constructs a Logger writing newline-delimited JSON to w.
func New(w io.Writer) *Logger {
	if w == nil {
		w = os.Stderr
	}
	return &Logger{
		l: stumpy.L.New(stumpy.WithStumpy(stumpy.WithWriter(w))),
	}
}

// NewDiscard constructs a Logger that drops every line; used by tests and
// by plug-ins that have not been given a slot logger yet.
func NewDiscard() *Logger {
	return New(io.Discard)
}

func (log *Logger) log(b *logiface.Builder[*stumpy.Event], msg string, fields []Field) {
	for _, f := range fields {
		f.onBuilder(b)
	}
	b.Log(msg)
}

// Debug logs at debug level.
func (log *Logger) Debug(msg string, fields ...Field) { log.log(log.l.Debug(), msg, fields) }

// Info logs at informational level.
func (log *Logger) Info(msg string, fields ...Field) { log.log(log.l.Info(), msg, fields) }

// Warn logs at warning level.
func (log *Logger) Warn(msg string, fields ...Field) { log.log(log.l.Warning(), msg, fields) }

// Error logs at error level.
func (log *Logger) Error(msg string, fields ...Field) { log.log(log.l.Err(), msg, fields) }

// Fatal logs at emergency level. It does not itself terminate the
// process; callers that need to exit do so explicitly after logging, so
// that tests can observe the log line without killing the test binary.
func (log *Logger) Fatal(msg string, fields ...Field) { log.log(log.l.Emerg(), msg, fields) }

// With returns a child Logger whose every line carries the given fields,
// mirroring logiface's Context/Clone chaining.
func (log *Logger) With(fields ...Field) *Logger {
	ctx := log.l.Clone()
	for _, f := range fields {
		f.onContext(ctx)
	}
	return &Logger{l: ctx.Logger()}
}

// reactorLogger adapts Logger to the minimal, field-less interface that
// internal/reactor depends on structurally, so reactor need not import
// this package.
type reactorLogger struct{ l *Logger }

func (r reactorLogger) Warn(msg string)  { r.l.Warn(msg) }
func (r reactorLogger) Error(msg string) { r.l.Error(msg) }

// ReactorLogger returns an adapter suitable for reactor.WithLogger.
func (log *Logger) ReactorLogger() interface {
	Warn(string)
	Error(string)
} {
	return reactorLogger{l: log}
}
