// Package logging provides structured logging and trace-ID propagation for
// the gateway. Components get named loggers; trace IDs travel through
// context so that every log line and error envelope produced while serving
// a request can be correlated.
package logging

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type traceIDKey struct{}

// NewTraceID generates a fresh trace ID.
func NewTraceID() string {
	return uuid.NewString()
}

// WithTraceID attaches a trace ID to the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

// TraceIDFrom returns the trace ID carried by ctx, or "".
func TraceIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(traceIDKey{}).(string); ok {
		return id
	}
	return ""
}

// Logger wraps zerolog with component naming and trace-aware helpers.
type Logger struct {
	zl zerolog.Logger
}

// New creates a component logger writing JSON to w.
func New(component string, w io.Writer) *Logger {
	if w == nil {
		w = os.Stderr
	}
	zl := zerolog.New(w).With().
		Timestamp().
		Str("component", component).
		Logger()
	return &Logger{zl: zl}
}

// NewDefault creates a component logger writing to stderr.
func NewDefault(component string) *Logger {
	return New(component, os.Stderr)
}

// Nop returns a logger that discards everything. Used in tests.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// Named returns a child logger for a sub-component.
func (l *Logger) Named(component string) *Logger {
	return &Logger{zl: l.zl.With().Str("component", component).Logger()}
}

func (l *Logger) event(ctx context.Context, ev *zerolog.Event, fields map[string]any) *zerolog.Event {
	if id := TraceIDFrom(ctx); id != "" {
		ev = ev.Str("trace_id", id)
	}
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	return ev
}

// Debug logs at debug level with optional fields.
func (l *Logger) Debug(ctx context.Context, msg string, fields map[string]any) {
	l.event(ctx, l.zl.Debug(), fields).Msg(msg)
}

// Info logs at info level with optional fields.
func (l *Logger) Info(ctx context.Context, msg string, fields map[string]any) {
	l.event(ctx, l.zl.Info(), fields).Msg(msg)
}

// Warn logs at warn level with optional fields.
func (l *Logger) Warn(ctx context.Context, msg string, fields map[string]any) {
	l.event(ctx, l.zl.Warn(), fields).Msg(msg)
}

// Error logs at error level with optional fields.
func (l *Logger) Error(ctx context.Context, msg string, err error, fields map[string]any) {
	ev := l.event(ctx, l.zl.Error(), fields)
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Msg(msg)
}

// LogRequest records one served HTTP request.
func (l *Logger) LogRequest(ctx context.Context, method, path string, status int, duration time.Duration) {
	l.event(ctx, l.zl.Info(), nil).
		Str("method", method).
		Str("path", path).
		Int("status", status).
		Dur("duration", duration).
		Msg("request")
}
