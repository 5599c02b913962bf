package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds operation-scoped logging context that flows through a
// single host call, install, or cache lookup.
type LogContext struct {
	TraceID     string    // correlation ID for a single host call or CLI invocation
	Operation   string    // e.g. "fetch_novel", "install", "cache_lookup"
	ExtensionID string    // extension handling the current call, if any
	SourceID    string    // extension source slug, if any
	StartTime   time.Time // for duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext for the given operation
func NewLogContext(operation string) *LogContext {
	return &LogContext{
		Operation: operation,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	return &LogContext{
		TraceID:     lc.TraceID,
		Operation:   lc.Operation,
		ExtensionID: lc.ExtensionID,
		SourceID:    lc.SourceID,
		StartTime:   lc.StartTime,
	}
}

// WithExtension returns a copy with the extension ID set
func (lc *LogContext) WithExtension(extensionID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.ExtensionID = extensionID
	}
	return clone
}

// WithSource returns a copy with the source ID set
func (lc *LogContext) WithSource(sourceID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.SourceID = sourceID
	}
	return clone
}

// WithTrace returns a copy with the trace ID set
func (lc *LogContext) WithTrace(traceID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TraceID = traceID
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
