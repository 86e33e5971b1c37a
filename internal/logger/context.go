package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds iteration-scoped logging context: which controller type,
// which iteration, which object (if any) a log line belongs to.
type LogContext struct {
	TraceID       string // OpenTelemetry trace ID
	SpanID        string // OpenTelemetry span ID
	ControllerType string // e.g. "managedhost"
	IterationID   int64  // monotonic iteration id, 0 if not yet assigned
	ObjectID      string // object being handled, empty at iteration scope
	StartTime     time.Time
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

// NewLogContext creates a new LogContext for a controller type.
func NewLogContext(controllerType string) *LogContext {
	return &LogContext{
		ControllerType: controllerType,
		StartTime:      time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	return &LogContext{
		TraceID:        lc.TraceID,
		SpanID:         lc.SpanID,
		ControllerType: lc.ControllerType,
		IterationID:    lc.IterationID,
		ObjectID:       lc.ObjectID,
		StartTime:      lc.StartTime,
	}
}

// WithIteration returns a copy with the iteration id set
func (lc *LogContext) WithIteration(iterationID int64) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.IterationID = iterationID
	}
	return clone
}

// WithObject returns a copy with the object id set
func (lc *LogContext) WithObject(objectID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.ObjectID = objectID
	}
	return clone
}

// WithTrace returns a copy with trace info set
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TraceID = traceID
		clone.SpanID = spanID
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
