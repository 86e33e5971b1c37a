package logger

import (
	"encoding/hex"
	"log/slog"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements for log aggregation and querying.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Controller & Iteration
	// ========================================================================
	KeyControllerType = "controller_type" // object type this controller reconciles
	KeyIterationID    = "iteration_id"    // monotonic iteration id
	KeyObjectID       = "object_id"       // object under reconciliation

	// ========================================================================
	// State & Transitions
	// ========================================================================
	KeyState         = "state"          // current ControllerState value name
	KeySubstate      = "substate"       // dimensioning substate name
	KeyNextState     = "next_state"     // requested transition target
	KeyVersion       = "version"        // controller state version counter
	KeyInStateMs     = "in_state_ms"    // duration spent in current state, ms

	// ========================================================================
	// Outcomes & Errors
	// ========================================================================
	KeyOutcome    = "outcome"     // Transition, Wait, DoNothing, Deleted, Err
	KeyErrorKind  = "error_kind"  // StateHandlerError taxonomy label
	KeyError      = "error"      // error message
	KeyReason     = "reason"     // handler-supplied reason string

	// ========================================================================
	// Work lock
	// ========================================================================
	KeyLockKey = "lock_key" // work-lock key (controller type)

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // operation duration in milliseconds
	KeyAttempt    = "attempt"     // retry attempt number
	KeyHandle     = "handle"      // opaque binary handle, hex-encoded
)

// Handle returns a slog.Attr carrying an opaque binary handle as lowercase hex
func Handle(h []byte) slog.Attr {
	return slog.String(KeyHandle, hex.EncodeToString(h))
}

// TraceID returns a slog.Attr for OpenTelemetry trace ID
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for OpenTelemetry span ID
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// ControllerType returns a slog.Attr for the controller's object type
func ControllerType(t string) slog.Attr {
	return slog.String(KeyControllerType, t)
}

// IterationID returns a slog.Attr for the iteration id
func IterationID(id int64) slog.Attr {
	return slog.Int64(KeyIterationID, id)
}

// ObjectID returns a slog.Attr for the object id
func ObjectID(id string) slog.Attr {
	return slog.String(KeyObjectID, id)
}

// State returns a slog.Attr for a controller state name
func State(state string) slog.Attr {
	return slog.String(KeyState, state)
}

// Substate returns a slog.Attr for a dimensioning substate name
func Substate(substate string) slog.Attr {
	return slog.String(KeySubstate, substate)
}

// NextState returns a slog.Attr for the requested transition target
func NextState(state string) slog.Attr {
	return slog.String(KeyNextState, state)
}

// Version returns a slog.Attr for a controller state version counter
func Version(v int64) slog.Attr {
	return slog.Int64(KeyVersion, v)
}

// InStateMs returns a slog.Attr for time spent in the current state
func InStateMs(ms float64) slog.Attr {
	return slog.Float64(KeyInStateMs, ms)
}

// Outcome returns a slog.Attr for a handler outcome kind
func Outcome(kind string) slog.Attr {
	return slog.String(KeyOutcome, kind)
}

// ErrorKind returns a slog.Attr for a StateHandlerError taxonomy label
func ErrorKind(kind string) slog.Attr {
	return slog.String(KeyErrorKind, kind)
}

// Reason returns a slog.Attr for a handler-supplied reason string
func Reason(reason string) slog.Attr {
	return slog.String(KeyReason, reason)
}

// LockKey returns a slog.Attr for a work-lock key
func LockKey(key string) slog.Attr {
	return slog.String(KeyLockKey, key)
}

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Attempt returns a slog.Attr for retry attempt number
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
