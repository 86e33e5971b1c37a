package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for the state controller's spans. These follow the
// dimensions the iteration and object spans are required to carry.
const (
	AttrControllerType      = "controller.type"
	AttrIterationID         = "controller.iteration_id"
	AttrIterationSpanID     = "controller.iteration_span_id"
	AttrNumEnqueuedObjects  = "controller.num_enqueued_objects"
	AttrNumErrors           = "controller.num_errors"
	AttrStatesJSON          = "controller.states_json"
	AttrStatesAboveSLAJSON  = "controller.states_above_sla_json"
	AttrErrorTypesJSON      = "controller.error_types_json"
	AttrSkippedIteration    = "controller.skipped_iteration"
	AttrSQLQueries          = "controller.sql_queries"
	AttrSQLTotalRows        = "controller.sql_total_rows"

	AttrObjectID   = "object.id"
	AttrState      = "object.state"
	AttrSubstate   = "object.substate"
	AttrNextState  = "object.next_state"
	AttrOutcome    = "object.outcome"
	AttrErrorKind  = "object.error_kind"
	AttrInStateMs  = "object.in_state_ms"
)

// ControllerType returns an attribute for the reconciled object type.
func ControllerType(t string) attribute.KeyValue {
	return attribute.String(AttrControllerType, t)
}

// IterationID returns an attribute for the monotonic iteration id.
func IterationID(id int64) attribute.KeyValue {
	return attribute.Int64(AttrIterationID, id)
}

// IterationSpanID returns an attribute for the random per-iteration
// correlation id, independent of the persisted iteration id, attached so
// logs emitted before the DB iteration id is known can still be
// correlated to this span.
func IterationSpanID(id string) attribute.KeyValue {
	return attribute.String(AttrIterationSpanID, id)
}

// NumEnqueuedObjects returns an attribute for the size of one iteration's
// drained queue.
func NumEnqueuedObjects(n int) attribute.KeyValue {
	return attribute.Int(AttrNumEnqueuedObjects, n)
}

// NumErrors returns an attribute for the total error count in an iteration.
func NumErrors(n int) attribute.KeyValue {
	return attribute.Int(AttrNumErrors, n)
}

// StatesJSON returns an attribute carrying a `{state: count}` JSON map.
func StatesJSON(json string) attribute.KeyValue {
	return attribute.String(AttrStatesJSON, json)
}

// StatesAboveSLAJSON returns an attribute carrying a `{state: count}` JSON
// map of objects whose in-state duration exceeded their SLA this iteration.
func StatesAboveSLAJSON(json string) attribute.KeyValue {
	return attribute.String(AttrStatesAboveSLAJSON, json)
}

// ErrorTypesJSON returns an attribute carrying a `{state: {error: count}}`
// JSON map.
func ErrorTypesJSON(json string) attribute.KeyValue {
	return attribute.String(AttrErrorTypesJSON, json)
}

// SkippedIteration returns an attribute marking an iteration that never ran
// because the work lock was held by another replica.
func SkippedIteration(skipped bool) attribute.KeyValue {
	return attribute.Bool(AttrSkippedIteration, skipped)
}

// SQLQueries returns an attribute for the number of SQL statements issued
// during an iteration.
func SQLQueries(n int64) attribute.KeyValue {
	return attribute.Int64(AttrSQLQueries, n)
}

// SQLTotalRows returns an attribute for the number of rows affected across
// an iteration's SQL statements.
func SQLTotalRows(n int64) attribute.KeyValue {
	return attribute.Int64(AttrSQLTotalRows, n)
}

// ObjectID returns an attribute for the object under reconciliation.
func ObjectID(id string) attribute.KeyValue {
	return attribute.String(AttrObjectID, id)
}

// State returns an attribute for a controller state name.
func State(state string) attribute.KeyValue {
	return attribute.String(AttrState, state)
}

// Substate returns an attribute for a dimensioning substate name.
func Substate(substate string) attribute.KeyValue {
	return attribute.String(AttrSubstate, substate)
}

// NextState returns an attribute for a requested transition target.
func NextState(state string) attribute.KeyValue {
	return attribute.String(AttrNextState, state)
}

// Outcome returns an attribute for a handler outcome kind.
func Outcome(kind string) attribute.KeyValue {
	return attribute.String(AttrOutcome, kind)
}

// ErrorKind returns an attribute for a StateHandlerError taxonomy label.
func ErrorKind(kind string) attribute.KeyValue {
	return attribute.String(AttrErrorKind, kind)
}

// InStateMs returns an attribute for time spent in the current state.
func InStateMs(ms float64) attribute.KeyValue {
	return attribute.Float64(AttrInStateMs, ms)
}

// StartIterationSpan starts the root span for one controller iteration.
func StartIterationSpan(ctx context.Context, controllerType string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{ControllerType(controllerType)}, attrs...)
	return StartSpan(ctx, "controller.iteration", trace.WithAttributes(allAttrs...))
}

// StartObjectSpan starts a child span for handling one object, inheriting
// the iteration span from ctx.
func StartObjectSpan(ctx context.Context, controllerType, objectID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{ControllerType(controllerType), ObjectID(objectID)}, attrs...)
	return StartSpan(ctx, "controller.handle_object", trace.WithAttributes(allAttrs...))
}
