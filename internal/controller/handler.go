package controller

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// ObjectMetrics is the per-object metrics slot a handler may use to record
// domain-specific measurements alongside the engine's own instrumentation.
// The no-op emitter is used when metrics are disabled.
type ObjectMetrics interface {
	ObserveHandlerLatency(state, substate string, d time.Duration)
}

// StateHandlerContext is the per-invocation handle passed to a handler: a
// caller-supplied services bundle plus a metrics slot scoped to the
// current object. It must not be retained past the handler call that
// received it.
type StateHandlerContext[Services any] struct {
	Services Services
	Metrics  ObjectMetrics
}

// StateHandler is the pure decision function a controller type supplies.
// It is invoked with a live transaction; any durable mutation it performs
// (other than the controller-state write the engine itself issues for a
// Transition outcome) must happen within tx, so that a rollback discards
// it along with everything else.
type StateHandler[V any, S any, Services any] interface {
	HandleObjectState(
		ctx context.Context,
		tx *gorm.DB,
		objectID ObjectID,
		snapshot S,
		currentState V,
		hctx *StateHandlerContext[Services],
	) HandlerOutcome[V]
}

// StateHandlerFunc adapts a plain function to StateHandler.
type StateHandlerFunc[V any, S any, Services any] func(
	ctx context.Context,
	tx *gorm.DB,
	objectID ObjectID,
	snapshot S,
	currentState V,
	hctx *StateHandlerContext[Services],
) HandlerOutcome[V]

// HandleObjectState implements StateHandler.
func (f StateHandlerFunc[V, S, Services]) HandleObjectState(
	ctx context.Context,
	tx *gorm.DB,
	objectID ObjectID,
	snapshot S,
	currentState V,
	hctx *StateHandlerContext[Services],
) HandlerOutcome[V] {
	return f(ctx, tx, objectID, snapshot, currentState, hctx)
}

// PersistedOutcome is what the engine asks the I/O adapter to write after
// routing a handler outcome through the transition engine. Deleted
// outcomes are never persisted (see the transition table in §4.5); the
// adapter is simply never called for them.
type PersistedOutcome struct {
	Kind           OutcomeKind
	HandlerOutcome string
	ErrorKind      ErrorKind
	ErrorMessage   string
	RecordedAt     time.Time
}

// IOAdapter is the per-type capability set the engine consumes to read and
// write one object type's state. Implementations own the SQL/ORM
// particulars; the engine only calls these seven methods.
type IOAdapter[V any, S any] interface {
	// ListObjects returns the ids of every object currently eligible for
	// reconciliation ("not soft-deleted and within this controller's
	// scope"). Runs in the same transaction as the subsequent enqueue.
	ListObjects(ctx context.Context, tx *gorm.DB) ([]ObjectID, error)

	// LoadObjectState loads the observed snapshot for id. A nil result
	// with a nil error means the snapshot is missing (MissingData).
	LoadObjectState(ctx context.Context, tx *gorm.DB, id ObjectID) (*S, error)

	// LoadControllerState loads the current controller state for id,
	// synthesizing an initial value if none has been persisted yet.
	LoadControllerState(ctx context.Context, tx *gorm.DB, id ObjectID, snapshot S) (ControllerState[V], error)

	// PersistControllerState writes newValue as the new controller state
	// for id, conditioned on the stored version still equaling
	// prevVersion. Implementations must report OptimisticConflict (via
	// NewOptimisticConflictError) when the predicate matches zero rows.
	PersistControllerState(ctx context.Context, tx *gorm.DB, id ObjectID, prevVersion Version, newValue V, newVersion Version) error

	// PersistOutcome writes the diagnostic outcome row for id. Never
	// called for a Deleted outcome.
	PersistOutcome(ctx context.Context, tx *gorm.DB, id ObjectID, outcome PersistedOutcome) error

	// StateSLA returns the SLA configured for value.
	StateSLA(value V) StateSLA

	// MetricStateNames returns the (state, substate) dimension pair used
	// to label metrics for value.
	MetricStateNames(value V) (state string, substate string)
}
