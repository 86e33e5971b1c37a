package controller

import "fmt"

// ErrorKind enumerates the taxonomy of errors the engine recognizes (see
// ERROR HANDLING DESIGN). Kind is also the Prometheus error label and the
// span error_types map key.
type ErrorKind string

const (
	// ErrorKindMissingData is a snapshot or referenced sibling not found;
	// recoverable on the next iteration.
	ErrorKindMissingData ErrorKind = "MissingData"

	// ErrorKindTimeout is a handler that exceeded the per-object deadline.
	ErrorKindTimeout ErrorKind = "Timeout"

	// ErrorKindTimeInStateAboveSLA is synthesized when a Wait/DoNothing
	// would otherwise succeed but the state's SLA is exceeded.
	ErrorKindTimeInStateAboveSLA ErrorKind = "TimeInStateAboveSla"

	// ErrorKindTransaction is an underlying store error.
	ErrorKindTransaction ErrorKind = "TransactionError"

	// ErrorKindOptimisticConflict is a stale controller-state version.
	ErrorKindOptimisticConflict ErrorKind = "OptimisticConflict"

	// ErrorKindHandler is any handler-raised typed error.
	ErrorKindHandler ErrorKind = "HandlerError"

	// ErrorKindLock is an iteration-level "not leader" signal, not
	// surfaced as an error metric.
	ErrorKindLock ErrorKind = "LockError"

	// ErrorKindPanic is a task that aborted abnormally.
	ErrorKindPanic ErrorKind = "Panic"
)

// StateHandlerError is the engine's typed error, persisted in the outcome
// row and reported through the error_types span attribute and the error
// metric label.
type StateHandlerError struct {
	Kind     ErrorKind
	ObjectID ObjectID

	// Message is a human-readable description; always set.
	Message string

	// MissingField is set only for ErrorKindMissingData.
	MissingField string

	// State is the metric state name (IOAdapter.MetricStateNames) of the
	// state the object was in when a Timeout fired; the substate and the
	// rest of the state value are not recorded. Set only for
	// ErrorKindTimeout.
	State string

	// HandlerOutcome is the formatted outcome ("Wait(\"reason\")") that
	// triggered a TimeInStateAboveSla promotion; set only for that kind.
	HandlerOutcome string
}

// Error implements the error interface.
func (e *StateHandlerError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// MetricLabel returns the Prometheus error label for this error.
func (e *StateHandlerError) MetricLabel() string {
	return string(e.Kind)
}

// NewMissingDataError reports that a snapshot or referenced field was not
// found for objectID; recoverable on the next iteration.
func NewMissingDataError(objectID ObjectID, missingField string) *StateHandlerError {
	return &StateHandlerError{
		Kind:         ErrorKindMissingData,
		ObjectID:     objectID,
		Message:      fmt.Sprintf("missing data: %s", missingField),
		MissingField: missingField,
	}
}

// NewTimeoutError reports that the handler for objectID exceeded
// max_object_handling_time while the object was in state.
func NewTimeoutError(objectID ObjectID, state string) *StateHandlerError {
	return &StateHandlerError{
		Kind:     ErrorKindTimeout,
		ObjectID: objectID,
		Message:  fmt.Sprintf("handler timed out in state %s", state),
		State:    state,
	}
}

// NewTimeInStateAboveSLAError reports that a Wait/DoNothing outcome was
// promoted to an error because the object's current state exceeded its
// configured SLA.
func NewTimeInStateAboveSLAError(objectID ObjectID, handlerOutcome string) *StateHandlerError {
	return &StateHandlerError{
		Kind:           ErrorKindTimeInStateAboveSLA,
		ObjectID:       objectID,
		Message:        "time in state exceeds configured SLA",
		HandlerOutcome: handlerOutcome,
	}
}

// NewTransactionError wraps an underlying store error for objectID.
func NewTransactionError(objectID ObjectID, cause error) *StateHandlerError {
	return &StateHandlerError{
		Kind:     ErrorKindTransaction,
		ObjectID: objectID,
		Message:  cause.Error(),
	}
}

// NewOptimisticConflictError reports that objectID's controller state was
// written at a newer version than the one the handler observed.
func NewOptimisticConflictError(objectID ObjectID) *StateHandlerError {
	return &StateHandlerError{
		Kind:     ErrorKindOptimisticConflict,
		ObjectID: objectID,
		Message:  "controller state version is stale",
	}
}

// NewHandlerError wraps a handler-raised typed error for objectID.
func NewHandlerError(objectID ObjectID, message string) *StateHandlerError {
	return &StateHandlerError{
		Kind:     ErrorKindHandler,
		ObjectID: objectID,
		Message:  message,
	}
}

// NewLockError reports that the work lock for controllerType could not be
// acquired this tick. This is the normal "another replica is leader" path,
// not an error metric.
func NewLockError(controllerType string) *StateHandlerError {
	return &StateHandlerError{
		Kind:    ErrorKindLock,
		Message: fmt.Sprintf("work lock busy for controller type %s", controllerType),
	}
}

// NewPanicError reports that the handler task for objectID aborted
// abnormally; the next iteration will retry.
func NewPanicError(objectID ObjectID, recovered any) *StateHandlerError {
	return &StateHandlerError{
		Kind:     ErrorKindPanic,
		ObjectID: objectID,
		Message:  fmt.Sprintf("handler panicked: %v", recovered),
	}
}
