// Package controller implements the generic per-object-type reconciliation
// engine: enumerate, enqueue, drain, dispatch with bounded concurrency,
// route handler outcomes through the transition engine, evaluate per-state
// SLAs, and emit metrics/spans/hooks along the way.
//
// The engine itself never touches a concrete object type. It is
// parameterized by the controller state's value type, the observed
// snapshot type, and an arbitrary services bundle the handler needs; a
// caller instantiates one Controller per object type it wants reconciled
// (see pkg/fleet/managedhost for a worked example).
package controller

import "time"

// ObjectID identifies one reconciled object within a controller type.
type ObjectID string

// Version carries the monotonic counter and the wall-clock instant the
// current value was entered. Controller state writes are optimistic: a
// write succeeds only if the stored version matches the version the
// handler observed when it made its decision.
type Version struct {
	Counter int64
	Since   time.Time
}

// Next returns the version that should be stored after a successful
// transition away from v, with since set to now.
func (v Version) Next(now time.Time) Version {
	return Version{Counter: v.Counter + 1, Since: now}
}

// InStateDuration returns how long the object has been at this version as
// of now.
func (v Version) InStateDuration(now time.Time) time.Duration {
	return now.Sub(v.Since)
}

// ControllerState is the controller's authoritative view of one object:
// a type-specific value plus the version it was last written at. Distinct
// from the object's observed snapshot, which the controller only reads.
type ControllerState[V any] struct {
	Value   V
	Version Version
}

// QueuedObject is one row of the per-iteration fan-out list: an object id
// tagged with the iteration that enqueued it. Not a durable work queue —
// loss between enumeration and drain is tolerated because the next
// iteration re-enumerates.
type QueuedObject struct {
	ObjectID    ObjectID
	IterationID int64
}

// Iteration is one monotonically-numbered pass of enumerate-enqueue-drain-
// dispatch for one controller type.
type Iteration struct {
	ID        int64
	StartedAt time.Time
}

// HookEvent is the ephemeral payload broadcast to in-process subscribers
// after a Transition outcome commits. PreviousState and NewState are the
// metric state names (IOAdapter.MetricStateNames) of the state before and
// after the transition; when the object had no prior recorded state,
// PreviousState names the initial state the adapter synthesized.
type HookEvent struct {
	ObjectID      ObjectID
	PreviousState string
	NewState      string
	Timestamp     time.Time
}

// StateSLA is the per-state-value SLA a type's I/O adapter reports: the
// maximum duration an object may remain at that value before the engine
// promotes a Wait/DoNothing outcome into a TimeInStateAboveSla error.
type StateSLA struct {
	MaxTimeInState time.Duration
	Infinite       bool
}

// AboveSLA reports whether inStateDuration exceeds this SLA.
func (s StateSLA) AboveSLA(inStateDuration time.Duration) bool {
	if s.Infinite {
		return false
	}
	return inStateDuration > s.MaxTimeInState
}
