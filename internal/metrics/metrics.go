// Package metrics implements the controller's two-tier instrumentation:
// a live tier of counters/histograms emitted inline on every iteration and
// every object-handling, and a cached tier of freshness-bounded gauges
// that go stale (and stop scraping) once a controller hasn't completed an
// iteration recently.
package metrics

import "time"

// StateCount is one (state, substate) population count, used to publish
// the cached per-state census at the end of an iteration.
type StateCount struct {
	State    string
	Substate string
	Count    int
}

// Emitter is the interface the engine calls for every metric it emits.
// Selection between the real Prometheus-backed emitter and NoOp is
// configuration-driven; the core never branches on whether metrics are
// enabled.
type Emitter interface {
	// ObserveIterationLatency records one iteration's total wall time for
	// controllerType.
	ObserveIterationLatency(controllerType string, d time.Duration)

	// ObserveStateEntered increments the state_entered counter for
	// (state, substate) under controllerType.
	ObserveStateEntered(controllerType, state, substate string)

	// ObserveStateExited increments the state_exited counter for
	// (state, substate) under controllerType.
	ObserveStateExited(controllerType, state, substate string)

	// ObserveTimeInState records how long an object spent at
	// (state, substate) before transitioning to (nextState, nextSubstate).
	ObserveTimeInState(controllerType, state, substate, nextState, nextSubstate string, d time.Duration)

	// ObserveHandlerLatency records one object handler invocation's
	// latency while the object was at (state, substate).
	ObserveHandlerLatency(controllerType, state, substate string, d time.Duration)

	// ObserveError increments the per-state error counter for errorKind
	// (plus a synthetic "any" aggregate), dimensioned by (state, substate).
	ObserveError(controllerType, state, substate, errorKind string)

	// PublishStateCensus atomically replaces the cached per-state
	// population and above-SLA counts for controllerType, stamped with
	// recordedAt. Called once at the end of every iteration that actually
	// ran (not on lock-busy ticks). Readers treat the published snapshot
	// as stale once it is older than the configured freshness window.
	PublishStateCensus(controllerType string, counts, aboveSLA []StateCount, recordedAt time.Time)
}

// NoOp is the zero-overhead Emitter used when metrics collection is
// disabled. Every method is a no-op.
type NoOp struct{}

var _ Emitter = NoOp{}

func (NoOp) ObserveIterationLatency(string, time.Duration)                           {}
func (NoOp) ObserveStateEntered(string, string, string)                              {}
func (NoOp) ObserveStateExited(string, string, string)                               {}
func (NoOp) ObserveTimeInState(string, string, string, string, string, time.Duration) {}
func (NoOp) ObserveHandlerLatency(string, string, string, time.Duration)              {}
func (NoOp) ObserveError(string, string, string, string)                              {}
func (NoOp) PublishStateCensus(string, []StateCount, []StateCount, time.Time)         {}
