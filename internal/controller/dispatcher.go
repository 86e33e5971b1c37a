package controller

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"
	"gorm.io/gorm"

	"github.com/nvidia/fleet-state-controller/internal/logger"
	"github.com/nvidia/fleet-state-controller/internal/metrics"
	"github.com/nvidia/fleet-state-controller/internal/telemetry"
)

// dispatchResult is what handleOne reports back for one object, used by
// the iteration driver to build the per-state census and the iteration
// span's aggregate attributes.
type dispatchResult struct {
	objectID  ObjectID
	state     string
	substate  string
	nextState string
	outcome   OutcomeKind
	errorKind ErrorKind // empty unless outcome == OutcomeError
	aboveSLA  bool

	// pendingHook is set by commitTransition and fired by handleWithinTransaction
	// only after the surrounding db.Transaction call reports a successful commit.
	pendingHook *HookEvent
}

// dispatcher fans a drained queue out across a bounded pool of workers,
// each handling one object within its own transaction, and routes the
// handler's outcome through the commit/rollback/persist table in one
// place so every controller type gets identical semantics.
type dispatcher[V any, S any, Services any] struct {
	controllerType        string
	db                     *gorm.DB
	adapter                IOAdapter[V, S]
	handler                StateHandler[V, S, Services]
	services               Services
	emitter                metrics.Emitter
	hooks                  *HookBus
	maxConcurrency         int64
	maxObjectHandlingTime  time.Duration
}

// run handles every object in objects concurrently (bounded by
// maxConcurrency), each under its own timeout, and returns one
// dispatchResult per object: results[i] belongs to objects[i]. Objects
// not launched because ctx was cancelled keep a zero dispatchResult.
func (d *dispatcher[V, S, Services]) run(ctx context.Context, iterationID int64, objects []ObjectID) []dispatchResult {
	sem := semaphore.NewWeighted(d.maxConcurrency)
	results := make([]dispatchResult, len(objects))

	for i, objectID := range objects {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Context was cancelled (shutdown); stop fanning out further
			// work and let already-launched goroutines finish below.
			break
		}
		go func(i int, objectID ObjectID) {
			defer sem.Release(1)
			results[i] = d.handleOne(ctx, iterationID, objectID)
		}(i, objectID)
	}

	// Acquire the full weight to block until every launched goroutine has
	// released, i.e. finished (or been skipped above).
	_ = sem.Acquire(context.Background(), d.maxConcurrency)
	sem.Release(d.maxConcurrency)

	return results
}

// handleOne loads one object's snapshot and controller state, invokes the
// handler under a per-object timeout within its own transaction, and
// routes the outcome through the commit/rollback/persist table.
func (d *dispatcher[V, S, Services]) handleOne(ctx context.Context, iterationID int64, objectID ObjectID) dispatchResult {
	ctx, span := telemetry.StartObjectSpan(ctx, d.controllerType, string(objectID))
	defer span.End()

	objectCtx, cancel := context.WithTimeout(ctx, d.maxObjectHandlingTime)
	defer cancel()

	started := time.Now()
	result := d.handleWithinTransaction(objectCtx, objectID)
	d.emitter.ObserveHandlerLatency(d.controllerType, result.state, result.substate, time.Since(started))

	span.SetAttributes(
		telemetry.State(result.state),
		telemetry.Substate(result.substate),
		telemetry.Outcome(result.outcome.String()),
	)
	if result.errorKind != "" {
		span.SetAttributes(telemetry.ErrorKind(string(result.errorKind)))
	}

	return result
}

// handleWithinTransaction implements the transition table in full: it
// opens a transaction, loads state, invokes the handler, and then either
// commits-and-persists, commits-with-no-outcome-row, or rolls back and
// persists a diagnostic error in a fresh transaction, depending on the
// outcome kind and the SLA check.
func (d *dispatcher[V, S, Services]) handleWithinTransaction(ctx context.Context, objectID ObjectID) dispatchResult {
	var result dispatchResult
	result.objectID = objectID

	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		snapshot, err := d.adapter.LoadObjectState(ctx, tx, objectID)
		if err != nil {
			return err
		}
		if snapshot == nil {
			return NewMissingDataError(objectID, "object_state")
		}

		controllerState, err := d.adapter.LoadControllerState(ctx, tx, objectID, *snapshot)
		if err != nil {
			return err
		}
		state, substate := d.adapter.MetricStateNames(controllerState.Value)
		result.state, result.substate = state, substate

		hctx := &StateHandlerContext[Services]{
			Services: d.services,
			Metrics:  objectMetricsAdapter{emitter: d.emitter, controllerType: d.controllerType},
		}

		outcome, err := d.invokeHandler(ctx, tx, objectID, *snapshot, controllerState.Value, hctx, state)
		if err != nil {
			return err
		}

		inStateDuration := controllerState.Version.InStateDuration(time.Now())
		sla := d.adapter.StateSLA(controllerState.Value)
		aboveSLA := EvaluateSLA(sla, inStateDuration)
		result.aboveSLA = aboveSLA

		switch outcome.Kind() {
		case OutcomeTransition:
			return d.commitTransition(ctx, tx, objectID, controllerState, outcome, &result)

		case OutcomeDeleted:
			result.outcome = OutcomeDeleted
			return nil

		case OutcomeWait, OutcomeDoNothing:
			if aboveSLA {
				return NewTimeInStateAboveSLAError(objectID, outcome.String())
			}
			result.outcome = outcome.Kind()
			result.nextState = state
			return d.adapter.PersistOutcome(ctx, tx, objectID, PersistedOutcome{
				Kind:           outcome.Kind(),
				HandlerOutcome: outcome.String(),
				RecordedAt:     time.Now(),
			})

		case OutcomeError:
			return outcome.Error()

		default:
			return NewHandlerError(objectID, "handler returned an unrecognized outcome")
		}
	})

	if err != nil {
		// A context-respecting handler that observes ctx already past its
		// per-object deadline returns a Wait/DoNothing outcome rather than
		// an error (e.g. Wait(ctx.Err())); the subsequent PersistOutcome
		// call inside the same transaction then fails because ctx is
		// already expired, surfacing here as an opaque store error rather
		// than a *StateHandlerError. Reclassify that case as the Timeout it
		// actually is, carrying the state captured before the handler ran.
		// A failure that already is a typed StateHandlerError (SLA,
		// optimistic conflict, missing data, ...) reflects real business
		// logic decided before the deadline mattered and is left alone.
		if _, isHandlerErr := err.(*StateHandlerError); !isHandlerErr && ctx.Err() != nil {
			err = NewTimeoutError(objectID, result.state)
		}
		d.handleError(ctx, objectID, err, &result)
		return result
	}

	if result.pendingHook != nil {
		d.hooks.Emit(*result.pendingHook)
	}

	return result
}

// invokeHandler calls the handler, recovering a panic into a PanicError so
// one misbehaving handler cannot take the whole iteration down.
func (d *dispatcher[V, S, Services]) invokeHandler(
	ctx context.Context,
	tx *gorm.DB,
	objectID ObjectID,
	snapshot S,
	currentState V,
	hctx *StateHandlerContext[Services],
	state string,
) (outcome HandlerOutcome[V], err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewPanicError(objectID, r)
		}
	}()

	if ctx.Err() != nil {
		return HandlerOutcome[V]{}, NewTimeoutError(objectID, state)
	}

	outcome = d.handler.HandleObjectState(ctx, tx, objectID, snapshot, currentState, hctx)
	return outcome, nil
}

// commitTransition performs the optimistic-CAS controller-state write and
// the outcome row write for a Transition outcome, emits the state-exited/
// entered/time-in-state metrics, and fires the hook bus once the caller's
// transaction actually commits.
func (d *dispatcher[V, S, Services]) commitTransition(
	ctx context.Context,
	tx *gorm.DB,
	objectID ObjectID,
	prev ControllerState[V],
	outcome HandlerOutcome[V],
	result *dispatchResult,
) error {
	next, _ := outcome.Next()
	now := time.Now()
	nextVersion := prev.Version.Next(now)

	nextState, nextSubstate := d.adapter.MetricStateNames(next)
	if nextState == result.state && nextSubstate == result.substate {
		logger.WarnCtx(ctx, "transition to current state",
			logger.ObjectID(string(objectID)), logger.State(nextState), logger.Substate(nextSubstate))
	}

	if err := d.adapter.PersistControllerState(ctx, tx, objectID, prev.Version, next, nextVersion); err != nil {
		return err
	}

	if err := d.adapter.PersistOutcome(ctx, tx, objectID, PersistedOutcome{
		Kind:           OutcomeTransition,
		HandlerOutcome: outcome.String(),
		RecordedAt:     now,
	}); err != nil {
		return err
	}

	result.outcome = OutcomeTransition
	result.nextState = nextState

	d.emitter.ObserveStateExited(d.controllerType, result.state, result.substate)
	d.emitter.ObserveStateEntered(d.controllerType, nextState, nextSubstate)
	d.emitter.ObserveTimeInState(
		d.controllerType, result.state, result.substate, nextState, nextSubstate,
		prev.Version.InStateDuration(now),
	)

	// Stashed rather than emitted here: this runs inside the transaction,
	// before it commits, and the hook bus must only see state changes that
	// actually landed.
	result.pendingHook = &HookEvent{
		ObjectID:      objectID,
		PreviousState: result.state,
		NewState:      nextState,
		Timestamp:     now,
	}
	return nil
}

// handleError classifies a failed attempt, records the error metric and
// span status, and — for every error kind, Timeout included — writes a
// diagnostic outcome row in a fresh transaction, since the handler's own
// transaction was already rolled back by the failing db.Transaction call.
// The diagnostic write runs under a context detached from the per-object
// deadline: ctx may already be expired (that's exactly the Timeout case
// this exists to record), and reusing it here would make the write fail
// too, silently dropping the one outcome row §4.5 requires even on error.
func (d *dispatcher[V, S, Services]) handleError(ctx context.Context, objectID ObjectID, err error, result *dispatchResult) {
	handlerErr, ok := err.(*StateHandlerError)
	if !ok {
		handlerErr = NewTransactionError(objectID, err)
	}

	result.outcome = OutcomeError
	result.errorKind = handlerErr.Kind

	d.emitter.ObserveError(d.controllerType, result.state, result.substate, string(handlerErr.Kind))
	logger.ErrorCtx(ctx, "object reconciliation failed",
		logger.ObjectID(string(objectID)),
		logger.State(result.state),
		logger.ErrorKind(string(handlerErr.Kind)),
		logger.Err(handlerErr),
	)

	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.maxObjectHandlingTime)
	defer cancel()

	persistErr := d.db.WithContext(persistCtx).Transaction(func(tx *gorm.DB) error {
		return d.adapter.PersistOutcome(persistCtx, tx, objectID, PersistedOutcome{
			Kind:           OutcomeError,
			HandlerOutcome: handlerErr.HandlerOutcome,
			ErrorKind:      handlerErr.Kind,
			ErrorMessage:   handlerErr.Message,
			RecordedAt:     time.Now(),
		})
	})
	if persistErr != nil {
		logger.ErrorCtx(ctx, "failed to persist diagnostic outcome",
			logger.ObjectID(string(objectID)),
			logger.Err(persistErr),
		)
	}
}

// objectMetricsAdapter narrows the engine-wide Emitter to the single
// method a handler is allowed to call, binding in the controller type so
// handlers never have to know it.
type objectMetricsAdapter struct {
	emitter        metrics.Emitter
	controllerType string
}

func (a objectMetricsAdapter) ObserveHandlerLatency(state, substate string, d time.Duration) {
	a.emitter.ObserveHandlerLatency(a.controllerType, state, substate, d)
}
