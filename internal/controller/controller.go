package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/nvidia/fleet-state-controller/internal/logger"
	"github.com/nvidia/fleet-state-controller/internal/metrics"
	"github.com/nvidia/fleet-state-controller/internal/telemetry"
)

// Config is the per-controller process configuration recognized by the
// engine (spec §6's "Process configuration" options).
type Config struct {
	// IterationTime is the base period between iterations.
	IterationTime time.Duration

	// MaxConcurrency bounds the number of object handlers running at once
	// within one iteration.
	MaxConcurrency int64

	// MaxObjectHandlingTime is the hard per-object deadline.
	MaxObjectHandlingTime time.Duration

	// LockLeaseTTL is the work-lock lease duration requested on every
	// acquisition attempt.
	LockLeaseTTL time.Duration
}

// Controller is one instantiation of the reconciliation engine for a
// single object type: the controller state value type V, the observed
// snapshot type S, and the services bundle Services a handler needs.
// One Controller runs one Run loop per (controller type, replica).
type Controller[V any, S any, Services any] struct {
	controllerType string
	db             *gorm.DB
	lock           WorkLock
	journal        IterationJournal
	adapter        IOAdapter[V, S]
	handler        StateHandler[V, S, Services]
	services       Services
	emitter        metrics.Emitter
	hooks          *HookBus
	config         Config
}

// ControllerType reports the object type this instance reconciles, used
// by internal/runtime.Service to label logs and errors per controller.
func (c *Controller[V, S, Services]) ControllerType() string {
	return c.controllerType
}

// RunOnce attempts exactly one iteration and returns without sleeping,
// skipping the lifecycle loop entirely. Exposed for tests that need
// deterministic control over iteration timing instead of Run's jittered
// sleep loop.
func (c *Controller[V, S, Services]) RunOnce(ctx context.Context) (ran bool, err error) {
	return c.tick(ctx)
}

// Run drives the lifecycle loop (component I) until ctx is cancelled:
// acquire the work lock, run one iteration, sleep with jitter, repeat.
// Shutdown lets any in-flight object handlers finish (they are bounded by
// MaxObjectHandlingTime) before returning.
func (c *Controller[V, S, Services]) Run(ctx context.Context) error {
	for {
		started := time.Now()
		ran, err := c.tick(ctx)
		if err != nil {
			logger.ErrorCtx(ctx, "iteration failed",
				logger.ControllerType(c.controllerType),
				logger.Err(err),
			)
		}

		base := c.config.IterationTime
		ranFor := time.Since(started)

		var jitterWindow time.Duration
		if ran {
			jitterWindow = base / 3
		} else {
			jitterWindow = base / 5
		}
		jitter := randDuration(jitterWindow)

		sleepFor := base - ranFor
		if sleepFor < 0 {
			sleepFor = 0
		}
		sleepFor += jitter

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleepFor):
		}
	}
}

// randDuration returns a uniformly distributed duration in [0, max). A
// non-positive max returns zero; callers size max from configuration,
// which is assumed positive, but a zero-valued test config must not panic.
func randDuration(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(max)))
}

// tick runs exactly one iteration attempt and reports whether it actually
// ran (true) or was skipped because another replica holds the lock
// (false). A non-nil error means either the lock could not be acquired
// for a reason other than being busy, or the iteration itself failed
// after acquiring it; a skipped (lock-busy) iteration is never an error.
func (c *Controller[V, S, Services]) tick(ctx context.Context) (ran bool, err error) {
	// The iteration span id is independent of the DB-assigned iteration
	// id (not known until StartIteration succeeds below, and never
	// assigned at all for a skipped iteration) so that logs emitted
	// before the lock is acquired can still be correlated to this span.
	ctx, span := telemetry.StartIterationSpan(ctx, c.controllerType, telemetry.IterationSpanID(uuid.NewString()))
	defer span.End()

	lock, err := c.lock.TryAcquire(ctx, c.controllerType, c.config.LockLeaseTTL)
	if errors.Is(err, ErrLockBusy) {
		span.SetAttributes(telemetry.SkippedIteration(true))
		span.SetStatus(codes.Ok, "lock busy")
		return false, nil
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("acquire work lock: %w", err)
	}
	defer func() {
		if releaseErr := lock.Release(context.WithoutCancel(ctx)); releaseErr != nil {
			logger.ErrorCtx(ctx, "failed to release work lock",
				logger.ControllerType(c.controllerType), logger.Err(releaseErr))
		}
	}()

	span.SetAttributes(telemetry.SkippedIteration(false))

	if err := c.runIteration(ctx, lock); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return true, err
	}
	span.SetStatus(codes.Ok, "")
	return true, nil
}

// runIteration implements the enumerate → enqueue → drain → dispatch →
// metrics/spans/hooks sequence for one held lock.
func (c *Controller[V, S, Services]) runIteration(ctx context.Context, lock Lock) error {
	iterationStarted := time.Now()
	ctx, queryCounter := WithQueryCounter(ctx)

	iteration, err := c.journal.StartIteration(ctx, c.controllerType)
	if err != nil {
		return fmt.Errorf("start iteration: %w", err)
	}

	err = c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		objectIDs, err := c.adapter.ListObjects(ctx, tx)
		if err != nil {
			return fmt.Errorf("list objects: %w", err)
		}
		return c.journal.Enqueue(ctx, c.controllerType, iteration.ID, objectIDs)
	})
	if err != nil {
		return fmt.Errorf("enumerate and enqueue: %w", err)
	}

	queued, err := c.journal.Drain(ctx, c.controllerType)
	if err != nil {
		return fmt.Errorf("drain queue: %w", err)
	}

	if lock.Poisoned() {
		return fmt.Errorf("work lock poisoned mid-iteration")
	}

	objectIDs := make([]ObjectID, len(queued))
	for i, q := range queued {
		objectIDs[i] = q.ObjectID
	}

	d := &dispatcher[V, S, Services]{
		controllerType:        c.controllerType,
		db:                    c.db,
		adapter:               c.adapter,
		handler:               c.handler,
		services:              c.services,
		emitter:               c.emitter,
		hooks:                 c.hooks,
		maxConcurrency:        c.config.MaxConcurrency,
		maxObjectHandlingTime: c.config.MaxObjectHandlingTime,
	}
	results := d.run(ctx, iteration.ID, objectIDs)

	c.recordIteration(ctx, iteration, iterationStarted, results, queryCounter)

	return nil
}

// recordIteration builds the per-state census, publishes it to the cached
// gauge tier, emits the iteration latency, and annotates the iteration
// span with the aggregate attributes spec §4.7 requires.
func (c *Controller[V, S, Services]) recordIteration(ctx context.Context, iteration Iteration, started time.Time, results []dispatchResult, queryCounter *QueryCounter) {
	type stateKey struct{ state, substate string }

	population := map[stateKey]int{}
	aboveSLAPopulation := map[stateKey]int{}
	states := map[string]int{}
	statesAboveSLA := map[string]int{}
	errorTypes := map[string]map[string]int{}
	numErrors := 0

	for _, r := range results {
		key := stateKey{r.state, r.substate}
		population[key]++
		states[r.state]++

		if r.aboveSLA {
			aboveSLAPopulation[key]++
			statesAboveSLA[r.state]++
		}
		if r.outcome == OutcomeError {
			numErrors++
			if errorTypes[r.state] == nil {
				errorTypes[r.state] = map[string]int{}
			}
			errorTypes[r.state][string(r.errorKind)]++
		}
	}

	counts := make([]metrics.StateCount, 0, len(population))
	for key, n := range population {
		counts = append(counts, metrics.StateCount{State: key.state, Substate: key.substate, Count: n})
	}
	aboveSLA := make([]metrics.StateCount, 0, len(aboveSLAPopulation))
	for key, n := range aboveSLAPopulation {
		aboveSLA = append(aboveSLA, metrics.StateCount{State: key.state, Substate: key.substate, Count: n})
	}

	now := time.Now()
	c.emitter.ObserveIterationLatency(c.controllerType, now.Sub(started))
	c.emitter.PublishStateCensus(c.controllerType, counts, aboveSLA, now)

	statesJSON, _ := json.Marshal(states)
	statesAboveSLAJSON, _ := json.Marshal(statesAboveSLA)
	errorTypesJSON, _ := json.Marshal(errorTypes)

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		telemetry.IterationID(iteration.ID),
		telemetry.NumEnqueuedObjects(len(results)),
		telemetry.NumErrors(numErrors),
		telemetry.StatesJSON(string(statesJSON)),
		telemetry.StatesAboveSLAJSON(string(statesAboveSLAJSON)),
		telemetry.ErrorTypesJSON(string(errorTypesJSON)),
		telemetry.SQLQueries(queryCounter.Queries()),
		telemetry.SQLTotalRows(queryCounter.Rows()),
	)
}
