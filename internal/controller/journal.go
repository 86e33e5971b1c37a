package controller

import "context"

// IterationJournal is the engine's view of the iteration journal and
// per-iteration queue table (component B): monotone iteration ids scoped
// to a controller type, plus drain-all queue semantics. There is exactly
// one holder of the work lock at a time, so there is no need for
// per-row claim/ack; the whole queue is enqueued and drained as a batch.
type IterationJournal interface {
	// StartIteration allocates the next monotone iteration id for
	// controllerType and records its start time. Must run under the
	// controller type's work lock.
	StartIteration(ctx context.Context, controllerType string) (Iteration, error)

	// Enqueue batch-inserts (objectID, iterationID) rows for every id in
	// objectIDs.
	Enqueue(ctx context.Context, controllerType string, iterationID int64, objectIDs []ObjectID) error

	// Drain atomically selects and deletes every queued row for
	// controllerType, regardless of which iteration enqueued it. Draining
	// twice in sequence returns an empty slice the second time.
	Drain(ctx context.Context, controllerType string) ([]QueuedObject, error)
}
