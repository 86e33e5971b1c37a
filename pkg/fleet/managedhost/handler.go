package managedhost

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/nvidia/fleet-state-controller/internal/controller"
)

// DPUClient is the services dependency a Handler needs: pushing a
// configuration version to a host's DPU and reading back its current
// health/version. A real deployment backs this with the fleet's DPU
// management API; tests back it with a fake.
type DPUClient interface {
	ApplyConfig(ctx context.Context, dpuID, desiredVersion string) error
	HealthCheck(ctx context.Context, dpuID string) (healthy bool, appliedVersion string, err error)
}

// Services bundles the dependencies Handler needs, passed through
// controller.StateHandlerContext.
type Services struct {
	DPU DPUClient
}

// Handler implements controller.StateHandler[State, Snapshot, Services]
// for the managed-host reference domain: Pending hosts get a
// configuration push, Configuring hosts poll DPU health until it reports
// the desired version, and a deleted snapshot tears the host down.
// Grounded on spec.md §8's scenarios A (happy transition), B (SLA stall)
// and E (deleted object) — this is the type those scenarios run against.
type Handler struct{}

var _ controller.StateHandler[State, Snapshot, Services] = Handler{}

// HandleObjectState implements controller.StateHandler.
func (Handler) HandleObjectState(
	ctx context.Context,
	tx *gorm.DB,
	objectID controller.ObjectID,
	snapshot Snapshot,
	current State,
	hctx *controller.StateHandlerContext[Services],
) controller.HandlerOutcome[State] {
	if snapshot.Deleted {
		if err := tx.WithContext(ctx).
			Where("host_id = ?", string(objectID)).
			Delete(&hostControllerStateRecord{}).Error; err != nil {
			return controller.Err[State](controller.NewTransactionError(objectID, err))
		}
		return controller.Deleted[State]()
	}

	switch current.Phase {
	case PhasePending:
		return handlePending(ctx, hctx, objectID, snapshot)
	case PhaseConfiguring:
		return handleConfiguring(ctx, hctx, objectID, snapshot, current)
	case PhaseReady:
		return handleReady(snapshot, current)
	default:
		return controller.Err[State](controller.NewHandlerError(objectID, fmt.Sprintf("unrecognized phase %q", current.Phase)))
	}
}

func handlePending(ctx context.Context, hctx *controller.StateHandlerContext[Services], objectID controller.ObjectID, snapshot Snapshot) controller.HandlerOutcome[State] {
	if err := hctx.Services.DPU.ApplyConfig(ctx, snapshot.DPUID, snapshot.DesiredConfigVersion); err != nil {
		return controller.Wait[State](fmt.Sprintf("apply config failed: %v", err))
	}
	return controller.Transition(State{Phase: PhaseConfiguring, ConfigAttempts: 0})
}

func handleConfiguring(ctx context.Context, hctx *controller.StateHandlerContext[Services], objectID controller.ObjectID, snapshot Snapshot, current State) controller.HandlerOutcome[State] {
	healthy, appliedVersion, err := hctx.Services.DPU.HealthCheck(ctx, snapshot.DPUID)
	if err != nil {
		return controller.Wait[State](fmt.Sprintf("health check failed: %v", err))
	}
	if healthy && appliedVersion == snapshot.DesiredConfigVersion {
		return controller.Transition(State{Phase: PhaseReady})
	}

	if current.ConfigAttempts+1 >= maxConfigAttempts {
		return controller.Err[State](controller.NewHandlerError(objectID,
			fmt.Sprintf("DPU did not reach desired config after %d attempts", current.ConfigAttempts+1)))
	}

	return controller.TransitionWithReason(
		State{Phase: PhaseConfiguring, ConfigAttempts: current.ConfigAttempts + 1},
		"waiting for DPU to report desired config version",
	)
}

func handleReady(snapshot Snapshot, current State) controller.HandlerOutcome[State] {
	if snapshot.DesiredConfigVersion != snapshot.DPUConfigVersion || !snapshot.DPUHealthy {
		return controller.Transition(State{Phase: PhasePending})
	}
	return controller.DoNothing[State]()
}
