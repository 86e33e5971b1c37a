package managedhost

import (
	"gorm.io/gorm"

	"github.com/nvidia/fleet-state-controller/internal/controller"
	"github.com/nvidia/fleet-state-controller/internal/metrics"
)

// ControllerType is the name this object type registers under, used as
// the work-lock key and the metric/span "controller_type" label.
const ControllerType = "managed_host"

// New builds the managed-host Controller, wiring the reference Adapter
// and Handler into the generic engine. cfg supplies the per-process
// iteration tuning (spec.md §6); lock/journal/db are the shared
// infrastructure cmd/fleetctl constructs once and passes to every
// registered controller type.
func New(
	db *gorm.DB,
	lock controller.WorkLock,
	journal controller.IterationJournal,
	dpu DPUClient,
	emitter metrics.Emitter,
	hooks *controller.HookBus,
	cfg controller.Config,
) (*controller.Controller[State, Snapshot, Services], error) {
	return controller.New(controller.Params[State, Snapshot, Services]{
		ControllerType: ControllerType,
		DB:             db,
		Lock:           lock,
		Journal:        journal,
		Adapter:        Adapter{},
		Handler:        Handler{},
		Services:       Services{DPU: dpu},
		Emitter:        emitter,
		Hooks:          hooks,
		Config:         cfg,
	})
}
