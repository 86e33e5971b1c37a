package controller

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/nvidia/fleet-state-controller/internal/metrics"
)

// Params collects everything a Controller needs to reconcile one object
// type. All fields are required except Emitter and Hooks, which default
// to a no-op emitter and an empty hook bus respectively.
type Params[V any, S any, Services any] struct {
	ControllerType string
	DB             *gorm.DB
	Lock           WorkLock
	Journal        IterationJournal
	Adapter        IOAdapter[V, S]
	Handler        StateHandler[V, S, Services]
	Services       Services
	Emitter        metrics.Emitter
	Hooks          *HookBus
	Config         Config
}

// New validates params and returns a ready-to-run Controller. Mirrors the
// plain required-fields constructor used throughout this codebase's
// relational store layer rather than a fluent/options builder: the only
// optional fields, Emitter and Hooks, are defaulted here when nil.
func New[V any, S any, Services any](params Params[V, S, Services]) (*Controller[V, S, Services], error) {
	if params.ControllerType == "" {
		return nil, fmt.Errorf("controller: ControllerType is required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("controller: DB is required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("controller: Lock is required")
	}
	if params.Journal == nil {
		return nil, fmt.Errorf("controller: Journal is required")
	}
	if params.Adapter == nil {
		return nil, fmt.Errorf("controller: Adapter is required")
	}
	if params.Handler == nil {
		return nil, fmt.Errorf("controller: Handler is required")
	}
	if params.Config.IterationTime <= 0 {
		return nil, fmt.Errorf("controller: Config.IterationTime must be positive")
	}
	if params.Config.MaxConcurrency <= 0 {
		return nil, fmt.Errorf("controller: Config.MaxConcurrency must be positive")
	}
	if params.Config.MaxObjectHandlingTime <= 0 {
		return nil, fmt.Errorf("controller: Config.MaxObjectHandlingTime must be positive")
	}
	if params.Config.LockLeaseTTL <= 0 {
		return nil, fmt.Errorf("controller: Config.LockLeaseTTL must be positive")
	}

	emitter := params.Emitter
	if emitter == nil {
		emitter = metrics.NoOp{}
	}
	hooks := params.Hooks
	if hooks == nil {
		hooks = NewHookBus()
	}

	return &Controller[V, S, Services]{
		controllerType: params.ControllerType,
		db:             params.DB,
		lock:           params.Lock,
		journal:        params.Journal,
		adapter:        params.Adapter,
		handler:        params.Handler,
		services:       params.Services,
		emitter:        emitter,
		hooks:          hooks,
		config:         params.Config,
	}, nil
}
