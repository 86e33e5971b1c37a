package controller

import (
	"sync"

	"github.com/nvidia/fleet-state-controller/internal/logger"
)

// HookObserver receives state-change events. Observers run synchronously
// on the committing goroutine and must not block; a slow observer would
// otherwise stall reconciliation for every other object in the iteration.
type HookObserver func(event HookEvent)

// HookBus is a purely in-process broadcast of (object, old_state ->
// new_state, timestamp) events, fired only after a successful commit of a
// Transition outcome. There is no cross-process or cross-type delivery;
// see the open question in the design notes on whether that is ever
// needed — this repo's answer, like the source it follows, is no.
type HookBus struct {
	mu        sync.RWMutex
	observers []HookObserver
}

// NewHookBus returns an empty hook bus.
func NewHookBus() *HookBus {
	return &HookBus{}
}

// Subscribe registers an observer. Safe to call concurrently with Emit.
func (b *HookBus) Subscribe(observer HookObserver) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observers = append(b.observers, observer)
}

// Emit broadcasts event to every registered observer. Each observer is
// invoked in its own recovered call so a panicking observer cannot take
// down the iteration or prevent its siblings from being notified.
func (b *HookBus) Emit(event HookEvent) {
	b.mu.RLock()
	observers := make([]HookObserver, len(b.observers))
	copy(observers, b.observers)
	b.mu.RUnlock()

	for _, observer := range observers {
		b.invoke(observer, event)
	}
}

func (b *HookBus) invoke(observer HookObserver, event HookEvent) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("hook observer panicked",
				logger.ObjectID(string(event.ObjectID)),
				"recovered", r,
			)
		}
	}()
	observer(event)
}
