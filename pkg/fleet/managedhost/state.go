// Package managedhost is a worked instantiation of the generic
// reconciliation core for the fleet's own example domain: a server paired
// with a DPU (data processing unit) that must be configured before it is
// usable. It is a fixture for the dispatcher/transition tests and for
// cmd/fleetctl, not part of the core's public contract — analogous to how
// the teacher's pkg/controlplane/models gives the generic GORM store
// something concrete to persist.
package managedhost

import "time"

// Phase is the controller-owned lifecycle value for one managed host.
type Phase string

const (
	// PhasePending means the host has been enumerated but no
	// configuration attempt has been made yet.
	PhasePending Phase = "Pending"

	// PhaseConfiguring means a configuration push to the host's DPU is
	// in flight or awaiting a health check.
	PhaseConfiguring Phase = "Configuring"

	// PhaseReady means the DPU reported healthy with the desired
	// configuration version applied.
	PhaseReady Phase = "Ready"
)

// State is the controller-owned value for one managed host: the phase
// plus enough bookkeeping to drive retries and SLA accounting.
// ConfigAttempts counts consecutive unhealthy health checks observed
// while Configuring.
type State struct {
	Phase          Phase
	ConfigAttempts int
}

// Snapshot is the observed input the handler reads but never writes
// directly: inventory + DPU health data pulled fresh every iteration.
type Snapshot struct {
	HostID               string
	DPUID                string
	Deleted              bool
	DesiredConfigVersion string
	DPUHealthy           bool
	DPUConfigVersion     string
}

// slaTable holds the per-phase SLA this reference type enforces,
// matching the spec's scenario B (`Configuring` has a finite SLA; the
// other phases don't stall on external state and are left infinite).
var slaTable = map[Phase]slaEntry{
	PhasePending:     {maxTimeInState: 0, infinite: true},
	PhaseConfiguring: {maxTimeInState: 10 * time.Minute},
	PhaseReady:       {maxTimeInState: 0, infinite: true},
}

type slaEntry struct {
	maxTimeInState time.Duration
	infinite       bool
}

// maxConfigAttempts bounds how many consecutive unhealthy DPU checks a
// host may accumulate while Configuring before the handler gives up and
// reports a handler error instead of continuing to wait.
const maxConfigAttempts = 5
