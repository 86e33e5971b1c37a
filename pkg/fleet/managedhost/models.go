package managedhost

import "time"

// AllModels returns every GORM model this package owns, for AutoMigrate.
// Kept separate from internal/store.AllModels: the core's shared tables
// are migrated once by internal/store.Open, while a registered object
// type migrates its own snapshot/state/outcome tables alongside it.
func AllModels() []any {
	return []any{
		&hostSnapshotRecord{},
		&hostControllerStateRecord{},
		&hostOutcomeRecord{},
	}
}

// hostSnapshotRecord is the observed input: inventory plus the most
// recently polled DPU health. A real deployment would populate this from
// a fleet inventory service and a DPU health-check adapter; this
// reference type owns the table directly since it has no such adapter of
// its own.
type hostSnapshotRecord struct {
	HostID               string    `gorm:"primaryKey;column:host_id;size:64"`
	DPUID                string    `gorm:"column:dpu_id;size:64"`
	Deleted              bool      `gorm:"column:deleted;not null;default:false"`
	DesiredConfigVersion string    `gorm:"column:desired_config_version;size:64"`
	DPUHealthy           bool      `gorm:"column:dpu_healthy;not null;default:false"`
	DPUConfigVersion     string    `gorm:"column:dpu_config_version;size:64"`
	UpdatedAt            time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (hostSnapshotRecord) TableName() string { return "managed_host_snapshots" }

// hostControllerStateRecord is the controller's authoritative view of one
// host, written only by the engine's optimistic-CAS path.
type hostControllerStateRecord struct {
	HostID         string    `gorm:"primaryKey;column:host_id;size:64"`
	Phase          string    `gorm:"column:phase;size:32;not null"`
	ConfigAttempts int       `gorm:"column:config_attempts;not null;default:0"`
	VersionCounter int64     `gorm:"column:version_counter;not null;default:0"`
	VersionSince   time.Time `gorm:"column:version_since"`
}

func (hostControllerStateRecord) TableName() string { return "managed_host_controller_states" }

// hostOutcomeRecord is the append-only diagnostic log of every
// dispatcher outcome for a host: one row per iteration the host was
// handled in (never written for a Deleted outcome, per the transition
// table in §4.5 of the design).
type hostOutcomeRecord struct {
	ID             int64     `gorm:"primaryKey;autoIncrement;column:id"`
	HostID         string    `gorm:"column:host_id;size:64;not null;index:idx_host_outcomes_host_id"`
	Kind           string    `gorm:"column:kind;size:32;not null"`
	HandlerOutcome string    `gorm:"column:handler_outcome;type:text"`
	ErrorKind      string    `gorm:"column:error_kind;size:64"`
	ErrorMessage   string    `gorm:"column:error_message;type:text"`
	RecordedAt     time.Time `gorm:"column:recorded_at"`
}

func (hostOutcomeRecord) TableName() string { return "managed_host_outcomes" }
