package managedhost

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nvidia/fleet-state-controller/internal/controller"
)

// Adapter implements controller.IOAdapter[State, Snapshot] against the
// tables in models.go. Grounded on the teacher's
// pkg/controlplane/store CRUD bodies (read-then-CAS-write via GORM), the
// same idiom internal/store/journal.go follows for the shared tables.
type Adapter struct{}

var _ controller.IOAdapter[State, Snapshot] = Adapter{}

// ListObjects returns every non-deleted host id, plus every deleted host
// that still has a controller-state row so the handler can tear it down.
// Once that row is gone, a deleted host is no longer listed.
func (Adapter) ListObjects(ctx context.Context, tx *gorm.DB) ([]controller.ObjectID, error) {
	var ids []string
	if err := tx.WithContext(ctx).Model(&hostSnapshotRecord{}).
		Where("deleted = ? OR host_id IN (?)", false,
			tx.WithContext(ctx).Model(&hostControllerStateRecord{}).Select("host_id")).
		Pluck("host_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list managed hosts: %w", err)
	}

	objectIDs := make([]controller.ObjectID, len(ids))
	for i, id := range ids {
		objectIDs[i] = controller.ObjectID(id)
	}
	return objectIDs, nil
}

// LoadObjectState loads the observed snapshot for id.
func (Adapter) LoadObjectState(ctx context.Context, tx *gorm.DB, id controller.ObjectID) (*Snapshot, error) {
	var row hostSnapshotRecord
	err := tx.WithContext(ctx).Where("host_id = ?", string(id)).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load host snapshot %s: %w", id, err)
	}

	snapshot := Snapshot{
		HostID:               row.HostID,
		DPUID:                row.DPUID,
		Deleted:              row.Deleted,
		DesiredConfigVersion: row.DesiredConfigVersion,
		DPUHealthy:           row.DPUHealthy,
		DPUConfigVersion:     row.DPUConfigVersion,
	}
	return &snapshot, nil
}

// LoadControllerState loads the current controller state for id,
// synthesizing Pending{attempts=0} at version (0, now) if none has been
// persisted yet.
func (Adapter) LoadControllerState(ctx context.Context, tx *gorm.DB, id controller.ObjectID, _ Snapshot) (controller.ControllerState[State], error) {
	var row hostControllerStateRecord
	err := tx.WithContext(ctx).Where("host_id = ?", string(id)).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return controller.ControllerState[State]{
			Value:   State{Phase: PhasePending},
			Version: controller.Version{Counter: 0, Since: time.Now()},
		}, nil
	}
	if err != nil {
		return controller.ControllerState[State]{}, fmt.Errorf("load host controller state %s: %w", id, err)
	}

	return controller.ControllerState[State]{
		Value: State{
			Phase:          Phase(row.Phase),
			ConfigAttempts: row.ConfigAttempts,
		},
		Version: controller.Version{Counter: row.VersionCounter, Since: row.VersionSince},
	}, nil
}

// PersistControllerState writes newValue conditioned on the stored
// version still equaling prevVersion, reporting OptimisticConflict when
// the predicate matches zero rows. A missing row is treated as version
// (0, *) so the very first write for a host also goes through the CAS
// path rather than a special-cased insert.
func (Adapter) PersistControllerState(ctx context.Context, tx *gorm.DB, id controller.ObjectID, prevVersion controller.Version, newValue State, newVersion controller.Version) error {
	row := hostControllerStateRecord{
		HostID:         string(id),
		Phase:          string(newValue.Phase),
		ConfigAttempts: newValue.ConfigAttempts,
		VersionCounter: newVersion.Counter,
		VersionSince:   newVersion.Since,
	}

	if prevVersion.Counter == 0 {
		result := tx.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
		if result.Error != nil {
			return fmt.Errorf("insert host controller state %s: %w", id, result.Error)
		}
		if result.RowsAffected == 1 {
			return nil
		}
		// A row already exists (another writer raced the insert path);
		// fall through to the conditional update below.
	}

	result := tx.WithContext(ctx).
		Model(&hostControllerStateRecord{}).
		Where("host_id = ? AND version_counter = ?", string(id), prevVersion.Counter).
		Updates(map[string]any{
			"phase":           row.Phase,
			"config_attempts": row.ConfigAttempts,
			"version_counter": row.VersionCounter,
			"version_since":   row.VersionSince,
		})
	if result.Error != nil {
		return fmt.Errorf("update host controller state %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return controller.NewOptimisticConflictError(id)
	}
	return nil
}

// PersistOutcome writes the diagnostic outcome row for id. Never called
// for a Deleted outcome.
func (Adapter) PersistOutcome(ctx context.Context, tx *gorm.DB, id controller.ObjectID, outcome controller.PersistedOutcome) error {
	row := hostOutcomeRecord{
		HostID:         string(id),
		Kind:           outcome.Kind.String(),
		HandlerOutcome: outcome.HandlerOutcome,
		ErrorKind:      string(outcome.ErrorKind),
		ErrorMessage:   outcome.ErrorMessage,
		RecordedAt:     outcome.RecordedAt,
	}
	if err := tx.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("persist host outcome %s: %w", id, err)
	}
	return nil
}

// StateSLA returns the SLA configured for value's phase.
func (Adapter) StateSLA(value State) controller.StateSLA {
	entry := slaTable[value.Phase]
	return controller.StateSLA{MaxTimeInState: entry.maxTimeInState, Infinite: entry.infinite}
}

// MetricStateNames dimensions metrics by phase, with the attempt count as
// the substate while Configuring (Pending/Ready never vary it).
func (Adapter) MetricStateNames(value State) (state string, substate string) {
	if value.Phase == PhaseConfiguring {
		return string(value.Phase), fmt.Sprintf("attempts=%d", value.ConfigAttempts)
	}
	return string(value.Phase), ""
}
