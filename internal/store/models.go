package store

import "time"

// AllModels returns every GORM model this package owns, for AutoMigrate.
func AllModels() []any {
	return []any{
		&iterationSequenceRecord{},
		&queuedObjectRecord{},
	}
}

// iterationSequenceRecord holds the last-assigned iteration id for one
// controller type. One row per controller type, created on first use.
// Translated from the original's sqlx row mapping for
// `ControllerIteration` into GORM column tags; the table is shared across
// every controller type (disambiguated by ControllerType) rather than one
// table per type, since the schema is identical and the row count is
// bounded by the number of registered controller types.
type iterationSequenceRecord struct {
	ControllerType string `gorm:"primaryKey;column:controller_type"`
	LastIterationID int64  `gorm:"column:last_iteration_id;not null;default:0"`
	StartedAt      time.Time `gorm:"column:started_at"`
}

func (iterationSequenceRecord) TableName() string { return "controller_iteration_sequences" }

// queuedObjectRecord is one fan-out row: an object tagged with the
// iteration that enqueued it. Not a durable work queue — see QueuedObject
// in internal/controller/types.go.
type queuedObjectRecord struct {
	ID             int64     `gorm:"primaryKey;autoIncrement;column:id"`
	ControllerType string    `gorm:"column:controller_type;not null;index:idx_queued_objects_type"`
	ObjectID       string    `gorm:"column:object_id;not null"`
	IterationID    int64     `gorm:"column:iteration_id;not null"`
	CreatedAt      time.Time `gorm:"column:created_at"`
}

func (queuedObjectRecord) TableName() string { return "controller_queued_objects" }
