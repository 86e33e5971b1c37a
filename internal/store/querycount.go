package store

import (
	"gorm.io/gorm"

	"github.com/nvidia/fleet-state-controller/internal/controller"
)

// RegisterQueryCallbacks hooks every GORM CRUD callback chain to tally
// statements and rows into whatever controller.QueryCounter is present on
// the statement's context, if any. Safe to call once per *gorm.DB
// (Open does it automatically); a context with no counter is a no-op, so
// calls outside an instrumented iteration (migrations, ad hoc queries)
// pay nothing beyond the callback dispatch itself.
func RegisterQueryCallbacks(db *gorm.DB) error {
	count := func(tx *gorm.DB) {
		counter := controller.QueryCounterFromContext(tx.Statement.Context)
		if counter == nil {
			return
		}
		counter.Add(tx.RowsAffected)
	}

	if err := db.Callback().Create().After("gorm:create").Register("fleet:count_create", count); err != nil {
		return err
	}
	if err := db.Callback().Query().After("gorm:query").Register("fleet:count_query", count); err != nil {
		return err
	}
	if err := db.Callback().Update().After("gorm:update").Register("fleet:count_update", count); err != nil {
		return err
	}
	if err := db.Callback().Delete().After("gorm:delete").Register("fleet:count_delete", count); err != nil {
		return err
	}
	if err := db.Callback().Row().After("gorm:row").Register("fleet:count_row", count); err != nil {
		return err
	}
	return nil
}
