// Package store wires the relational store the engine treats as an
// opaque transactional KV with SQL-expressible predicates (spec §6): a
// GORM/Postgres connection plus the two tables the core itself owns —
// the iteration sequence and the per-iteration queue. Per-object-type
// tables (e.g. pkg/fleet/managedhost) live alongside this package but are
// migrated by their own callers, not here.
package store

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Config is the connection configuration for the shared Postgres store.
// Only Postgres is supported: the teacher's SQLite branch was dropped
// because advisory-lock-based work-lock exclusion across replicas
// requires a real server-side session, which SQLite has no equivalent
// of (see the Open Questions in DESIGN.md).
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open connects to Postgres and runs AutoMigrate for the shared
// iteration/queue tables.
func Open(cfg Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("store: connect to postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("store: underlying *sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.AutoMigrate(AllModels()...); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	if err := RegisterQueryCallbacks(db); err != nil {
		return nil, fmt.Errorf("store: register query-count callbacks: %w", err)
	}

	return db, nil
}
