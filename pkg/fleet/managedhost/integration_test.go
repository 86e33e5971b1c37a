//go:build integration

package managedhost_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"

	"github.com/nvidia/fleet-state-controller/internal/controller"
	"github.com/nvidia/fleet-state-controller/internal/metrics"
	fleetstore "github.com/nvidia/fleet-state-controller/internal/store"
	"github.com/nvidia/fleet-state-controller/internal/worklock"
	"github.com/nvidia/fleet-state-controller/pkg/fleet/managedhost"
)

// newTestDB starts a throwaway Postgres container (mirrors the teacher's
// test/e2e/framework.NewPostgresHelper pattern) and returns a connected
// GORM handle with the shared controller tables plus managedhost's own
// tables migrated, and a pgxpool.Pool for the work-lock coordinator.
func newTestDB(t *testing.T) (*gorm.DB, *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("fleet_test"),
		postgres.WithUsername("fleet_test"),
		postgres.WithPassword("fleet_test"),
		testcontainers.WithWaitStrategyAndDeadline(2*time.Minute,
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://fleet_test:fleet_test@%s:%d/fleet_test?sslmode=disable", host, port.Int())

	db, err := fleetstore.Open(fleetstore.Config{DSN: dsn, MaxOpenConns: 5, MaxIdleConns: 5})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(managedhost.AllModels()...))

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return db, pool
}

func newTestController(t *testing.T, db *gorm.DB, pool *pgxpool.Pool, dpu managedhost.DPUClient) *controller.Controller[managedhost.State, managedhost.Snapshot, managedhost.Services] {
	t.Helper()
	return newTestControllerWithConfig(t, db, pool, dpu, controller.Config{
		IterationTime:         time.Second,
		MaxConcurrency:        4,
		MaxObjectHandlingTime: 5 * time.Second,
		LockLeaseTTL:          10 * time.Second,
	})
}

func newTestControllerWithConfig(t *testing.T, db *gorm.DB, pool *pgxpool.Pool, dpu managedhost.DPUClient, cfg controller.Config) *controller.Controller[managedhost.State, managedhost.Snapshot, managedhost.Services] {
	t.Helper()

	c, err := managedhost.New(
		db,
		worklock.New(pool),
		fleetstore.NewJournal(db),
		dpu,
		metrics.NoOp{},
		controller.NewHookBus(),
		cfg,
	)
	require.NoError(t, err)
	return c
}

type alwaysHealthyDPU struct{}

func (alwaysHealthyDPU) ApplyConfig(context.Context, string, string) error { return nil }
func (alwaysHealthyDPU) HealthCheck(context.Context, string) (bool, string, error) {
	return true, "v1", nil
}

// erroringHealthCheckDPU always fails its health check, which drives
// handleConfiguring to Wait on every tick.
type erroringHealthCheckDPU struct{}

func (erroringHealthCheckDPU) ApplyConfig(context.Context, string, string) error { return nil }
func (erroringHealthCheckDPU) HealthCheck(context.Context, string) (bool, string, error) {
	return false, "", fmt.Errorf("dpu unreachable")
}

// slowHealthCheckDPU blocks past the controller's per-object timeout,
// exercising spec.md §8 scenario C.
type slowHealthCheckDPU struct{ delay time.Duration }

func (slowHealthCheckDPU) ApplyConfig(context.Context, string, string) error { return nil }
func (d slowHealthCheckDPU) HealthCheck(ctx context.Context, _ string) (bool, string, error) {
	select {
	case <-time.After(d.delay):
		return true, "v1", nil
	case <-ctx.Done():
		return false, "", ctx.Err()
	}
}

// TestScenarioA_HappyTransition exercises spec.md §8 scenario A: a
// Pending host whose handler transitions to Configuring on the first
// tick, then to Ready once the DPU reports healthy at the desired
// version on the second.
func TestScenarioA_HappyTransition(t *testing.T) {
	db, pool := newTestDB(t)
	c := newTestController(t, db, pool, alwaysHealthyDPU{})

	require.NoError(t, db.Exec(
		`INSERT INTO managed_host_snapshots (host_id, dpu_id, desired_config_version, dpu_healthy, dpu_config_version) VALUES (?, ?, ?, ?, ?)`,
		"host-a", "dpu-a", "v1", true, "v1",
	).Error)

	ran, err := c.RunOnce(context.Background())
	require.NoError(t, err)
	require.True(t, ran)

	ran, err = c.RunOnce(context.Background())
	require.NoError(t, err)
	require.True(t, ran)

	var row struct{ Phase string }
	require.NoError(t, db.Table("managed_host_controller_states").
		Select("phase").Where("host_id = ?", "host-a").Scan(&row).Error)
	require.Equal(t, "Ready", row.Phase)
}

// TestScenarioE_DeletedObject exercises spec.md §8 scenario E: a deleted
// snapshot is reconciled with no outcome row and no next-state write.
func TestScenarioE_DeletedObject(t *testing.T) {
	db, pool := newTestDB(t)
	c := newTestController(t, db, pool, alwaysHealthyDPU{})

	require.NoError(t, db.Exec(
		`INSERT INTO managed_host_snapshots (host_id, dpu_id, deleted) VALUES (?, ?, ?)`,
		"host-e", "dpu-e", true,
	).Error)
	require.NoError(t, db.Exec(
		`INSERT INTO managed_host_controller_states (host_id, phase, version_counter, version_since) VALUES (?, ?, ?, ?)`,
		"host-e", "Ready", 1, time.Now(),
	).Error)

	ran, err := c.RunOnce(context.Background())
	require.NoError(t, err)
	require.True(t, ran)

	var count int64
	require.NoError(t, db.Table("managed_host_controller_states").Where("host_id = ?", "host-e").Count(&count).Error)
	require.Zero(t, count, "controller state row must be gone after a Deleted outcome")

	require.NoError(t, db.Table("managed_host_outcomes").Where("host_id = ?", "host-e").Count(&count).Error)
	require.Zero(t, count, "a Deleted outcome must never write an outcome row")
}

// TestScenarioB_SLAStall exercises spec.md §8 scenario B: a host stuck
// Configuring well past the phase's 10-minute SLA whose handler keeps
// returning Wait gets promoted to a TimeInStateAboveSla error instead of
// a plain Wait outcome row.
func TestScenarioB_SLAStall(t *testing.T) {
	db, pool := newTestDB(t)
	c := newTestController(t, db, pool, erroringHealthCheckDPU{})

	require.NoError(t, db.Exec(
		`INSERT INTO managed_host_snapshots (host_id, dpu_id, desired_config_version, dpu_healthy, dpu_config_version) VALUES (?, ?, ?, ?, ?)`,
		"host-b", "dpu-b", "v1", false, "",
	).Error)
	require.NoError(t, db.Exec(
		`INSERT INTO managed_host_controller_states (host_id, phase, config_attempts, version_counter, version_since) VALUES (?, ?, ?, ?, ?)`,
		"host-b", "Configuring", 0, 1, time.Now().Add(-30*time.Minute),
	).Error)

	ran, err := c.RunOnce(context.Background())
	require.NoError(t, err)
	require.True(t, ran)

	var row struct {
		Kind           string
		ErrorKind      string
		HandlerOutcome string
	}
	require.NoError(t, db.Table("managed_host_outcomes").
		Select("kind, error_kind, handler_outcome").Where("host_id = ?", "host-b").
		Order("recorded_at desc").Limit(1).Scan(&row).Error)
	require.Equal(t, "Error", row.Kind)
	require.Equal(t, "TimeInStateAboveSla", row.ErrorKind)
	require.Equal(t, `Wait("health check failed: dpu unreachable")`, row.HandlerOutcome,
		"the Wait outcome that triggered the SLA promotion must survive onto the diagnostic row")

	var state struct{ Phase string }
	require.NoError(t, db.Table("managed_host_controller_states").
		Select("phase").Where("host_id = ?", "host-b").Scan(&state).Error)
	require.Equal(t, "Configuring", state.Phase, "an SLA-promoted Wait must not move the state")
}

// TestScenarioC_Timeout exercises spec.md §8 scenario C: a handler call
// that outlives the per-object timeout is aborted, the transaction is
// rolled back, and a Timeout outcome row is written with no state change.
func TestScenarioC_Timeout(t *testing.T) {
	db, pool := newTestDB(t)
	c := newTestControllerWithConfig(t, db, pool, slowHealthCheckDPU{delay: 5 * time.Second}, controller.Config{
		IterationTime:         time.Second,
		MaxConcurrency:        4,
		MaxObjectHandlingTime: 100 * time.Millisecond,
		LockLeaseTTL:          10 * time.Second,
	})

	require.NoError(t, db.Exec(
		`INSERT INTO managed_host_snapshots (host_id, dpu_id, desired_config_version, dpu_healthy, dpu_config_version) VALUES (?, ?, ?, ?, ?)`,
		"host-c", "dpu-c", "v1", false, "",
	).Error)
	require.NoError(t, db.Exec(
		`INSERT INTO managed_host_controller_states (host_id, phase, config_attempts, version_counter, version_since) VALUES (?, ?, ?, ?, ?)`,
		"host-c", "Configuring", 0, 1, time.Now(),
	).Error)

	ran, err := c.RunOnce(context.Background())
	require.NoError(t, err)
	require.True(t, ran)

	var row struct {
		Kind      string
		ErrorKind string
	}
	require.NoError(t, db.Table("managed_host_outcomes").
		Select("kind, error_kind").Where("host_id = ?", "host-c").
		Order("recorded_at desc").Limit(1).Scan(&row).Error)
	require.Equal(t, "Error", row.Kind)
	require.Equal(t, "Timeout", row.ErrorKind)

	var state struct {
		Phase          string
		ConfigAttempts int
	}
	require.NoError(t, db.Table("managed_host_controller_states").
		Select("phase, config_attempts").Where("host_id = ?", "host-c").Scan(&state).Error)
	require.Equal(t, "Configuring", state.Phase)
	require.Zero(t, state.ConfigAttempts, "a timed-out attempt must never be persisted")
}

// TestScenarioF_OptimisticConflict exercises spec.md §8 scenario F:
// two concurrent writers both read version v and attempt to persist a
// transition; exactly one succeeds and the other reports
// OptimisticConflict without skipping a version.
func TestScenarioF_OptimisticConflict(t *testing.T) {
	db, pool := newTestDB(t)
	_ = pool

	require.NoError(t, db.Exec(
		`INSERT INTO managed_host_controller_states (host_id, phase, config_attempts, version_counter, version_since) VALUES (?, ?, ?, ?, ?)`,
		"host-f", "Pending", 0, 1, time.Now(),
	).Error)

	adapter := managedhost.Adapter{}
	prevVersion := controller.Version{Counter: 1, Since: time.Now()}

	var succeeded, conflicted int
	for i := 0; i < 2; i++ {
		err := db.Transaction(func(tx *gorm.DB) error {
			return adapter.PersistControllerState(
				context.Background(), tx, "host-f", prevVersion,
				managedhost.State{Phase: managedhost.PhaseConfiguring}, controller.Version{Counter: 2, Since: time.Now()},
			)
		})
		if err == nil {
			succeeded++
		} else {
			require.ErrorContains(t, err, "OptimisticConflict")
			conflicted++
		}
	}

	require.Equal(t, 1, succeeded)
	require.Equal(t, 1, conflicted)

	var row struct {
		Phase          string
		VersionCounter int64
	}
	require.NoError(t, db.Table("managed_host_controller_states").
		Select("phase, version_counter").Where("host_id = ?", "host-f").Scan(&row).Error)
	require.Equal(t, "Configuring", row.Phase)
	require.EqualValues(t, 2, row.VersionCounter, "the winner's version must land cleanly with no skipped counter")
}
