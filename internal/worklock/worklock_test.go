//go:build integration

package worklock_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/nvidia/fleet-state-controller/internal/controller"
	"github.com/nvidia/fleet-state-controller/internal/worklock"
)

func newTestPool(t *testing.T) *pgxpool.Pool {
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

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return pool
}

// TestTryAcquire_ExclusiveAcrossConnections exercises the mutual
// exclusion at the heart of spec.md §8 scenario D: two acquisition
// attempts against the same key, from two distinct pooled connections,
// never both succeed, and the key becomes acquirable again once the
// holder releases.
func TestTryAcquire_ExclusiveAcrossConnections(t *testing.T) {
	pool := newTestPool(t)
	lock := worklock.New(pool)
	ctx := context.Background()

	held, err := lock.TryAcquire(ctx, "managed_host", 30*time.Second)
	require.NoError(t, err)

	_, err = lock.TryAcquire(ctx, "managed_host", 30*time.Second)
	require.ErrorIs(t, err, controller.ErrLockBusy)

	require.NoError(t, held.Release(ctx))

	second, err := lock.TryAcquire(ctx, "managed_host", 30*time.Second)
	require.NoError(t, err)
	require.NoError(t, second.Release(ctx))
}

// TestTryAcquire_DistinctKeysDoNotContend confirms two controller types
// never contend for the same advisory lock slot.
func TestTryAcquire_DistinctKeysDoNotContend(t *testing.T) {
	pool := newTestPool(t)
	lock := worklock.New(pool)
	ctx := context.Background()

	a, err := lock.TryAcquire(ctx, "type_a", 30*time.Second)
	require.NoError(t, err)
	defer a.Release(ctx)

	b, err := lock.TryAcquire(ctx, "type_b", 30*time.Second)
	require.NoError(t, err)
	defer b.Release(ctx)
}

// TestTryAcquire_TwoReplicasExactlyOneLeaderPerTick simulates spec.md §8
// scenario D's "two replicas, one leader" expectation directly at the
// work-lock boundary: many simultaneous acquisition attempts on the same
// key from concurrent goroutines (standing in for two controller
// replicas racing every tick) never leave two holders of the lock at the
// same time, and across enough rounds both "replicas" eventually win at
// least once.
func TestTryAcquire_TwoReplicasExactlyOneLeaderPerTick(t *testing.T) {
	pool := newTestPool(t)
	lock := worklock.New(pool)
	ctx := context.Background()

	var replicaAWins, replicaBWins, holders atomic.Int32

	tick := func(replicaWins *atomic.Int32) {
		l, err := lock.TryAcquire(ctx, "race_type", 5*time.Second)
		if err != nil {
			require.ErrorIs(t, err, controller.ErrLockBusy)
			return
		}
		replicaWins.Add(1)
		if n := holders.Add(1); n != 1 {
			t.Errorf("%d replicas held the lock at the same time", n)
		}
		time.Sleep(10 * time.Millisecond)
		holders.Add(-1)
		require.NoError(t, l.Release(ctx))
	}

	for round := 0; round < 20; round++ {
		var wg sync.WaitGroup
		wg.Add(2)
		go func() { defer wg.Done(); tick(&replicaAWins) }()
		go func() { defer wg.Done(); tick(&replicaBWins) }()
		wg.Wait()
	}

	require.Greater(t, replicaAWins.Load(), int32(0), "replica A must win the lock at least once across 20 rounds")
	require.Greater(t, replicaBWins.Load(), int32(0), "replica B must win the lock at least once across 20 rounds")
}
