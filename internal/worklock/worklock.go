// Package worklock implements the work-lock coordinator (component A):
// a cluster-wide, at-most-one-holder lease keyed by controller type,
// backed by a PostgreSQL session-scoped advisory lock. The lease is tied
// to the lifetime of one pinned connection; a crashed holder's session
// dies and the lock becomes acquirable again without any explicit
// cleanup, the same guarantee the original Rust implementation gets from
// its pinned `sqlx::PgConnection`.
package worklock

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nvidia/fleet-state-controller/internal/controller"
	"github.com/nvidia/fleet-state-controller/internal/logger"
)

// heartbeatInterval is how often a held lock's connection is pinged to
// detect a dead session before the holder would otherwise notice on its
// own. Session-scoped advisory locks have no server-side TTL to refresh;
// the "heartbeat" here exists purely so our own process finds out its
// connection died instead of trusting a lease it silently lost.
const heartbeatInterval = 5 * time.Second

// Postgres is the advisory-lock-backed WorkLock. One Postgres value can
// serve every controller type in the process; each acquired lock pins
// its own connection out of pool for the lease's lifetime.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ controller.WorkLock = (*Postgres)(nil)

// New returns a work lock coordinator drawing pinned connections from pool.
func New(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// TryAcquire attempts to take the advisory lock for key. It never blocks
// on contention: if the key is already locked by another session,
// controller.ErrLockBusy is returned immediately and the connection this
// call acquired from the pool is released back to it. leaseTTL is not
// used: a held lock is checked every heartbeatInterval whatever its value.
func (p *Postgres) TryAcquire(ctx context.Context, key string, leaseTTL time.Duration) (controller.Lock, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("worklock: acquire connection: %w", err)
	}

	lockID := advisoryLockID(key)

	var acquired bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", lockID).Scan(&acquired); err != nil {
		conn.Release()
		return nil, fmt.Errorf("worklock: pg_try_advisory_lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, controller.ErrLockBusy
	}

	lock := &lease{
		conn:   conn,
		lockID: lockID,
		key:    key,
	}
	lock.startHeartbeat()
	return lock, nil
}

// lease is a held advisory lock. It owns its pinned connection until
// Release returns it to the pool (after unlocking) or its heartbeat
// observes the connection has died, at which point it marks itself
// poisoned so the holder stops trusting it.
type lease struct {
	conn   *pgxpool.Conn
	lockID int64
	key    string

	poisoned atomic.Bool
	stop     chan struct{}
}

var _ controller.Lock = (*lease)(nil)

func (l *lease) startHeartbeat() {
	l.stop = make(chan struct{})
	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-l.stop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), heartbeatInterval)
				_, err := l.conn.Exec(ctx, "SELECT 1")
				cancel()
				if err != nil {
					logger.Error("work lock heartbeat failed, poisoning lease",
						logger.LockKey(l.key), logger.Err(err))
					l.poisoned.Store(true)
					return
				}
			}
		}
	}()
}

// Release unlocks the advisory lock and returns the pinned connection to
// the pool. Safe to call even if the lease is already poisoned; a dead
// connection simply fails to unlock server-side and will be dropped by
// the pool instead of returned to it.
func (l *lease) Release(ctx context.Context) error {
	close(l.stop)

	var unlocked bool
	err := l.conn.QueryRow(ctx, "SELECT pg_advisory_unlock($1)", l.lockID).Scan(&unlocked)
	l.conn.Release()
	if err != nil {
		return fmt.Errorf("worklock: pg_advisory_unlock: %w", err)
	}
	return nil
}

// Poisoned reports whether the heartbeat has observed the pinned
// connection die.
func (l *lease) Poisoned() bool {
	return l.poisoned.Load()
}

// advisoryLockID hashes key into the int64 keyspace pg_try_advisory_lock
// expects. Collisions between controller types would merge their
// exclusion domains; FNV-1a's distribution is more than sufficient for
// the small, fixed set of controller types this process ever registers.
func advisoryLockID(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64())
}
