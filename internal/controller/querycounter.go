package controller

import (
	"context"
	"sync/atomic"
)

// QueryCounter accumulates the SQL statement and row counts for one
// iteration, rolled into the iteration span's sql_queries/sql_total_rows
// attributes — the supplemented "SQL query accounting" feature from the
// original's sqlx tracing shim (see SPEC_FULL.md §4). internal/store's
// GORM callbacks increment it; this package only needs to read it back
// once an iteration finishes.
type QueryCounter struct {
	queries atomic.Int64
	rows    atomic.Int64
}

// Add records one statement that affected/returned rows.
func (c *QueryCounter) Add(rows int64) {
	c.queries.Add(1)
	c.rows.Add(rows)
}

// Queries returns the number of statements observed so far.
func (c *QueryCounter) Queries() int64 { return c.queries.Load() }

// Rows returns the total rows affected/returned so far.
func (c *QueryCounter) Rows() int64 { return c.rows.Load() }

type queryCounterKey struct{}

// WithQueryCounter returns a context carrying a fresh QueryCounter and
// the counter itself, so a caller can read its totals once the scoped
// work is done.
func WithQueryCounter(ctx context.Context) (context.Context, *QueryCounter) {
	counter := &QueryCounter{}
	return context.WithValue(ctx, queryCounterKey{}, counter), counter
}

// QueryCounterFromContext returns the QueryCounter stashed by
// WithQueryCounter, or nil if ctx carries none.
func QueryCounterFromContext(ctx context.Context) *QueryCounter {
	counter, _ := ctx.Value(queryCounterKey{}).(*QueryCounter)
	return counter
}
