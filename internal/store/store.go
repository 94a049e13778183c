// Package store is the pgx persistence layer for the evaluation engine:
// goals, session events, progress snapshots, notification schedules, and
// the append-only message record log. Hot-path reads go through the
// prepared statements registered in internal/db; see migrations/schema.sql
// for the DDL.
package store

import (
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrConflict is returned when an optimistic write lost a race. It is
// normal control flow — the losing evaluator no-ops for the cycle.
var ErrConflict = errors.New("store: write conflict")

// Store holds the shared connection pool. One instance per process,
// constructed in main and injected everywhere.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store over an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}
