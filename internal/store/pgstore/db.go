// Package pgstore is the Postgres-backed realization of the internal/store
// interfaces, grounded on the teacher's direct database/sql + lib/pq style
// in internal/gvisor/database_state.go (rather than the teacher's Supabase
// REST client, which cannot express the transactional uniqueness
// constraints spec §5 requires).
package pgstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// DB wraps a *sql.DB and is held by every entity-specific store so they
// share one connection pool, matching the teacher's single-client-per-wrapper
// pattern in internal/database/supabase.go.
type DB struct {
	conn *sql.DB
}

// Open connects to Postgres and verifies connectivity.
func Open(ctx context.Context, dsn string) (*DB, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("pgstore: open: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pgstore: ping: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close releases the underlying connection pool.
func (d *DB) Close() error { return d.conn.Close() }

// isUniqueViolation reports whether err is a Postgres unique-constraint
// violation (SQLSTATE 23505), the signal the session open-invariant and the
// decision-per-session invariant rely on per spec §5.
func isUniqueViolation(err error) bool {
	pqErr, ok := err.(*pq.Error)
	if !ok {
		return false
	}
	return pqErr.Code == "23505"
}
