// Package mcpsession implements the SQLite-backed MCP session store of
// SPEC_FULL.md §4.5/§9: session identity survives a plexus restart even
// though the in-memory worker it belonged to does not. Grounded on
// original_source/src/mcp_session.rs's SqliteSessionManager, using
// modernc.org/sqlite (a pure-Go driver, no cgo) via database/sql instead of
// sqlx, the same relational-access idiom pgollucci-loom's internal/database
// package uses for its own schema/migration/query shape.
package mcpsession

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultMaxAge is the retention window after which a session row is
// eligible for cleanup, mirroring mcp_session.rs's DEFAULT_SESSION_MAX_AGE
// (30 days).
const DefaultMaxAge = 30 * 24 * time.Hour

const schemaDDL = `
CREATE TABLE IF NOT EXISTS mcp_sessions (
	id TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL,
	last_seen_at INTEGER NOT NULL
);
`

// Store persists MCP session identity to SQLite. It tracks which sessions
// have a live in-process worker (the workers set) separately from which
// session ids are merely recorded in the database — a session row with no
// live worker is "stale" and is deleted the moment it is observed, per the
// consolidated HasSession semantics below.
type Store struct {
	db     *sql.DB
	maxAge time.Duration

	mu      sync.RWMutex
	workers map[string]struct{}
}

// Open opens (creating if necessary) a SQLite database at path, runs the
// schema migration, and purges sessions older than maxAge. maxAge defaults
// to DefaultMaxAge if zero.
func Open(ctx context.Context, path string, maxAge time.Duration) (*Store, error) {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("mcpsession: open %s: %w", path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("mcpsession: ping %s: %w", path, err)
	}
	// SQLite only supports one writer at a time; a single connection avoids
	// SQLITE_BUSY under concurrent session churn.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("mcpsession: migrate: %w", err)
	}

	s := &Store{db: db, maxAge: maxAge, workers: make(map[string]struct{})}
	if _, err := s.CleanupOldSessions(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateSession records a new session and marks it as having a live worker.
func (s *Store) CreateSession(ctx context.Context, id string) error {
	now := time.Now().UTC().Unix()
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO mcp_sessions (id, created_at, last_seen_at) VALUES (?, ?, ?)`,
		id, now, now)
	if err != nil {
		return fmt.Errorf("mcpsession: create %s: %w", id, err)
	}
	s.mu.Lock()
	s.workers[id] = struct{}{}
	s.mu.Unlock()
	return nil
}

// Touch updates a session's last_seen_at to now, best-effort cache-refresh
// bookkeeping for an active session.
func (s *Store) Touch(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE mcp_sessions SET last_seen_at = ? WHERE id = ?`,
		time.Now().UTC().Unix(), id)
	if err != nil {
		return fmt.Errorf("mcpsession: touch %s: %w", id, err)
	}
	return nil
}

// HasSession is the single authoritative entry point spec.md's Open Question
// resolution demands (SPEC_FULL.md §9): it checks the in-memory worker set
// first, and only if absent checks the database row, deleting it if found
// (a stale row with no worker behind it) and reporting false either way. No
// separate probe-then-delete call pair exists anywhere else in this package.
func (s *Store) HasSession(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	_, live := s.workers[id]
	s.mu.RUnlock()
	if live {
		return true, nil
	}

	row := s.db.QueryRowContext(ctx, `SELECT 1 FROM mcp_sessions WHERE id = ?`, id)
	var one int
	switch err := row.Scan(&one); err {
	case nil:
		// Session recorded but no live worker: the worker died with the
		// previous process. Remove the stale row so future HasSession calls
		// short-circuit without a wasted query.
		if _, delErr := s.db.ExecContext(ctx, `DELETE FROM mcp_sessions WHERE id = ?`, id); delErr != nil {
			return false, fmt.Errorf("mcpsession: remove stale session %s: %w", id, delErr)
		}
		return false, nil
	case sql.ErrNoRows:
		return false, nil
	default:
		return false, fmt.Errorf("mcpsession: check %s: %w", id, err)
	}
}

// CloseSession removes a session's live-worker marker and its database row.
func (s *Store) CloseSession(ctx context.Context, id string) error {
	s.mu.Lock()
	delete(s.workers, id)
	s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM mcp_sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mcpsession: close %s: %w", id, err)
	}
	return nil
}

// CleanupOldSessions deletes every session row whose last_seen_at is older
// than maxAge, returning the number of rows removed, per mcp_session.rs's
// startup cleanup pass.
func (s *Store) CleanupOldSessions(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-s.maxAge).Unix()
	result, err := s.db.ExecContext(ctx, `DELETE FROM mcp_sessions WHERE last_seen_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("mcpsession: cleanup: %w", err)
	}
	return result.RowsAffected()
}

// Count returns the number of session rows currently persisted, used for
// startup diagnostics ("found N persisted sessions").
func (s *Store) Count(ctx context.Context) (int64, error) {
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM mcp_sessions`)
	var n int64
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("mcpsession: count: %w", err)
	}
	return n, nil
}
