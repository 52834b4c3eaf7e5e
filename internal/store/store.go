package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Store wraps the embedded SQLite engine backing querystore.
//
// The engine runs on a named shared-cache in-memory database, so every
// session handed out by Session sees the same tables and views. This is
// what lets one consumer's published view be queried by all the others.
//
// The database exists only as long as at least one connection to it is
// open, so Store pins a keepalive session for its own lifetime. Close
// releases it and the engine's contents are gone.
type Store struct {
	db   *sql.DB
	keep *sql.Conn
	name string
}

// Open creates a fresh in-memory engine instance.
//
// Each call creates an independent database under a unique name, so two
// Stores never share state. The DSN carries shared cache (all sessions
// observe the same schema) and a 5-second busy timeout; DSN parameters
// apply to every connection the pool opens, unlike a db-level PRAGMA,
// which lands on whichever single pooled connection happens to run it.
func Open(ctx context.Context) (*Store, error) {
	name := "querystore-" + uuid.NewString()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", name)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open engine: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to engine: %w", err)
	}

	// Pin one session for the Store's lifetime. Without it the in-memory
	// database is dropped the moment the pool goes idle.
	keep, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to pin keepalive session: %w", err)
	}

	return &Store{db: db, keep: keep, name: name}, nil
}

// Close tears down the engine. All tables and views are lost. Sessions
// requested after Close fail with the pool's closed-database error
// rather than panicking.
func (s *Store) Close() error {
	if s.keep != nil {
		s.keep.Close()
		s.keep = nil
	}
	return s.db.Close()
}

// Session returns a dedicated connection to the shared engine.
// The caller owns it and must Close it when done.
//
// Shared-cache readers normally fail with SQLITE_LOCKED the moment any
// other session holds a write transaction, and busy_timeout does not
// cover that error. read_uncommitted opts the session out of table read
// locks, so queries keep answering while an import batch is committing
// elsewhere. The pragma is per-connection state, which is why it is
// applied here and not once at Open.
func (s *Store) Session(ctx context.Context) (*sql.Conn, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := conn.ExecContext(ctx, "PRAGMA read_uncommitted = ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to configure session: %w", err)
	}
	return conn, nil
}

// DB returns the underlying sql.DB for direct access.
// Use with caution - prefer Session for consumer-scoped work.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Name returns the engine's database name. Useful for diagnostics.
func (s *Store) Name() string {
	return s.name
}
