package engine

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sort"
	"time"
)

// Connection is one consumer's logical session against the shared engine.
// The consumer owns it from CreateConnection until CloseConnection.
type Connection struct {
	// ID is the connection identifier, caller-supplied or generated.
	ID string

	// CreatedAt records when the connection was registered.
	CreatedAt time.Time

	conn *sql.Conn
}

// Native returns the engine-native session underlying this connection.
// Everything the manager's contract covers is available without it;
// it exists for consumers that need direct engine access.
func (c *Connection) Native() *sql.Conn {
	return c.conn
}

// CreateConnection opens a logical connection for a consumer. An empty
// consumerID gets a generated id. Triggers EnsureInitialized when the
// engine is not up yet; that is the only failure mode beyond session
// allocation itself.
func (m *Manager) CreateConnection(ctx context.Context, consumerID string) (*Connection, error) {
	if err := m.EnsureInitialized(ctx); err != nil {
		return nil, err
	}

	id := consumerID
	if id == "" {
		id = m.idGen.Generate()
	}

	m.mu.Lock()
	st := m.store
	m.mu.Unlock()
	if st == nil {
		// Torn down between EnsureInitialized and the capture.
		return nil, newInitError(errors.New("engine was shut down"))
	}

	native, err := st.Session(ctx)
	if err != nil {
		return nil, newInitError(err)
	}

	c := &Connection{ID: id, CreatedAt: time.Now(), conn: native}

	m.mu.Lock()
	displaced := m.conns[id]
	m.conns[id] = c
	m.mu.Unlock()

	// A re-registered id replaces the old session rather than leaking it.
	if displaced != nil {
		if err := displaced.conn.Close(); err != nil {
			slog.Warn("failed to close displaced connection",
				"connection_id", id, "error", err)
		}
	} else {
		m.metrics.openConns.Inc()
	}

	slog.Debug("connection opened", "connection_id", id)
	return c, nil
}

// CloseConnection closes the native session, removes the connection from
// the registry, and removes its id from every file-usage set. Closing an
// unknown id is a no-op, not an error - close is idempotent.
//
// Files the connection depended on stay loaded: teardown of loaded files
// is explicit (UnloadFile) or advisory (Reaper), never cascaded.
func (m *Manager) CloseConnection(ctx context.Context, connectionID string) error {
	m.mu.Lock()
	c, ok := m.conns[connectionID]
	if ok {
		delete(m.conns, connectionID)
	}
	for _, users := range m.usage {
		delete(users, connectionID)
	}
	m.mu.Unlock()

	if !ok {
		return nil
	}

	m.metrics.openConns.Dec()
	if err := c.conn.Close(); err != nil {
		slog.Warn("failed to close native session",
			"connection_id", connectionID, "error", err)
	}

	slog.Debug("connection closed", "connection_id", connectionID)
	return nil
}

// Connection looks up an open connection by id.
func (m *Manager) Connection(connectionID string) (*Connection, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conns[connectionID]
	return c, ok
}

// ConnectionIDs returns the ids of all open connections, sorted.
// Used for diagnostics and testing.
func (m *Manager) ConnectionIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.conns))
	for id := range m.conns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
