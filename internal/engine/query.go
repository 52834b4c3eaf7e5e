package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sciview/querystore/internal/store"
)

// Result is an eagerly materialized query result: the column list in
// query order plus one name->value map per row. The schema is
// query-determined, not statically known, so rows are dynamic records
// rather than fixed structs.
type Result struct {
	Columns []string
	Rows    []map[string]any
}

// ExecuteQuery runs sql on the identified connection and pulls the full
// result set into memory before returning. No streaming or pagination
// exists at this layer; callers needing pages issue LIMIT/OFFSET queries.
//
// Fails with CONNECTION_NOT_FOUND when connectionID does not reference an
// open connection. SQL errors from the engine propagate as QUERY_FAILED
// without interpretation or retry.
func (m *Manager) ExecuteQuery(ctx context.Context, sql, connectionID string) (*Result, error) {
	m.mu.Lock()
	c, ok := m.conns[connectionID]
	m.mu.Unlock()
	if !ok {
		return nil, newConnectionNotFound(connectionID)
	}

	rows, err := c.conn.QueryContext(ctx, sql)
	if err != nil {
		m.metrics.queries.WithLabelValues("error").Inc()
		return nil, newQueryError(err)
	}

	cols, recs, err := store.Collect(rows)
	if err != nil {
		m.metrics.queries.WithLabelValues("error").Inc()
		return nil, newQueryError(err)
	}

	if m.maxRows > 0 && len(recs) > m.maxRows {
		m.metrics.queries.WithLabelValues("error").Inc()
		return nil, newQueryError(fmt.Errorf("result has %d rows, limit is %d", len(recs), m.maxRows))
	}

	m.metrics.queries.WithLabelValues("ok").Inc()
	slog.Debug("query executed", "connection_id", connectionID, "rows", len(recs))
	return &Result{Columns: cols, Rows: recs}, nil
}
