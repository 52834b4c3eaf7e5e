package engine

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/sciview/querystore/internal/store"
)

// PublishViewFromQuery creates (or replaces) a database-wide view defined
// by sql, visible to all connections, then bumps the shared-publication
// slot to {name, version+1}.
//
// Any consumer polling Publication sees the version change and can
// re-query the name to pick up new data - publisher and subscriber never
// reference each other. Views stay live: they re-evaluate against base
// tables on every read.
func (m *Manager) PublishViewFromQuery(ctx context.Context, name, sqlText, connectionID string) error {
	return m.publish(ctx, name, sqlText, connectionID, false)
}

// PublishTableFromQuery is PublishViewFromQuery with a materialized
// snapshot: the published table is isolated from later base-table
// mutation at the cost of duplicating storage.
func (m *Manager) PublishTableFromQuery(ctx context.Context, name, sqlText, connectionID string) error {
	return m.publish(ctx, name, sqlText, connectionID, true)
}

func (m *Manager) publish(ctx context.Context, name, sqlText, connectionID string, materialize bool) error {
	m.mu.Lock()
	c, ok := m.conns[connectionID]
	m.mu.Unlock()
	if !ok {
		return newConnectionNotFound(connectionID)
	}

	if err := m.replacePublished(ctx, c.conn, name, sqlText, materialize); err != nil {
		return newQueryError(err)
	}

	m.mu.Lock()
	m.pubName = name
	version := m.pubVersion.Next()
	m.mu.Unlock()

	m.metrics.publications.Inc()
	kind := "view"
	if materialize {
		kind = "table"
	}
	slog.Info("publication updated", "name", name, "version", version, "kind", kind)
	return nil
}

// replacePublished swaps the published object. A name may switch between
// view and table across publications, so both previous incarnations are
// dropped.
//
// Each statement autocommits: wrapping the swap in a transaction would
// pin the shared-cache schema lock for the full duration of a CREATE
// TABLE AS, stalling every other session's reads. The cost is a brief
// window where the name resolves to nothing; consumers only look for it
// after the version bump anyway.
func (m *Manager) replacePublished(ctx context.Context, conn *sql.Conn, name, sqlText string, materialize bool) error {
	quoted := store.QuoteIdent(name)
	if _, err := conn.ExecContext(ctx, "DROP VIEW IF EXISTS "+quoted); err != nil {
		return err
	}
	if _, err := conn.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoted); err != nil {
		return err
	}

	ddl := "CREATE VIEW " + quoted + " AS " + sqlText
	if materialize {
		ddl = "CREATE TABLE " + quoted + " AS " + sqlText
	}
	_, err := conn.ExecContext(ctx, ddl)
	return err
}
