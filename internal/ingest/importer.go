package ingest

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sciview/querystore/internal/store"
)

// Importer fetches and materializes source files into engine tables.
type Importer struct {
	fetcher *Fetcher
}

// NewImporter returns an Importer using the given fetcher.
// A nil fetcher gets the default retrying fetcher.
func NewImporter(f *Fetcher) *Importer {
	if f == nil {
		f = NewFetcher()
	}
	return &Importer{fetcher: f}
}

// Import downloads spec.URL and materializes it as spec.Table through the
// given session. Any existing table with that name is replaced: the DDL
// autocommits, then all inserts run in one transaction that starts by
// emptying the table, so the last committer's content wins whole even
// when duplicate imports race. Returns the imported row count, verified
// with a COUNT(*) probe after the load transaction commits.
func (im *Importer) Import(ctx context.Context, conn *sql.Conn, spec Spec) (int64, error) {
	if err := spec.Kind.Validate(); err != nil {
		return 0, err
	}

	path, cleanup, err := im.fetcher.Fetch(ctx, spec.URL, spec.Options.Bearer)
	if err != nil {
		return 0, err
	}
	defer cleanup()

	switch spec.Kind {
	case KindCSV:
		err = importCSV(ctx, conn, spec.Table, path, spec.Options)
	case KindParquet:
		err = importParquet(ctx, conn, spec.Table, path)
	}
	if err != nil {
		return 0, fmt.Errorf("import %s as %s: %w", spec.URL, spec.Table, err)
	}

	var count int64
	probe := "SELECT COUNT(*) FROM " + store.QuoteIdent(spec.Table)
	if err := conn.QueryRowContext(ctx, probe).Scan(&count); err != nil {
		return 0, fmt.Errorf("row-count probe for %s: %w", spec.Table, err)
	}

	return count, nil
}

// replaceTable drops any previous incarnation of the table and creates a
// fresh one. Both statements autocommit on purpose: an in-transaction
// CREATE TABLE holds the shared-cache schema lock until commit, which
// would stall every other session's reads for the whole insert phase.
// Autocommitting keeps the schema lock to two brief statements.
func replaceTable(ctx context.Context, conn *sql.Conn, table string, cols []string, types []string) error {
	if _, err := conn.ExecContext(ctx, "DROP TABLE IF EXISTS "+store.QuoteIdent(table)); err != nil {
		return fmt.Errorf("drop previous table: %w", err)
	}

	ddl := "CREATE TABLE " + store.QuoteIdent(table) + " ("
	for i, col := range cols {
		if i > 0 {
			ddl += ", "
		}
		ddl += store.QuoteIdent(col) + " " + types[i]
	}
	ddl += ")"

	if _, err := conn.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}

// insertSQL builds the prepared-statement text for a row insert.
func insertSQL(table string, ncols int) string {
	q := "INSERT INTO " + store.QuoteIdent(table) + " VALUES ("
	for i := 0; i < ncols; i++ {
		if i > 0 {
			q += ", "
		}
		q += "?"
	}
	return q + ")"
}
