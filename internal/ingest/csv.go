package ingest

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/sciview/querystore/internal/store"
)

// importCSV materializes a CSV file as a table.
//
// Column names come from the header row unless Options.NoHeader is set,
// in which case Options.Columns is used, falling back to synthesized
// c0..cN names. Column types (INTEGER, REAL, TEXT) are inferred from the
// first data row; values are bound as text and coerced by column
// affinity, with empty fields stored as NULL.
func importCSV(ctx context.Context, conn *sql.Conn, table, path string, opts Options) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open downloaded csv: %w", err)
	}
	defer f.Close()

	delim, err := opts.delim()
	if err != nil {
		return err
	}

	r := csv.NewReader(f)
	r.Comma = delim
	r.ReuseRecord = true

	cols, first, err := csvColumns(r, opts)
	if err != nil {
		return err
	}

	types := make([]string, len(cols))
	for i := range types {
		types[i] = "TEXT"
	}
	if first != nil {
		for i, field := range first {
			if i < len(types) {
				types[i] = inferAffinity(field)
			}
		}
	}

	if err := replaceTable(ctx, conn, table, cols, types); err != nil {
		return err
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin import transaction: %w", err)
	}
	defer tx.Rollback()

	// A racing duplicate import may have committed rows between the
	// CREATE above and this transaction; start from an empty table so
	// whichever commit lands last holds exactly one import's content.
	if _, err := tx.ExecContext(ctx, "DELETE FROM "+store.QuoteIdent(table)); err != nil {
		return fmt.Errorf("clear table: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, insertSQL(table, len(cols)))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	insert := func(record []string) error {
		args := make([]any, len(cols))
		for i := range cols {
			if i >= len(record) || record[i] == "" {
				args[i] = nil
			} else {
				args[i] = record[i]
			}
		}
		_, err := stmt.ExecContext(ctx, args...)
		return err
	}

	line := 0
	if first != nil {
		line++
		if err := insert(first); err != nil {
			return fmt.Errorf("insert row %d: %w", line, err)
		}
	}

	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("parse csv row %d: %w", line+1, err)
		}
		line++
		if err := insert(record); err != nil {
			return fmt.Errorf("insert row %d: %w", line, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit import: %w", err)
	}
	return nil
}

// csvColumns resolves the column names and returns the first data row,
// which doubles as the type-inference sample. first is nil when the file
// holds no data rows.
func csvColumns(r *csv.Reader, opts Options) (cols []string, first []string, err error) {
	record, err := r.Read()
	if errors.Is(err, io.EOF) {
		if opts.NoHeader && len(opts.Columns) == 0 {
			return nil, nil, fmt.Errorf("empty csv file with no header and no explicit columns")
		}
		if opts.NoHeader {
			return sanitizeColumns(opts.Columns), nil, nil
		}
		return nil, nil, fmt.Errorf("empty csv file")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read first csv row: %w", err)
	}

	if opts.NoHeader {
		first = append([]string(nil), record...)
		if len(opts.Columns) > 0 {
			cols = opts.Columns
		} else {
			cols = make([]string, len(record))
			for i := range record {
				cols[i] = "c" + strconv.Itoa(i)
			}
		}
		if len(cols) != len(record) {
			return nil, nil, fmt.Errorf("explicit columns: got %d names for %d fields", len(cols), len(record))
		}
		return sanitizeColumns(cols), first, nil
	}

	cols = sanitizeColumns(record)

	next, err := r.Read()
	if errors.Is(err, io.EOF) {
		return cols, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read first data row: %w", err)
	}
	return cols, append([]string(nil), next...), nil
}

// sanitizeColumns trims whitespace and fills in names for blank headers.
func sanitizeColumns(raw []string) []string {
	cols := make([]string, len(raw))
	for i, c := range raw {
		c = strings.TrimSpace(c)
		if c == "" {
			c = "c" + strconv.Itoa(i)
		}
		cols[i] = c
	}
	return cols
}

// inferAffinity picks a SQLite column affinity from a sample value.
func inferAffinity(sample string) string {
	if sample == "" {
		return "TEXT"
	}
	if _, err := strconv.ParseInt(sample, 10, 64); err == nil {
		return "INTEGER"
	}
	if _, err := strconv.ParseFloat(sample, 64); err == nil {
		return "REAL"
	}
	return "TEXT"
}
