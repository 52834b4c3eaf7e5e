package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/apache/arrow/go/v10/arrow"
	"github.com/apache/arrow/go/v10/arrow/array"
	"github.com/apache/arrow/go/v10/arrow/memory"
	"github.com/apache/arrow/go/v10/parquet/file"
	"github.com/apache/arrow/go/v10/parquet/pqarrow"

	"github.com/sciview/querystore/internal/store"
)

// importParquet materializes a Parquet file as a table.
//
// The whole file is read into an Arrow table first - this layer is scoped
// to moderate dataset sizes, same as query results.
func importParquet(ctx context.Context, conn *sql.Conn, table, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open downloaded parquet: %w", err)
	}
	defer f.Close()

	pf, err := file.NewParquetReader(f)
	if err != nil {
		return fmt.Errorf("read parquet metadata: %w", err)
	}
	defer pf.Close()

	mem := memory.NewGoAllocator()
	reader, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{}, mem)
	if err != nil {
		return fmt.Errorf("open arrow reader: %w", err)
	}

	tbl, err := reader.ReadTable(ctx)
	if err != nil {
		return fmt.Errorf("read parquet table: %w", err)
	}
	defer tbl.Release()

	schema := tbl.Schema()
	fields := schema.Fields()
	cols := make([]string, len(fields))
	types := make([]string, len(fields))
	for i, field := range fields {
		cols[i] = field.Name
		types[i] = sqlAffinity(field.Type)
	}

	// Column-major extraction, then row-major inserts.
	nrows := int(tbl.NumRows())
	values := make([][]any, len(fields))
	for c := range fields {
		vals := make([]any, 0, nrows)
		for _, chunk := range tbl.Column(c).Data().Chunks() {
			extracted, err := columnValues(chunk)
			if err != nil {
				return fmt.Errorf("column %s: %w", cols[c], err)
			}
			vals = append(vals, extracted...)
		}
		values[c] = vals
	}

	if err := replaceTable(ctx, conn, table, cols, types); err != nil {
		return err
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin import transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+store.QuoteIdent(table)); err != nil {
		return fmt.Errorf("clear table: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, insertSQL(table, len(cols)))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	args := make([]any, len(fields))
	for r := 0; r < nrows; r++ {
		for c := range fields {
			args[c] = values[c][r]
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert row %d: %w", r, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit import: %w", err)
	}
	return nil
}

// uint64Value converts an unsigned value for binding. SQLite integers
// are signed 64-bit, so values above MaxInt64 would flip sign under a
// direct cast; they are stored as decimal text instead.
func uint64Value(v uint64) any {
	if v > math.MaxInt64 {
		return strconv.FormatUint(v, 10)
	}
	return int64(v)
}

// sqlAffinity maps an Arrow field type to a SQLite column affinity.
func sqlAffinity(t arrow.DataType) string {
	switch t.ID() {
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64,
		arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64,
		arrow.BOOL:
		return "INTEGER"
	case arrow.FLOAT32, arrow.FLOAT64:
		return "REAL"
	default:
		return "TEXT"
	}
}

// columnValues flattens one Arrow chunk into driver-bindable values.
// Nulls map to nil; temporal types are rendered as RFC 3339 text.
func columnValues(chunk arrow.Array) ([]any, error) {
	n := chunk.Len()
	out := make([]any, n)

	set := func(i int, v any) {
		if chunk.IsNull(i) {
			out[i] = nil
		} else {
			out[i] = v
		}
	}

	switch arr := chunk.(type) {
	case *array.Int8:
		for i := 0; i < n; i++ {
			set(i, int64(arr.Value(i)))
		}
	case *array.Int16:
		for i := 0; i < n; i++ {
			set(i, int64(arr.Value(i)))
		}
	case *array.Int32:
		for i := 0; i < n; i++ {
			set(i, int64(arr.Value(i)))
		}
	case *array.Int64:
		for i := 0; i < n; i++ {
			set(i, arr.Value(i))
		}
	case *array.Uint8:
		for i := 0; i < n; i++ {
			set(i, int64(arr.Value(i)))
		}
	case *array.Uint16:
		for i := 0; i < n; i++ {
			set(i, int64(arr.Value(i)))
		}
	case *array.Uint32:
		for i := 0; i < n; i++ {
			set(i, int64(arr.Value(i)))
		}
	case *array.Uint64:
		for i := 0; i < n; i++ {
			set(i, uint64Value(arr.Value(i)))
		}
	case *array.Float32:
		for i := 0; i < n; i++ {
			set(i, float64(arr.Value(i)))
		}
	case *array.Float64:
		for i := 0; i < n; i++ {
			set(i, arr.Value(i))
		}
	case *array.String:
		for i := 0; i < n; i++ {
			set(i, arr.Value(i))
		}
	case *array.Binary:
		for i := 0; i < n; i++ {
			set(i, string(arr.Value(i)))
		}
	case *array.Boolean:
		for i := 0; i < n; i++ {
			v := int64(0)
			if arr.Value(i) {
				v = 1
			}
			set(i, v)
		}
	case *array.Timestamp:
		unit := arr.DataType().(*arrow.TimestampType).Unit
		for i := 0; i < n; i++ {
			set(i, arr.Value(i).ToTime(unit).UTC().Format(time.RFC3339Nano))
		}
	case *array.Date32:
		for i := 0; i < n; i++ {
			days := int64(arr.Value(i))
			set(i, time.Unix(days*86400, 0).UTC().Format("2006-01-02"))
		}
	case *array.Date64:
		for i := 0; i < n; i++ {
			ms := int64(arr.Value(i))
			set(i, time.UnixMilli(ms).UTC().Format("2006-01-02"))
		}
	default:
		return nil, fmt.Errorf("unsupported parquet column type %s", chunk.DataType())
	}

	return out, nil
}
