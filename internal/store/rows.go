package store

import (
	"database/sql"
	"time"
)

// Collect drains rows into memory, returning the column list in query
// order plus one name->value map per row.
//
// The full result set is materialized eagerly - there is no cursor or
// streaming contract at this layer. Callers needing pagination issue
// LIMIT/OFFSET queries themselves.
func Collect(rows *sql.Rows) ([]string, []map[string]any, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}

		rec := make(map[string]any, len(cols))
		for i, col := range cols {
			rec[col] = normalize(vals[i])
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	return cols, out, nil
}

// normalize converts driver-native values into plain scalars.
// BLOB/TEXT columns come back as []byte from the driver; row records
// expose them as strings so results serialize cleanly.
func normalize(v any) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	default:
		return v
	}
}
