package store

import "strings"

// QuoteIdent quotes a table, view, or column name for safe interpolation
// into DDL. Identifiers cannot be bound as parameters, so every statement
// that splices a caller-supplied name goes through here.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
