package ingest

import "fmt"

// Kind identifies the source file format.
type Kind string

const (
	// KindCSV is a comma (or custom delimiter) separated text file.
	KindCSV Kind = "csv"
	// KindParquet is an Apache Parquet file.
	KindParquet Kind = "parquet"
)

// Validate reports whether the kind is one querystore can import.
func (k Kind) Validate() error {
	switch k {
	case KindCSV, KindParquet:
		return nil
	default:
		return fmt.Errorf("unsupported file kind %q (want csv or parquet)", string(k))
	}
}

// Options carries format-specific import settings.
//
// The zero value means: CSV has a header row, comma-delimited. Parquet
// imports ignore the CSV fields entirely.
type Options struct {
	// NoHeader indicates the CSV file has no header row. Column names
	// then come from Columns, or are synthesized as c0..cN.
	NoHeader bool

	// Delimiter overrides the CSV field separator. Must be a single
	// character; empty means comma.
	Delimiter string

	// Columns overrides column names. Required for headerless CSV files
	// only when synthesized names are not acceptable.
	Columns []string

	// Bearer is an opaque authorization value attached to the fetch
	// request. querystore never interprets it.
	Bearer string
}

// delim resolves the effective CSV delimiter rune.
func (o Options) delim() (rune, error) {
	if o.Delimiter == "" {
		return ',', nil
	}
	runes := []rune(o.Delimiter)
	if len(runes) != 1 {
		return 0, fmt.Errorf("delimiter must be a single character, got %q", o.Delimiter)
	}
	return runes[0], nil
}

// Spec describes one import: where the data lives, what format it is in,
// and which table to materialize it into.
type Spec struct {
	URL     string
	Kind    Kind
	Table   string
	Options Options
}
