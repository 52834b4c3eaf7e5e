// Package ingest turns remote CSV and Parquet files into engine tables.
//
// An Importer fetches a URL to a temporary file, materializes it as a
// table through a private engine session, and verifies the import with a
// row-count probe. Fetching is retried on transient failures; the bearer
// value, when present, is attached verbatim and never inspected.
package ingest
