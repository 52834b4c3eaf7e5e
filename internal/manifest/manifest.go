// Package manifest loads CUE dataset manifests: declarative descriptions
// of the remote files a deployment wants materialized in the query store.
package manifest

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/token"

	"github.com/sciview/querystore/internal/ingest"
)

// Dataset is one named group of files loaded together.
type Dataset struct {
	Name  string
	Files []FileSpec
}

// FileSpec describes one file within a dataset.
type FileSpec struct {
	// Label is the file's key within the dataset's files struct.
	Label string

	// URL is the source location.
	URL string

	// Kind is the source format: csv or parquet.
	Kind ingest.Kind

	// Table is the target table name. Defaults to the label.
	Table string

	// StableID is the optional de-duplication key for URLs that churn.
	StableID string

	// Options carries format settings and the opaque bearer.
	Options ingest.Options
}

// CompileError is a structural or semantic error in a manifest value,
// carrying the offending field and CUE position for diagnostics.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// CompileDataset decodes a single dataset struct from a CUE value.
func CompileDataset(name string, v cue.Value) (*Dataset, error) {
	ds := &Dataset{Name: name}

	filesVal := v.LookupPath(cue.ParsePath("files"))
	if !filesVal.Exists() {
		return nil, &CompileError{Field: "files", Message: "dataset has no files", Pos: v.Pos()}
	}

	iter, err := filesVal.Fields()
	if err != nil {
		return nil, &CompileError{Field: "files", Message: err.Error(), Pos: filesVal.Pos()}
	}
	for iter.Next() {
		spec, err := compileFile(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		ds.Files = append(ds.Files, *spec)
	}

	if len(ds.Files) == 0 {
		return nil, &CompileError{Field: "files", Message: "dataset has no files", Pos: filesVal.Pos()}
	}
	return ds, nil
}

func compileFile(label string, v cue.Value) (*FileSpec, error) {
	spec := &FileSpec{Label: label, Table: label}

	url, err := stringField(v, "url")
	if err != nil {
		return nil, err
	}
	if url == "" {
		return nil, &CompileError{Field: "url", Message: "file has no url", Pos: v.Pos()}
	}
	spec.URL = url

	kind, err := stringField(v, "kind")
	if err != nil {
		return nil, err
	}
	spec.Kind = ingest.Kind(kind)
	if err := spec.Kind.Validate(); err != nil {
		return nil, &CompileError{Field: "kind", Message: err.Error(), Pos: v.LookupPath(cue.ParsePath("kind")).Pos()}
	}

	if table, err := stringField(v, "table"); err != nil {
		return nil, err
	} else if table != "" {
		spec.Table = table
	}

	if id, err := stringField(v, "stableId"); err != nil {
		return nil, err
	} else {
		spec.StableID = id
	}

	if err := compileOptions(v.LookupPath(cue.ParsePath("options")), &spec.Options); err != nil {
		return nil, err
	}
	return spec, nil
}

func compileOptions(v cue.Value, opts *ingest.Options) error {
	if !v.Exists() {
		return nil
	}

	if nh := v.LookupPath(cue.ParsePath("noHeader")); nh.Exists() {
		b, err := nh.Bool()
		if err != nil {
			return &CompileError{Field: "options.noHeader", Message: err.Error(), Pos: nh.Pos()}
		}
		opts.NoHeader = b
	}

	d, err := stringField(v, "delimiter")
	if err != nil {
		return err
	}
	opts.Delimiter = d

	if cols := v.LookupPath(cue.ParsePath("columns")); cols.Exists() {
		iter, err := cols.List()
		if err != nil {
			return &CompileError{Field: "options.columns", Message: err.Error(), Pos: cols.Pos()}
		}
		for iter.Next() {
			s, err := iter.Value().String()
			if err != nil {
				return &CompileError{Field: "options.columns", Message: err.Error(), Pos: iter.Value().Pos()}
			}
			opts.Columns = append(opts.Columns, s)
		}
	}

	b, err := stringField(v, "bearer")
	if err != nil {
		return err
	}
	opts.Bearer = b
	return nil
}

// stringField returns the string at path, or "" when absent.
func stringField(v cue.Value, path string) (string, error) {
	f := v.LookupPath(cue.ParsePath(path))
	if !f.Exists() {
		return "", nil
	}
	s, err := f.String()
	if err != nil {
		return "", &CompileError{Field: path, Message: err.Error(), Pos: f.Pos()}
	}
	return s, nil
}
