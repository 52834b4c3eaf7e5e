package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sciview/querystore/internal/engine"
	"github.com/sciview/querystore/internal/manifest"
)

// FileReport is the per-file outcome of a load run.
type FileReport struct {
	Dataset string `json:"dataset"`
	Label   string `json:"label"`
	Table   string `json:"table"`
	Rows    int64  `json:"rows,omitempty"`
	Error   string `json:"error,omitempty"`
}

// LoadReport is the load command's output payload.
type LoadReport struct {
	Files  []FileReport `json:"files"`
	Failed int          `json:"failed"`
}

// NewLoadCommand creates the load command.
func NewLoadCommand(rootOpts *RootOptions) *cobra.Command {
	var dataset string

	cmd := &cobra.Command{
		Use:   "load <manifest-dir>",
		Short: "Fetch and import every file in the manifests",
		Long: `Fetch and import every file declared by the CUE manifests into a
fresh engine instance, reporting per-file row counts.

The engine is ephemeral: this is a smoke run for manifests, not a
persistent store.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(rootOpts, args[0], dataset, cmd)
		},
	}

	cmd.Flags().StringVar(&dataset, "dataset", "", "load only the named dataset")
	return cmd
}

func runLoad(opts *RootOptions, dir, dataset string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	datasets, exitErr := loadManifests(formatter, dir, dataset)
	if exitErr != nil {
		return exitErr
	}

	m := engine.NewManager(engine.WithMaxRows(opts.MaxRows))
	defer m.PerformGlobalCleanup(context.Background())

	report := loadDatasets(ctx, m, formatter, datasets)

	if formatter.Format == "json" {
		if err := formatter.Success(report); err != nil {
			return err
		}
	} else {
		for _, f := range report.Files {
			if f.Error != "" {
				fmt.Fprintf(formatter.Writer, "✗ %s/%s: %s\n", f.Dataset, f.Label, f.Error)
				continue
			}
			fmt.Fprintf(formatter.Writer, "✓ %s/%s -> %s (%d rows)\n", f.Dataset, f.Label, f.Table, f.Rows)
		}
	}

	if report.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d file(s) failed to load", report.Failed))
	}
	return nil
}

// loadManifests loads the manifest dir and applies the dataset filter.
func loadManifests(formatter *OutputFormatter, dir, dataset string) ([]manifest.Dataset, *ExitError) {
	result, loadErrors := manifest.LoadDir(dir, manifest.LoadModeFailFast)
	if len(loadErrors) > 0 {
		var loadErr *manifest.LoadError
		code := manifest.ErrCodeGeneric
		if errors.As(loadErrors[0], &loadErr) {
			code = loadErr.Code
		}
		_ = formatter.Error(code, loadErrors[0].Error(), nil)
		return nil, NewExitError(ExitCommandError, loadErrors[0].Error())
	}

	if dataset == "" {
		return result.Datasets, nil
	}
	for _, ds := range result.Datasets {
		if ds.Name == dataset {
			return []manifest.Dataset{ds}, nil
		}
	}
	msg := fmt.Sprintf("dataset %q not found in manifests", dataset)
	_ = formatter.Error(manifest.ErrCodeNotFound, msg, nil)
	return nil, NewExitError(ExitCommandError, msg)
}

// loadDatasets runs every file through the manager, collecting outcomes
// instead of stopping at the first failure.
func loadDatasets(ctx context.Context, m *engine.Manager, formatter *OutputFormatter, datasets []manifest.Dataset) *LoadReport {
	report := &LoadReport{}
	for _, ds := range datasets {
		for _, f := range ds.Files {
			formatter.VerboseLog("Loading %s/%s from %s", ds.Name, f.Label, f.URL)

			table, err := m.LoadFile(ctx, engine.FileRequest{
				URL:        f.URL,
				Kind:       f.Kind,
				Table:      f.Table,
				Options:    f.Options,
				ConsumerID: "cli",
				StableID:   f.StableID,
			})
			entry := FileReport{Dataset: ds.Name, Label: f.Label, Table: f.Table}
			if err != nil {
				entry.Error = err.Error()
				report.Failed++
			} else {
				entry.Table = table
				if lf, ok := m.File(fileKey(f)); ok {
					entry.Rows = lf.Rows
				}
			}
			report.Files = append(report.Files, entry)
		}
	}
	return report
}

func fileKey(f manifest.FileSpec) string {
	if f.StableID != "" {
		return f.StableID
	}
	return f.URL
}
