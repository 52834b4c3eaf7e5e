package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sciview/querystore/internal/engine"
)

// QueryReport is the query command's output payload.
type QueryReport struct {
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	var dataset string

	cmd := &cobra.Command{
		Use:   "query <manifest-dir> <sql>",
		Short: "Load the manifests and run a query",
		Long: `Load every file declared by the CUE manifests into a fresh engine
instance, run the given SQL, and print the result.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(rootOpts, args[0], args[1], dataset, cmd)
		},
	}

	cmd.Flags().StringVar(&dataset, "dataset", "", "load only the named dataset")
	return cmd
}

func runQuery(opts *RootOptions, dir, sqlText, dataset string, cmd *cobra.Command) error {
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
	if report.Failed > 0 {
		for _, f := range report.Files {
			if f.Error != "" {
				_ = formatter.Error("E001", fmt.Sprintf("%s/%s: %s", f.Dataset, f.Label, f.Error), nil)
			}
		}
		return NewExitError(ExitFailure, fmt.Sprintf("%d file(s) failed to load", report.Failed))
	}

	conn, err := m.CreateConnection(ctx, "cli")
	if err != nil {
		_ = formatter.Error("E001", err.Error(), nil)
		return WrapExitError(ExitCommandError, "opening connection", err)
	}

	result, err := m.ExecuteQuery(ctx, sqlText, conn.ID)
	if err != nil {
		_ = formatter.Error("E001", err.Error(), nil)
		return WrapExitError(ExitFailure, "query failed", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(QueryReport{Columns: result.Columns, Rows: result.Rows})
	}
	return printTable(formatter, result)
}

// printTable renders a result as an aligned text table.
func printTable(formatter *OutputFormatter, result *engine.Result) error {
	w := tabwriter.NewWriter(formatter.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(result.Columns, "\t"))

	for _, row := range result.Rows {
		cells := make([]string, len(result.Columns))
		for i, col := range result.Columns {
			cells[i] = formatCell(row[col])
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(formatter.Writer, "(%d rows)\n", len(result.Rows))
	return nil
}

func formatCell(v any) string {
	if v == nil {
		return "NULL"
	}
	return fmt.Sprintf("%v", v)
}
