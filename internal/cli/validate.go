package cli

import (
	"errors"
	"fmt"

	"cuelang.org/go/cue/token"
	"github.com/spf13/cobra"

	"github.com/sciview/querystore/internal/manifest"
)

// ValidationIssue is one manifest problem, flattened for output.
type ValidationIssue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Datasets int               `json:"datasets"`
	Files    int               `json:"files"`
	Errors   []ValidationIssue `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <manifest-dir>",
		Short: "Validate dataset manifests without loading anything",
		Long: `Validate CUE dataset manifests without fetching or importing data.

Checks syntax, required fields, and supported file kinds. Faster than a
full load for development feedback.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	result, loadErrors := manifest.LoadDir(dir, manifest.LoadModeCollectAll)
	if result == nil && len(loadErrors) > 0 {
		var loadErr *manifest.LoadError
		if errors.As(loadErrors[0], &loadErr) {
			_ = formatter.Error(loadErr.Code, loadErr.Message, nil)
			return NewExitError(ExitCommandError, loadErr.Error())
		}
		_ = formatter.Error(manifest.ErrCodeGeneric, loadErrors[0].Error(), nil)
		return NewExitError(ExitCommandError, loadErrors[0].Error())
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", result.FileCount, dir)

	fileCount := 0
	for _, ds := range result.Datasets {
		formatter.VerboseLog("Validated dataset: %s (%d files)", ds.Name, len(ds.Files))
		fileCount += len(ds.Files)
	}

	out := ValidationResult{
		Valid:    len(loadErrors) == 0,
		Datasets: len(result.Datasets),
		Files:    fileCount,
	}
	for _, err := range loadErrors {
		out.Errors = append(out.Errors, toIssue(err))
	}

	if !out.Valid {
		if formatter.Format == "json" {
			_ = formatter.Success(out)
		} else {
			fmt.Fprintln(formatter.Writer, "✗ Validation failed")
			fmt.Fprintln(formatter.Writer)
			for _, issue := range out.Errors {
				if issue.Line > 0 {
					fmt.Fprintf(formatter.Writer, "%s:%d\n", issue.File, issue.Line)
				}
				fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", issue.Code, issue.Message)
			}
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(out.Errors)))
	}

	if formatter.Format == "json" {
		return formatter.Success(out)
	}
	fmt.Fprintf(formatter.Writer, "✓ %d dataset(s), %d file(s) valid\n", out.Datasets, out.Files)
	return nil
}

func toIssue(err error) ValidationIssue {
	var loadErr *manifest.LoadError
	if errors.As(err, &loadErr) {
		return ValidationIssue{
			Code:    loadErr.Code,
			Message: loadErr.Message,
			File:    posFile(loadErr.Pos),
			Line:    posLine(loadErr.Pos),
		}
	}
	return ValidationIssue{Code: manifest.ErrCodeGeneric, Message: err.Error()}
}

func posFile(pos token.Pos) string {
	if pos.IsValid() {
		return pos.Filename()
	}
	return ""
}

func posLine(pos token.Pos) int {
	if pos.IsValid() {
		return pos.Line()
	}
	return 0
}
