// Command querystore loads CUE dataset manifests into an embedded SQL
// engine and queries them.
package main

import (
	"log/slog"
	"os"

	"github.com/sciview/querystore/internal/cli"
)

func main() {
	level := slog.LevelWarn
	if os.Getenv("QUERYSTORE_DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(cli.GetExitCode(err))
	}
}
