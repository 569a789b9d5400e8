// Command adminrag turns scanned payment slips into validated records and
// runs the follow-up actions (spreadsheet export, report) under audit.
//
// Usage:
//
//	# Index the knowledge directory
//	adminrag ingest --reset
//
//	# Process the inbox without writing outputs
//	adminrag run --inbox inbox
//
//	# Write outputs, following a fixed plan
//	adminrag run --dry-run=false --plan plans/monthly.yaml
//
//	# Serve the HTTP API or MCP over stdio
//	adminrag serve
//	adminrag mcp
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/adminrag/internal/config"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	envFile    string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "adminrag",
		Short:         "Extract and validate payment-slip records, then run audited actions",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "dotenv file loaded before configuration (missing file is ignored)")

	root.AddCommand(
		newIngestCmd(flags),
		newRunCmd(flags),
		newServeCmd(flags),
		newWatchCmd(flags),
		newMCPCmd(flags),
		newVersionCmd(),
	)
	return root
}

// loadConfig applies the dotenv file, then reads and validates the config.
// Variables already set in the environment win over the dotenv file.
func (f *globalFlags) loadConfig() (*config.Config, error) {
	if f.envFile != "" {
		if err := godotenv.Load(f.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", f.envFile, err)
		}
	}
	return config.LoadWithFile(f.configPath)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "adminrag %s (commit %s, built %s)\n", version, gitCommit, buildDate)
		},
	}
}
