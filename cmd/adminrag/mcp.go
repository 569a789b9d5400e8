package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/adminrag/internal/mcp"
)

func newMCPCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the pipeline as MCP tools over stdio",
		Long: `Serve ingest_knowledge and run_pipeline over the MCP stdio transport.
Logs go to stderr; stdout carries protocol messages only.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			a, err := newPipelineApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close(context.WithoutCancel(ctx))

			srv, err := mcp.NewServer(&mcp.Config{
				Name:    "adminrag",
				Version: version,
				Logger:  a.logger.Named("mcp"),
			}, a.knowledge, a.runner)
			if err != nil {
				return fmt.Errorf("creating mcp server: %w", err)
			}

			if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}
