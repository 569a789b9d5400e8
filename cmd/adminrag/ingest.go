package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newIngestCmd(flags *globalFlags) *cobra.Command {
	var reset bool

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Index the knowledge directory into the vector store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			a, err := newKnowledgeApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			if reset {
				if err := a.knowledge.Reset(ctx); err != nil {
					return fmt.Errorf("resetting knowledge: %w", err)
				}
				a.logger.Info(ctx, "knowledge collection reset")
			}

			stats, err := a.knowledge.Ingest(ctx)
			if err != nil {
				return fmt.Errorf("ingesting knowledge: %w", err)
			}
			a.logger.Info(ctx, "knowledge ingested",
				zap.Int("sources", stats.KnowledgeSources),
				zap.Int("chunks", stats.KnowledgeChunks))

			return writeJSON(cmd, stats)
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "drop the collection before ingesting")
	return cmd
}

// writeJSON prints v as indented JSON on the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
