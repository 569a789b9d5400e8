package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/adminrag/internal/knowledge"
)

func newWatchCmd(flags *globalFlags) *cobra.Command {
	var (
		debounce time.Duration
		initial  bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Rebuild the knowledge index whenever the directory changes",
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
			defer a.close(context.WithoutCancel(ctx))

			if initial {
				if _, err := a.knowledge.Rebuild(ctx); err != nil {
					return fmt.Errorf("initial rebuild: %w", err)
				}
			}

			w := knowledge.NewWatcher(cfg.Knowledge.Dir, a.knowledge, debounce, a.logger.Underlying().Named("watcher"))
			w.OnIngest = func(stats knowledge.IngestStats, err error) {
				if err != nil {
					return
				}
				a.logger.Info(ctx, "knowledge refreshed",
					zap.Int("sources", stats.KnowledgeSources),
					zap.Int("chunks", stats.KnowledgeChunks))
			}

			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", knowledge.DefaultDebounce, "quiet period before rebuilding")
	cmd.Flags().BoolVar(&initial, "rebuild", true, "rebuild once before watching")
	return cmd
}
