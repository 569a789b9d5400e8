package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/adminrag/internal/orchestrator"
)

func newRunCmd(flags *globalFlags) *cobra.Command {
	var req orchestrator.RunRequest

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process the inbox, plan and execute actions, and write the audit record",
		Long: `Process every supported document in the inbox, then plan and execute the
follow-up actions. Outputs are only written with --dry-run=false. The run
response is printed as JSON even when the run fails part way.`,
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
			defer a.close(ctx)

			if req.InboxDir == "" {
				req.InboxDir = cfg.Extraction.InboxDir
			}

			resp, runErr := a.runner.Run(ctx, req)
			if resp != nil {
				if err := writeJSON(cmd, resp); err != nil {
					return err
				}
			}
			if runErr != nil {
				return runErr
			}
			a.logger.Info(ctx, "run finished",
				zap.String("run.id", resp.RunID),
				zap.Int("records", len(resp.Records)),
				zap.String("audit", resp.Audit.Audit))
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&req.InboxDir, "inbox", "", "inbox directory (default from config)")
	f.StringVar(&req.Goal, "goal", "", "goal handed to the planner (default from config)")
	f.BoolVar(&req.DryRun, "dry-run", true, "plan and validate actions without writing outputs")
	f.StringVar(&req.PlanFile, "plan", "", "YAML, TOML or JSON plan file used instead of the planner")
	return cmd
}
