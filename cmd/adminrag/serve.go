package main

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/adminrag/internal/http"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	var host string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
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

			srv, err := http.NewServer(a.knowledge, a.runner, a.logger.Named("http"), &http.Config{
				Host: host,
				Port: cfg.Server.Port,
			})
			if err != nil {
				return fmt.Errorf("creating http server: %w", err)
			}

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err := <-errCh:
				if errors.Is(err, nethttp.ErrServerClosed) {
					return nil
				}
				return fmt.Errorf("http server: %w", err)
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout.Duration())
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.logger.Error(shutdownCtx, "http shutdown failed", zap.Error(err))
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "address to listen on")
	return cmd
}
