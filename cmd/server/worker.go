package main

import (
	"context"

	"github.com/spf13/cobra"
)

func newWorkerCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run generation workers without the job control API",
		Long: `Run the generation workers that drain the job queue.

Only /health and /metrics are served on the configured port.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger, err := root.loadConfig()
			if err != nil {
				return err
			}

			app, err := newApplication(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
				defer cancel()
				app.cleanup(stopCtx)
			}()

			if err := app.startWorkers(ctx); err != nil {
				return err
			}

			router := newRouter(routerDeps{logger: logger, gatherer: app.registry})
			return runHTTPServer(ctx, cfg.Server.Port, router, cfg.Server.ShutdownTimeout, logger)
		},
	}
}
