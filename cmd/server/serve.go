package main

import (
	"context"

	"github.com/spf13/cobra"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var withWorkers bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP job control API",
		Long: `Start the HTTP API that accepts website generation requests.

By default the generation workers run in the same process. Pass
--workers=false to run them separately with the worker command.

Routes:
  POST   /websites/generate
  POST   /websites/{websiteId}/generate-more-blogs
  GET    /websites/jobs/{jobId}
  DELETE /websites/jobs/{jobId}
  GET    /websites/jobs/stats            (admin)
  POST   /websites/jobs/clear-pending    (admin)
  POST   /websites/jobs/pause            (admin)
  POST   /websites/jobs/resume           (admin)
  GET    /health
  GET    /metrics`,
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

			if withWorkers {
				if err := app.startWorkers(ctx); err != nil {
					return err
				}
			}

			jwtService, err := app.newJWTService()
			if err != nil {
				return err
			}
			jobService, err := app.newJobService()
			if err != nil {
				return err
			}

			router := newRouter(routerDeps{
				logger:     logger,
				gatherer:   app.registry,
				jwtService: jwtService,
				jobService: jobService,
			})
			return runHTTPServer(ctx, cfg.Server.Port, router, cfg.Server.ShutdownTimeout, logger)
		},
	}
	cmd.Flags().BoolVar(&withWorkers, "workers", true, "run generation workers in this process")
	return cmd
}
