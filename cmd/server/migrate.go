package main

import (
	"fmt"

	"github.com/phrazzld/sitegen-api/internal/platform/postgres"
	"github.com/spf13/cobra"
)

func newMigrateCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|status|version]",
		Short:     "Apply the content schema migrations",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "status", "version"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger, err := root.loadConfig()
			if err != nil {
				return err
			}

			db, err := setupAppDatabase(ctx, cfg.Database, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := db.Close(); err != nil {
					logger.Error("error closing database connection", "error", err)
				}
			}()

			if err := postgres.Migrate(ctx, db, args[0], logger); err != nil {
				return fmt.Errorf("migration %s failed: %w", args[0], err)
			}
			return nil
		},
	}
}
