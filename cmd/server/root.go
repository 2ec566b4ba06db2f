package main

import (
	"fmt"
	"log/slog"

	"github.com/phrazzld/sitegen-api/internal/config"
	"github.com/phrazzld/sitegen-api/internal/platform/logger"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "sitegen",
		Short: "Asynchronous website generation service",
		Long: `sitegen accepts website generation requests over HTTP, queues them in
Redis and generates the website content in background workers.

Configuration is read from SITEGEN_* environment variables, an optional
config.yaml and a .env file in the working directory.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "",
		"config file (default: ./config.yaml when present)")

	cmd.AddCommand(
		newServeCmd(opts),
		newWorkerCmd(opts),
		newMigrateCmd(opts),
		newTokenCmd(opts),
	)
	return cmd
}

// loadConfig loads configuration and installs the configured logger as the
// process default.
func (o *rootOptions) loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadFile(o.configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	l, err := logger.Setup(cfg.Server)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	l.Info("configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"queue", cfg.Queue.Name,
		"worker_count", cfg.Queue.WorkerCount)
	if cfg.LLM.GeminiAPIKey == "" {
		l.Warn("llm.gemini_api_key is not set, generation jobs will fail")
	}
	return cfg, l, nil
}
