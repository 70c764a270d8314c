package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/workflow-orchestrator/internal/config"
	"github.com/garyjia/workflow-orchestrator/internal/container"
	"github.com/garyjia/workflow-orchestrator/pkg/utils"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "server",
	Short:         "Multi-tenant workflow orchestration engine",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "path to the YAML configuration file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(checkAICmd)
}

// bootstrap loads configuration, builds the logger and starts a container.
// adjust may tweak the container config before it is validated.
func bootstrap(ctx context.Context, adjust func(*container.Config)) (*container.Container, *config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(cfg.ToLoggerConfig())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	containerCfg := cfg.ToContainerConfig()
	if adjust != nil {
		adjust(containerCfg)
	}

	c, err := container.NewContainer(containerCfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := c.Start(ctx); err != nil {
		_ = c.Close()
		return nil, nil, nil, err
	}
	return c, cfg, logger, nil
}

// withoutWorkers disables the scheduled worker for one-shot commands
func withoutWorkers(cfg *container.Config) {
	cfg.AutoTransition.Enabled = false
}
