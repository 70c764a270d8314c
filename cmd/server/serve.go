package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/workflow-orchestrator/internal/container"
	httpserver "github.com/garyjia/workflow-orchestrator/internal/interfaces/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the auto-transition worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		c, cfg, logger, err := bootstrap(ctx, nil)
		if err != nil {
			return err
		}
		defer logger.Sync()
		defer c.Close()

		logger.Info("Starting workflow orchestrator",
			zap.Int("port", cfg.Server.Port),
			zap.Bool("auto_transition", cfg.AutoTransition.Enabled),
			zap.Bool("allow_execute", cfg.AutoTransition.AllowExecute))

		server := httpserver.NewServer(
			httpserver.ServerConfig{
				Host:            cfg.Server.Host,
				Port:            cfg.Server.Port,
				ReadTimeout:     cfg.Server.ReadTimeout,
				WriteTimeout:    cfg.Server.WriteTimeout,
				ShutdownTimeout: cfg.Server.ShutdownTimeout,
			},
			c.Services().Definition,
			c.Services().Instance,
			c.TransitionEngine(),
			container.NewLoggerAdapter(logger),
		)

		if err := server.Start(ctx); err != nil {
			return err
		}
		logger.Info("Workflow orchestrator stopped")
		return nil
	},
}
