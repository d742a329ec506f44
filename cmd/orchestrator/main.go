package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/seoforge/orchestrator/internal/auditworker"
	"github.com/seoforge/orchestrator/internal/cli"
	"github.com/seoforge/orchestrator/internal/config"
	"github.com/seoforge/orchestrator/internal/engine"
	"github.com/seoforge/orchestrator/internal/httpserver"
	"github.com/seoforge/orchestrator/internal/logging"
	"github.com/seoforge/orchestrator/internal/otel"
)

func main() {
	rootCmd := cli.NewRootCommand()

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		startServer(configPath)
		return nil
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func startServer(configPath string) {
	app := fx.New(
		config.Module(configPath),
		logging.Module("seo-orchestrator"),
		engine.Module(),
		httpserver.Module(),
		auditworker.Module(),
		fx.Invoke(registerTelemetry),
	)

	app.Run()
}

func registerTelemetry(lc fx.Lifecycle, logger *zap.Logger) {
	var shutdown func(context.Context) error
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			stop, err := otel.Init("seo-orchestrator")
			if err != nil {
				logger.Warn("telemetry disabled", zap.Error(err))
				return nil
			}
			shutdown = stop
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if shutdown == nil {
				return nil
			}
			return shutdown(ctx)
		},
	})
}
