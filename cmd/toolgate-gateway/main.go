package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"toolgate/internal/app"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	root := newRootCmd(logger)
	if err := root.Execute(); err != nil {
		logger.Fatal("command failed", zap.Error(err))
	}
}

func newRootCmd(logger *zap.Logger) *cobra.Command {
	configPath := "toolgate.yaml"

	root := &cobra.Command{
		Use:   "toolgate-gateway",
		Short: "Aggregating MCP gateway over multiple catalog servers",
	}

	root.PersistentFlags().StringVar(&configPath, "config", configPath, "path to runtime config file")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve the merged catalog of all configured upstreams",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalAwareContext(cmd.Context())
			defer cancel()

			application := app.New(logger)
			return application.ServeGateway(ctx, app.ServeConfig{
				ConfigPath: configPath,
			})
		},
	}

	validate := &cobra.Command{
		Use:   "validate",
		Short: "Validate gateway config without serving",
		RunE: func(cmd *cobra.Command, args []string) error {
			application := app.New(logger)
			return application.ValidateConfig(cmd.Context(), app.ValidateConfig{
				ConfigPath: configPath,
			})
		},
	}

	root.AddCommand(serve, validate)
	return root
}

func signalAwareContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(signals)
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
