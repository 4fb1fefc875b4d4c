// Package app wires the loaded configuration into running services: the
// policy-governed catalog server and the multi-upstream gateway.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"toolgate/internal/domain"
	"toolgate/internal/infra/aggregator"
	"toolgate/internal/infra/catalog"
	"toolgate/internal/infra/config"
	"toolgate/internal/infra/executor"
	"toolgate/internal/infra/rpcserver"
	"toolgate/internal/infra/telemetry"
	"toolgate/internal/infra/transport"
	"toolgate/internal/infra/upstream"
)

type App struct {
	logger *zap.Logger
}

type ServeConfig struct {
	ConfigPath string
}

type ValidateConfig struct {
	ConfigPath string
}

func New(logger *zap.Logger) *App {
	return &App{
		logger: logger.Named("app"),
	}
}

// Serve runs the catalog server: a policy file governs which tools are
// exposed, and calls are executed against the configured backend API.
func (a *App) Serve(ctx context.Context, cfg ServeConfig) error {
	loader := config.NewLoader(a.logger)
	runtime, err := loader.Load(ctx, cfg.ConfigPath)
	if err != nil {
		return err
	}
	if runtime.PolicyPath == "" {
		return errors.New("serve requires policyPath; aggregate upstreams with the gateway binary instead")
	}

	a.logger.Info("configuration loaded",
		zap.String("config", cfg.ConfigPath),
		zap.String("policy", runtime.PolicyPath),
		zap.String("transport", string(runtime.Transport)))

	metrics := a.metricsFor(runtime)

	policy := catalog.NewFilePolicyProvider(runtime.PolicyPath, a.logger)
	builder := catalog.NewBuilder(a.logger, metrics)
	provider := catalog.NewProvider(policy, builder, a.logger, metrics)

	// Fail fast on an unreadable or malformed policy instead of serving
	// an empty catalog.
	snapshot, err := provider.EnsureFreshSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("initial catalog build: %w", err)
	}
	a.logger.Info("catalog ready",
		zap.Int("tools", len(snapshot.Tools)),
		zap.String("sourceVersion", snapshot.SourceVersion))

	provider.WarmOnChange(ctx)

	go a.serveObservability(ctx, runtime, telemetry.HTTPServerOptions{
		ServiceName: runtime.ServerName,
		Snapshot:    provider,
		Skips:       provider,
	})

	exec := executor.NewHTTPExecutor(runtime.Executor, a.logger)
	handler := rpcserver.NewHandler(runtime.ServerName, provider, exec, a.logger, metrics)
	return a.runTransport(ctx, runtime, handler)
}

// ServeGateway runs the aggregating gateway: every configured upstream is
// polled for its catalog, the merged snapshot is served, and tool calls
// are routed back to the upstream that owns them.
func (a *App) ServeGateway(ctx context.Context, cfg ServeConfig) error {
	loader := config.NewLoader(a.logger)
	runtime, err := loader.Load(ctx, cfg.ConfigPath)
	if err != nil {
		return err
	}
	if len(runtime.Upstreams) == 0 {
		return errors.New("gateway requires at least one upstream")
	}
	serverName := runtime.ServerName
	if serverName == domain.DefaultServerName {
		serverName = domain.DefaultGatewayName
	}

	a.logger.Info("configuration loaded",
		zap.String("config", cfg.ConfigPath),
		zap.Int("upstreams", len(runtime.Upstreams)),
		zap.String("transport", string(runtime.Transport)))

	metrics := a.metricsFor(runtime)

	clients := make([]*upstream.Client, 0, len(runtime.Upstreams))
	sources := make([]aggregator.Upstream, 0, len(runtime.Upstreams))
	for _, spec := range runtime.Upstreams {
		client := upstream.NewClient(spec, nil, a.logger)
		clients = append(clients, client)
		sources = append(sources, aggregator.Upstream{ID: spec.ID, Source: client})
	}

	agg := aggregator.New(aggregator.Options{
		Upstreams:   sources,
		Interval:    loader.IntervalProvider(cfg.ConfigPath, runtime.Refresh.RefreshInterval()),
		Concurrency: runtime.Refresh.Concurrency,
		Logger:      a.logger,
		Metrics:     metrics,
	})
	// A gateway with every upstream down still starts; it serves an empty
	// aggregate until a refresh succeeds.
	if err := agg.Start(ctx); err != nil {
		a.logger.Warn("initial upstream refresh incomplete", zap.Error(err))
	}
	defer agg.Stop()

	go a.serveObservability(ctx, runtime, telemetry.HTTPServerOptions{
		ServiceName: serverName,
		Snapshot:    agg,
		Health:      agg,
	})

	exec := upstream.NewExecutor(clients, a.logger)
	handler := rpcserver.NewHandler(serverName, agg, exec, a.logger, metrics)
	return a.runTransport(ctx, runtime, handler)
}

// ValidateConfig loads the runtime config and, when a policy file is
// configured, builds the catalog once and reports what would be excluded.
func (a *App) ValidateConfig(ctx context.Context, cfg ValidateConfig) error {
	loader := config.NewLoader(a.logger)
	runtime, err := loader.Load(ctx, cfg.ConfigPath)
	if err != nil {
		return err
	}

	if runtime.PolicyPath != "" {
		policy := catalog.NewFilePolicyProvider(runtime.PolicyPath, a.logger)
		doc, err := policy.Get(ctx)
		if err != nil {
			return fmt.Errorf("read policy: %w", err)
		}
		builder := catalog.NewBuilder(a.logger, telemetry.NewNoopMetrics())
		snapshot, skipped, err := builder.Build(ctx, doc)
		if err != nil {
			return fmt.Errorf("build catalog: %w", err)
		}
		a.logger.Info("policy validated",
			zap.String("policy", runtime.PolicyPath),
			zap.String("sourceVersion", snapshot.SourceVersion),
			zap.Int("tools", len(snapshot.Tools)),
			zap.Int("skipped", len(skipped)))
		for _, entry := range skipped {
			a.logger.Warn("policy entry excluded",
				zap.String("tool", entry.ToolName),
				zap.String("operation", entry.OperationID),
				zap.String("reason", string(entry.Reason)),
				zap.String("detail", entry.Detail))
		}
	}

	a.logger.Info("configuration validated",
		zap.String("config", cfg.ConfigPath),
		zap.Int("upstreams", len(runtime.Upstreams)))
	return nil
}

func (a *App) metricsFor(runtime domain.RuntimeConfig) domain.Metrics {
	if runtime.Observability.EnableMetrics {
		return telemetry.NewPrometheusMetrics(nil)
	}
	return telemetry.NewNoopMetrics()
}

func (a *App) serveObservability(ctx context.Context, runtime domain.RuntimeConfig, opts telemetry.HTTPServerOptions) {
	opts.Addr = runtime.Observability.ListenAddress
	opts.EnableMetrics = runtime.Observability.EnableMetrics
	opts.EnableHealthz = runtime.Observability.EnableHealthz
	if err := telemetry.StartHTTPServer(ctx, opts, a.logger); err != nil {
		a.logger.Error("observability server failed", zap.Error(err))
	}
}

func (a *App) runTransport(ctx context.Context, runtime domain.RuntimeConfig, handler *rpcserver.Handler) error {
	switch runtime.Transport {
	case domain.TransportHTTP:
		return transport.NewHTTPServer(handler, runtime.HTTP, a.logger).Run(ctx)
	default:
		return transport.NewStdioServer(handler, a.logger).Run(ctx, os.Stdin, os.Stdout)
	}
}
