package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"toolgate/internal/domain"
)

type HTTPServerOptions struct {
	Addr          string
	ServiceName   string
	EnableMetrics bool
	EnableHealthz bool
	Snapshot      SnapshotSource
	Skips         SkipSource
	Health        HealthSource
	Registry      prometheus.Gatherer
}

// StartHTTPServer serves the observability endpoints until ctx is
// cancelled. It returns immediately with nil when nothing is enabled.
func StartHTTPServer(ctx context.Context, opts HTTPServerOptions, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !opts.EnableMetrics && !opts.EnableHealthz {
		return nil
	}

	addr := opts.Addr
	if addr == "" {
		addr = domain.DefaultObservabilityListenAddress
	}

	registry := opts.Registry
	if registry == nil {
		registry = prometheus.DefaultGatherer
	}

	mux := http.NewServeMux()
	if opts.EnableMetrics {
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}
	if opts.EnableHealthz {
		mux.Handle("/healthz", healthHandler(opts.Snapshot, opts.Health))
	}
	if opts.Snapshot != nil {
		mux.Handle("/manifest", manifestHandler(opts.ServiceName, opts.Snapshot))
	}
	if opts.Skips != nil {
		mux.Handle("/gapreport", gapReportHandler(opts.Snapshot, opts.Skips))
	}

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("observability server listening",
			zap.String("addr", server.Addr),
			zap.Bool("metrics", opts.EnableMetrics),
			zap.Bool("healthz", opts.EnableHealthz),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("observability server failed to start: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("observability server shutdown error", zap.Error(err))
			return err
		}
		logger.Info("observability server stopped")
		return nil
	}
}

func healthHandler(snapshots SnapshotSource, health HealthSource) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var snapshot *domain.CatalogSnapshot
		if snapshots != nil {
			snapshot = snapshots.Current()
		}
		report := buildHealthReport(snapshot, health)

		status := http.StatusOK
		if report.Status != "ok" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, report)
	})
}

func manifestHandler(service string, snapshots SnapshotSource) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snapshot := snapshots.Current()
		if snapshot == nil {
			writeJSON(w, http.StatusServiceUnavailable, buildManifest(service, nil))
			return
		}
		writeJSON(w, http.StatusOK, buildManifest(service, snapshot))
	})
}

func gapReportHandler(snapshots SnapshotSource, skips SkipSource) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var snapshot *domain.CatalogSnapshot
		if snapshots != nil {
			snapshot = snapshots.Current()
		}
		writeJSON(w, http.StatusOK, buildGapReport(snapshot, skips.SkippedEntries()))
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
