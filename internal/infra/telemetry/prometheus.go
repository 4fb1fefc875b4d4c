package telemetry

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"toolgate/internal/domain"
)

type PrometheusMetrics struct {
	catalogBuildDuration prometheus.Histogram
	catalogTools         prometheus.Gauge
	catalogSkips         *prometheus.CounterVec
	snapshotServes       *prometheus.CounterVec
	upstreamRefreshes    *prometheus.CounterVec
	healthyUpstreams     prometheus.Gauge
	rpcRequests          *prometheus.CounterVec
	toolCallDuration     *prometheus.HistogramVec
}

func NewPrometheusMetrics(registerer prometheus.Registerer) *PrometheusMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &PrometheusMetrics{
		catalogBuildDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "toolgate_catalog_build_duration_seconds",
				Help:    "Duration of catalog builds in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
		),
		catalogTools: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "toolgate_catalog_tools",
				Help: "Number of tools in the current catalog snapshot",
			},
		),
		catalogSkips: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolgate_catalog_skipped_entries_total",
				Help: "Total policy entries excluded from the catalog by reason",
			},
			[]string{"reason"},
		),
		snapshotServes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolgate_snapshot_serves_total",
				Help: "Snapshot reads by outcome (hit, rebuild, stale)",
			},
			[]string{"outcome"},
		),
		upstreamRefreshes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolgate_upstream_refreshes_total",
				Help: "Upstream refresh attempts by upstream and status",
			},
			[]string{"upstream", "status"},
		),
		healthyUpstreams: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "toolgate_healthy_upstreams",
				Help: "Current number of healthy upstreams",
			},
		),
		rpcRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolgate_rpc_requests_total",
				Help: "JSON-RPC requests by method and error code (0 for success)",
			},
			[]string{"method", "code"},
		),
		toolCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "toolgate_tool_call_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"status"},
		),
	}
}

func (p *PrometheusMetrics) ObserveCatalogBuild(duration time.Duration, toolCount, skippedCount int) {
	p.catalogBuildDuration.Observe(duration.Seconds())
	p.catalogTools.Set(float64(toolCount))
}

func (p *PrometheusMetrics) RecordSkip(reason domain.SkipReason) {
	p.catalogSkips.WithLabelValues(string(reason)).Inc()
}

func (p *PrometheusMetrics) RecordSnapshotServe(outcome string) {
	p.snapshotServes.WithLabelValues(outcome).Inc()
}

func (p *PrometheusMetrics) RecordUpstreamRefresh(upstream string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	p.upstreamRefreshes.WithLabelValues(upstream, status).Inc()
}

func (p *PrometheusMetrics) SetHealthyUpstreams(count int) {
	p.healthyUpstreams.Set(float64(count))
}

func (p *PrometheusMetrics) RecordRPC(method string, errorCode int) {
	p.rpcRequests.WithLabelValues(method, strconv.Itoa(errorCode)).Inc()
}

func (p *PrometheusMetrics) ObserveToolCall(duration time.Duration, isError bool) {
	status := "success"
	if isError {
		status = "error"
	}
	p.toolCallDuration.WithLabelValues(status).Observe(duration.Seconds())
}

var _ domain.Metrics = (*PrometheusMetrics)(nil)
