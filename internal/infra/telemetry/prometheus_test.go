package telemetry

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolgate/internal/domain"
)

func TestNewPrometheusMetrics(t *testing.T) {
	m := NewPrometheusMetrics(prometheus.NewRegistry())
	assert.NotNil(t, m)
	assert.NotNil(t, m.catalogBuildDuration)
	assert.NotNil(t, m.catalogTools)
	assert.NotNil(t, m.catalogSkips)
	assert.NotNil(t, m.snapshotServes)
	assert.NotNil(t, m.upstreamRefreshes)
	assert.NotNil(t, m.healthyUpstreams)
	assert.NotNil(t, m.rpcRequests)
	assert.NotNil(t, m.toolCallDuration)
}

func TestNewPrometheusMetrics_UsesProvidedRegistry(t *testing.T) {
	registry := prometheus.NewRegistry()

	m := NewPrometheusMetrics(registry)
	m.ObserveCatalogBuild(10*time.Millisecond, 4, 1)
	m.RecordSkip(domain.SkipDisabled)
	m.RecordSnapshotServe(domain.SnapshotServeHit)
	m.RecordUpstreamRefresh("billing", nil)
	m.RecordUpstreamRefresh("billing", errors.New("down"))
	m.SetHealthyUpstreams(2)
	m.RecordRPC(domain.MethodToolsList, 0)
	m.ObserveToolCall(50*time.Millisecond, false)

	metrics, err := registry.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(metrics))
	for _, metric := range metrics {
		names = append(names, metric.GetName())
	}

	assert.Contains(t, names, "toolgate_catalog_build_duration_seconds")
	assert.Contains(t, names, "toolgate_catalog_tools")
	assert.Contains(t, names, "toolgate_catalog_skipped_entries_total")
	assert.Contains(t, names, "toolgate_snapshot_serves_total")
	assert.Contains(t, names, "toolgate_upstream_refreshes_total")
	assert.Contains(t, names, "toolgate_healthy_upstreams")
	assert.Contains(t, names, "toolgate_rpc_requests_total")
	assert.Contains(t, names, "toolgate_tool_call_duration_seconds")
}

func TestPrometheusMetrics_ImplementsInterface(t *testing.T) {
	var _ domain.Metrics = (*PrometheusMetrics)(nil)
}

func TestNoopMetrics_ImplementsInterface(t *testing.T) {
	var _ domain.Metrics = NewNoopMetrics()
}
