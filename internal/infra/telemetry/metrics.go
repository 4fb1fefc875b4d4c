// Package telemetry provides the metrics implementations and the
// observability HTTP endpoint (/metrics, /healthz and the catalog
// diagnostics surfaces).
package telemetry

import (
	"time"

	"toolgate/internal/domain"
)

type NoopMetrics struct{}

func NewNoopMetrics() *NoopMetrics {
	return &NoopMetrics{}
}

func (n *NoopMetrics) ObserveCatalogBuild(_ time.Duration, _, _ int) {}

func (n *NoopMetrics) RecordSkip(_ domain.SkipReason) {}

func (n *NoopMetrics) RecordSnapshotServe(_ string) {}

func (n *NoopMetrics) RecordUpstreamRefresh(_ string, _ error) {}

func (n *NoopMetrics) SetHealthyUpstreams(_ int) {}

func (n *NoopMetrics) RecordRPC(_ string, _ int) {}

func (n *NoopMetrics) ObserveToolCall(_ time.Duration, _ bool) {}

var _ domain.Metrics = (*NoopMetrics)(nil)
