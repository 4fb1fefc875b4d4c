package domain

import "time"

// Metrics is the observability hook implemented by telemetry. Components
// accept a nil-safe no-op implementation when metrics are disabled.
type Metrics interface {
	ObserveCatalogBuild(duration time.Duration, toolCount, skippedCount int)
	RecordSkip(reason SkipReason)
	RecordSnapshotServe(outcome string)
	RecordUpstreamRefresh(upstream string, err error)
	SetHealthyUpstreams(count int)
	RecordRPC(method string, errorCode int)
	ObserveToolCall(duration time.Duration, isError bool)
}

// Snapshot serve outcomes recorded by RecordSnapshotServe.
const (
	SnapshotServeHit     = "hit"
	SnapshotServeRebuild = "rebuild"
	SnapshotServeStale   = "stale"
)
