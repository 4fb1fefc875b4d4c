package domain

import "time"

// UpstreamState tracks the health state machine of one configured upstream:
// Unknown until the first fetch completes, then Healthy and Unhealthy flip
// with each refresh outcome.
type UpstreamState string

const (
	UpstreamUnknown   UpstreamState = "unknown"
	UpstreamHealthy   UpstreamState = "healthy"
	UpstreamUnhealthy UpstreamState = "unhealthy"
)

// UpstreamSpec configures one upstream catalog server the gateway pulls from.
// Order in the configuration decides tool-name collision precedence.
type UpstreamSpec struct {
	ID       string            `json:"id"`
	Endpoint string            `json:"endpoint"`
	Headers  map[string]string `json:"headers,omitempty"`
}

// UpstreamRecord is the per-upstream bookkeeping the aggregator maintains.
// LastSnapshot is retained across failed fetches so a transiently
// unreachable upstream does not drop its tools from the aggregate.
type UpstreamRecord struct {
	ID           string           `json:"id"`
	State        UpstreamState    `json:"state"`
	LastSnapshot *CatalogSnapshot `json:"-"`
	LastError    string           `json:"lastError,omitempty"`
	LastSuccess  time.Time        `json:"lastSuccess,omitzero"`
	ToolCount    int              `json:"toolCount"`
}
