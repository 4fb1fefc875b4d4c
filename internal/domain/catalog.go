package domain

import (
	"encoding/json"
	"time"
)

// EndpointDescriptor identifies the backing endpoint a tool call is routed to.
type EndpointDescriptor struct {
	RouteTemplate string `json:"routeTemplate"`
	HTTPMethod    string `json:"httpMethod"`
	OperationID   string `json:"operationId"`
}

// ToolDescriptor is the immutable catalog record for one exposed tool.
// Origin is empty for locally built tools; the gateway sets it to the
// upstream ID that owns the tool so calls can be routed back.
type ToolDescriptor struct {
	ToolName    string             `json:"toolName"`
	Description string             `json:"description"`
	InputSchema json.RawMessage    `json:"inputSchema"`
	Endpoint    EndpointDescriptor `json:"endpoint"`
	Origin      string             `json:"origin,omitempty"`
}

// CatalogSnapshot is an immutable point-in-time view of the exposed tools.
// Exactly one snapshot is current at any instant; replacing it is a single
// atomic pointer swap, so readers never observe a partially built catalog.
type CatalogSnapshot struct {
	Tools         map[string]ToolDescriptor `json:"tools"`
	SourceVersion string                    `json:"sourceVersion"`
	CreatedAt     time.Time                 `json:"createdAt"`
	BuildID       string                    `json:"buildId"`
}

// AggregatedSnapshot is a CatalogSnapshot merged from several upstreams.
type AggregatedSnapshot struct {
	CatalogSnapshot
	UpstreamCount        int `json:"upstreamCount"`
	HealthyUpstreamCount int `json:"healthyUpstreamCount"`
}

// SkipReason classifies why a policy entry was excluded from the catalog.
type SkipReason string

const (
	SkipDisabled   SkipReason = "disabled"
	SkipNoToolName SkipReason = "no tool name"
	SkipDuplicate  SkipReason = "duplicate"
)

// SkippedEntry reports one excluded policy entry for diagnostics.
type SkippedEntry struct {
	ToolName    string     `json:"toolName"`
	OperationID string     `json:"operationId"`
	Reason      SkipReason `json:"reason"`
	Detail      string     `json:"detail,omitempty"`
}
