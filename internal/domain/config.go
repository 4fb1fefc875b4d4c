package domain

import "time"

// TransportKind selects how the JSON-RPC handler is bound.
type TransportKind string

const (
	TransportStdio TransportKind = "stdio"
	TransportHTTP  TransportKind = "http"
)

// RuntimeConfig is the loaded runtime configuration shared by the catalog
// server and the gateway. The policy document lives in its own file and is
// fetched through a PolicyProvider, not here.
type RuntimeConfig struct {
	ServerName    string
	Transport     TransportKind
	PolicyPath    string
	HTTP          HTTPConfig
	Executor      ExecutorConfig
	Refresh       RefreshConfig
	Observability ObservabilityConfig
	Upstreams     []UpstreamSpec
}

type HTTPConfig struct {
	ListenAddress  string
	AllowedOrigins []string
}

type ExecutorConfig struct {
	BaseURL        string
	TimeoutSeconds int
}

type RefreshConfig struct {
	IntervalSeconds int
	Concurrency     int
}

type ObservabilityConfig struct {
	ListenAddress string
	EnableMetrics bool
	EnableHealthz bool
}

// RefreshInterval converts the configured refresh cadence, falling back to
// the default when unset or invalid.
func (c RefreshConfig) RefreshInterval() time.Duration {
	seconds := c.IntervalSeconds
	if seconds <= 0 {
		seconds = DefaultRefreshSeconds
	}
	return time.Duration(seconds) * time.Second
}
