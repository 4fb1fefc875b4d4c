package domain

const (
	ProtocolVersion = "2025-06-18"
	ServerVersion   = "0.1.0"

	DefaultServerName                 = "toolgated"
	DefaultGatewayName                = "toolgate-gateway"
	DefaultRefreshSeconds             = 60
	DefaultRefreshConcurrency         = 4
	DefaultCallTimeoutSeconds         = 30
	DefaultHTTPListenAddress          = "127.0.0.1:8080"
	DefaultRPCPath                    = "/rpc"
	DefaultObservabilityListenAddress = "0.0.0.0:9090"
	DefaultMaxRequestBytes            = 4 * 1024 * 1024
)
