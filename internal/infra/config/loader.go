// Package config loads the runtime configuration shared by the catalog
// server and the gateway. The tool policy document is deliberately not
// part of this file; it has its own provider so it can change while the
// process runs.
package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"toolgate/internal/domain"
)

type Loader struct {
	logger *zap.Logger
}

func NewLoader(logger *zap.Logger) *Loader {
	if logger == nil {
		return &Loader{logger: zap.NewNop()}
	}
	return &Loader{logger: logger.Named("config")}
}

func newRuntimeViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	setRuntimeDefaults(v)
	return v
}

func setRuntimeDefaults(v *viper.Viper) {
	v.SetDefault("serverName", domain.DefaultServerName)
	v.SetDefault("transport", string(domain.TransportStdio))
	v.SetDefault("http.listenAddress", domain.DefaultHTTPListenAddress)
	v.SetDefault("executor.timeoutSeconds", domain.DefaultCallTimeoutSeconds)
	v.SetDefault("refresh.intervalSeconds", domain.DefaultRefreshSeconds)
	v.SetDefault("refresh.concurrency", domain.DefaultRefreshConcurrency)
	v.SetDefault("observability.listenAddress", domain.DefaultObservabilityListenAddress)
	v.SetDefault("observability.enableMetrics", true)
	v.SetDefault("observability.enableHealthz", true)
}

type rawRuntimeConfig struct {
	ServerName    string                 `mapstructure:"serverName"`
	Transport     string                 `mapstructure:"transport"`
	PolicyPath    string                 `mapstructure:"policyPath"`
	HTTP          rawHTTPConfig          `mapstructure:"http"`
	Executor      rawExecutorConfig      `mapstructure:"executor"`
	Refresh       rawRefreshConfig       `mapstructure:"refresh"`
	Observability rawObservabilityConfig `mapstructure:"observability"`
	Upstreams     []rawUpstreamSpec      `mapstructure:"upstreams"`
}

type rawHTTPConfig struct {
	ListenAddress  string   `mapstructure:"listenAddress"`
	AllowedOrigins []string `mapstructure:"allowedOrigins"`
}

type rawExecutorConfig struct {
	BaseURL        string `mapstructure:"baseURL"`
	TimeoutSeconds int    `mapstructure:"timeoutSeconds"`
}

type rawRefreshConfig struct {
	IntervalSeconds int `mapstructure:"intervalSeconds"`
	Concurrency     int `mapstructure:"concurrency"`
}

type rawObservabilityConfig struct {
	ListenAddress string `mapstructure:"listenAddress"`
	EnableMetrics bool   `mapstructure:"enableMetrics"`
	EnableHealthz bool   `mapstructure:"enableHealthz"`
}

type rawUpstreamSpec struct {
	ID       string            `mapstructure:"id"`
	Endpoint string            `mapstructure:"endpoint"`
	Headers  map[string]string `mapstructure:"headers"`
}

// Load reads and validates a runtime config file. Values of the form
// ${VAR} are expanded from the environment before parsing, so secrets
// like upstream auth headers never live in the file itself.
func (l *Loader) Load(ctx context.Context, path string) (domain.RuntimeConfig, error) {
	if path == "" {
		return domain.RuntimeConfig{}, errors.New("config path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return domain.RuntimeConfig{}, fmt.Errorf("read config: %w", err)
	}

	expanded, missing := expandConfigEnv(data)
	if len(missing) > 0 {
		l.logger.Warn("missing environment variables in config",
			zap.String("path", path),
			zap.Strings("missing", missing))
	}

	v := newRuntimeViper()
	if err := v.ReadConfig(bytes.NewBufferString(expanded)); err != nil {
		return domain.RuntimeConfig{}, fmt.Errorf("parse config: %w", err)
	}

	var raw rawRuntimeConfig
	if err := v.Unmarshal(&raw); err != nil {
		return domain.RuntimeConfig{}, fmt.Errorf("decode config: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return domain.RuntimeConfig{}, err
	}

	runtime, errs := normalizeRuntimeConfig(raw)
	if len(errs) > 0 {
		return domain.RuntimeConfig{}, errors.New(strings.Join(errs, "; "))
	}
	return runtime, nil
}

// IntervalProvider returns a function that re-reads the refresh interval
// from the config file on every call, so a changed cadence takes effect
// on the next cycle without a restart. The last good value is kept when
// the file becomes unreadable.
func (l *Loader) IntervalProvider(path string, fallback time.Duration) func() time.Duration {
	last := fallback
	return func() time.Duration {
		cfg, err := l.Load(context.Background(), path)
		if err != nil {
			l.logger.Warn("refresh interval re-read failed, keeping previous value",
				zap.String("path", path),
				zap.Error(err))
			return last
		}
		last = cfg.Refresh.RefreshInterval()
		return last
	}
}

func normalizeRuntimeConfig(raw rawRuntimeConfig) (domain.RuntimeConfig, []string) {
	var errs []string

	serverName := strings.TrimSpace(raw.ServerName)
	if serverName == "" {
		serverName = domain.DefaultServerName
	}

	transport := domain.TransportKind(strings.ToLower(strings.TrimSpace(raw.Transport)))
	switch transport {
	case domain.TransportStdio, domain.TransportHTTP:
	default:
		errs = append(errs, "transport must be stdio or http")
	}

	if raw.Executor.TimeoutSeconds <= 0 {
		errs = append(errs, "executor.timeoutSeconds must be > 0")
	}
	if raw.Executor.BaseURL != "" && !validHTTPURL(raw.Executor.BaseURL) {
		errs = append(errs, "executor.baseURL must be a valid http(s) URL")
	}

	if raw.Refresh.IntervalSeconds <= 0 {
		errs = append(errs, "refresh.intervalSeconds must be > 0")
	}
	if raw.Refresh.Concurrency <= 0 {
		errs = append(errs, "refresh.concurrency must be > 0")
	}

	upstreams := make([]domain.UpstreamSpec, 0, len(raw.Upstreams))
	idSeen := make(map[string]struct{}, len(raw.Upstreams))
	for i, spec := range raw.Upstreams {
		id := strings.TrimSpace(spec.ID)
		if id == "" {
			errs = append(errs, fmt.Sprintf("upstreams[%d]: id is required", i))
		}
		if _, exists := idSeen[id]; exists {
			errs = append(errs, fmt.Sprintf("upstreams[%d]: duplicate id %q", i, id))
		} else if id != "" {
			idSeen[id] = struct{}{}
		}
		if !validHTTPURL(spec.Endpoint) {
			errs = append(errs, fmt.Sprintf("upstreams[%d]: endpoint must be a valid http(s) URL", i))
		}
		upstreams = append(upstreams, domain.UpstreamSpec{
			ID:       id,
			Endpoint: strings.TrimSpace(spec.Endpoint),
			Headers:  spec.Headers,
		})
	}

	// A server exposes a local policy; a gateway aggregates upstreams.
	// One of the two must be configured.
	if raw.PolicyPath == "" && len(upstreams) == 0 {
		errs = append(errs, "either policyPath or upstreams must be set")
	}

	return domain.RuntimeConfig{
		ServerName: serverName,
		Transport:  transport,
		PolicyPath: raw.PolicyPath,
		HTTP: domain.HTTPConfig{
			ListenAddress:  strings.TrimSpace(raw.HTTP.ListenAddress),
			AllowedOrigins: raw.HTTP.AllowedOrigins,
		},
		Executor: domain.ExecutorConfig{
			BaseURL:        strings.TrimSpace(raw.Executor.BaseURL),
			TimeoutSeconds: raw.Executor.TimeoutSeconds,
		},
		Refresh: domain.RefreshConfig{
			IntervalSeconds: raw.Refresh.IntervalSeconds,
			Concurrency:     raw.Refresh.Concurrency,
		},
		Observability: domain.ObservabilityConfig{
			ListenAddress: strings.TrimSpace(raw.Observability.ListenAddress),
			EnableMetrics: raw.Observability.EnableMetrics,
			EnableHealthz: raw.Observability.EnableHealthz,
		},
		Upstreams: upstreams,
	}, errs
}

func validHTTPURL(raw string) bool {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.Contains(trimmed, " ") {
		return false
	}
	parsed, err := url.ParseRequestURI(trimmed)
	if err != nil || parsed.Host == "" {
		return false
	}
	return parsed.Scheme == "http" || parsed.Scheme == "https"
}

var envPlaceholder = "${"

// expandConfigEnv substitutes ${VAR} references with environment values
// and reports the variables that were not set. Unset variables expand to
// the empty string so validation can flag the resulting gap.
func expandConfigEnv(data []byte) (string, []string) {
	content := string(data)
	if !strings.Contains(content, envPlaceholder) {
		return content, nil
	}

	var missing []string
	expanded := os.Expand(content, func(name string) string {
		value, ok := os.LookupEnv(name)
		if !ok {
			missing = append(missing, name)
			return ""
		}
		return value
	})
	return expanded, missing
}
