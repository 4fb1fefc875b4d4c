// Package executor turns catalog tool calls into HTTP requests against the
// governed backend API. Backend and transport failures are reported as
// unsuccessful tool results rather than faults, so callers keep their
// JSON-RPC session even when the backend is down.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"toolgate/internal/domain"
)

const maxResponseBytes = 4 << 20

// HTTPExecutor executes a tool by expanding its route template with the
// call arguments and issuing the descriptor's HTTP method against the
// configured base URL. Path parameters come from the template; leftover
// arguments become the query string for read-style methods and the JSON
// body otherwise.
type HTTPExecutor struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

func NewHTTPExecutor(cfg domain.ExecutorConfig, logger *zap.Logger) *HTTPExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = time.Duration(domain.DefaultCallTimeoutSeconds) * time.Second
	}
	return &HTTPExecutor{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger.Named("executor"),
	}
}

func (e *HTTPExecutor) Execute(ctx context.Context, tool domain.ToolDescriptor, args json.RawMessage) (domain.ToolResult, error) {
	arguments := map[string]any{}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &arguments); err != nil {
			return domain.ToolResult{
				Success:      false,
				ErrorMessage: fmt.Sprintf("arguments must be a JSON object: %v", err),
				ErrorType:    "invalid_arguments",
			}, nil
		}
	}

	path, remaining, err := expandRoute(tool.Endpoint.RouteTemplate, arguments)
	if err != nil {
		return domain.ToolResult{
			Success:      false,
			ErrorMessage: err.Error(),
			ErrorType:    "invalid_arguments",
		}, nil
	}

	method := strings.ToUpper(tool.Endpoint.HTTPMethod)
	if method == "" {
		method = http.MethodGet
	}

	target := e.baseURL + path
	var body io.Reader
	if takesBody(method) {
		payload, err := json.Marshal(remaining)
		if err != nil {
			return domain.ToolResult{}, fmt.Errorf("marshal request body: %w", err)
		}
		body = bytes.NewReader(payload)
	} else if len(remaining) > 0 {
		query := url.Values{}
		for key, value := range remaining {
			query.Set(key, stringifyArgument(value))
		}
		target += "?" + query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return domain.ToolResult{}, fmt.Errorf("build request for %s: %w", tool.ToolName, err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")

	httpResp, err := e.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return domain.ToolResult{}, ctx.Err()
		}
		e.logger.Warn("backend unreachable",
			zap.String("tool", tool.ToolName),
			zap.String("method", method),
			zap.Error(err))
		return domain.ToolResult{
			Success:      false,
			ErrorMessage: err.Error(),
			ErrorType:    "backend_unreachable",
		}, nil
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return domain.ToolResult{
			Success:      false,
			ErrorMessage: fmt.Sprintf("read backend response: %v", err),
			ErrorType:    "backend_unreachable",
		}, nil
	}

	if httpResp.StatusCode >= 400 {
		return domain.ToolResult{
			Success:      false,
			ErrorMessage: strings.TrimSpace(string(respBody)),
			ErrorType:    "http_" + strconv.Itoa(httpResp.StatusCode),
		}, nil
	}
	return domain.ToolResult{Success: true, Content: string(respBody)}, nil
}

// expandRoute substitutes {param} placeholders with url-escaped argument
// values and returns the arguments that were not consumed by the path.
func expandRoute(template string, arguments map[string]any) (string, map[string]any, error) {
	remaining := make(map[string]any, len(arguments))
	for key, value := range arguments {
		remaining[key] = value
	}

	var path strings.Builder
	rest := template
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			path.WriteString(rest)
			break
		}
		closing := strings.IndexByte(rest[open:], '}')
		if closing < 0 {
			return "", nil, fmt.Errorf("malformed route template %q", template)
		}
		name := rest[open+1 : open+closing]
		value, ok := remaining[name]
		if !ok {
			return "", nil, fmt.Errorf("missing required argument %q", name)
		}
		path.WriteString(rest[:open])
		path.WriteString(url.PathEscape(stringifyArgument(value)))
		delete(remaining, name)
		rest = rest[open+closing+1:]
	}
	return path.String(), remaining, nil
}

func stringifyArgument(value any) string {
	switch typed := value.(type) {
	case string:
		return typed
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(typed)
	case nil:
		return ""
	default:
		raw, err := json.Marshal(typed)
		if err != nil {
			return fmt.Sprintf("%v", typed)
		}
		return string(raw)
	}
}

func takesBody(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	default:
		return false
	}
}

var _ domain.ToolExecutor = (*HTTPExecutor)(nil)
