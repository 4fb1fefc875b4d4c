// Package upstream implements the remote-catalog client: it speaks the
// same JSON-RPC surface this system serves, so the gateway can treat a
// remote server exactly like a local catalog provider.
package upstream

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"toolgate/internal/domain"
)

type Client struct {
	spec   domain.UpstreamSpec
	http   *http.Client
	logger *zap.Logger
}

func NewClient(spec domain.UpstreamSpec, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		spec:   spec,
		http:   httpClient,
		logger: logger.Named("upstream").With(zap.String("upstream", spec.ID)),
	}
}

func (c *Client) ID() string {
	return c.spec.ID
}

// EnsureFreshSnapshot lists the upstream's tools and converts them into a
// catalog snapshot. The source version is a fingerprint of the returned
// tool set, so an unchanged upstream yields an unchanged version.
func (c *Client) EnsureFreshSnapshot(ctx context.Context) (*domain.CatalogSnapshot, error) {
	result, err := c.call(ctx, domain.MethodToolsList, struct{}{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}

	var list mcp.ListToolsResult
	if err := json.Unmarshal(result, &list); err != nil {
		return nil, fmt.Errorf("decode tools/list result: %w", err)
	}

	tools := make(map[string]domain.ToolDescriptor, len(list.Tools))
	fingerprints := make([]string, 0, len(list.Tools))
	for _, tool := range list.Tools {
		if tool == nil || tool.Name == "" {
			continue
		}
		schema, err := json.Marshal(tool.InputSchema)
		if err != nil {
			c.logger.Warn("skip tool with unmarshalable schema", zap.String("tool", tool.Name), zap.Error(err))
			continue
		}
		tools[tool.Name] = domain.ToolDescriptor{
			ToolName:    tool.Name,
			Description: tool.Description,
			InputSchema: schema,
			Origin:      c.spec.ID,
		}
		fingerprints = append(fingerprints, tool.Name+"\x00"+tool.Description+"\x00"+string(schema))
	}
	sort.Strings(fingerprints)

	hasher := sha256.New()
	for _, fp := range fingerprints {
		_, _ = hasher.Write([]byte(fp))
		_, _ = hasher.Write([]byte{0})
	}

	return &domain.CatalogSnapshot{
		Tools:         tools,
		SourceVersion: hex.EncodeToString(hasher.Sum(nil)),
		CreatedAt:     time.Now().UTC(),
		BuildID:       uuid.NewString(),
	}, nil
}

// CallTool invokes a tool on the upstream and returns its result envelope.
func (c *Client) CallTool(ctx context.Context, name string, args json.RawMessage) (*mcp.CallToolResult, error) {
	result, err := c.call(ctx, domain.MethodToolsCall, domain.CallParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return nil, err
	}
	var callResult mcp.CallToolResult
	if err := json.Unmarshal(result, &callResult); err != nil {
		return nil, fmt.Errorf("decode tools/call result: %w", err)
	}
	return &callResult, nil
}

func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	rawParams, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	id, err := json.Marshal(fmt.Sprintf("%s-%s", method, uuid.NewString()))
	if err != nil {
		return nil, fmt.Errorf("marshal request id: %w", err)
	}
	payload, err := json.Marshal(domain.Request{
		JSONRPC: domain.JSONRPCVersion,
		Method:  method,
		Params:  rawParams,
		ID:      id,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.spec.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for key, value := range c.spec.Headers {
		httpReq.Header.Set(key, value)
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", method, err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned http %d", method, httpResp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, domain.DefaultMaxRequestBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var resp domain.Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("%s failed: %s (code %d)", method, resp.Error.Message, resp.Error.Code)
	}
	return resp.Result, nil
}
