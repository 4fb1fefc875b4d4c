// Package rpcserver implements the transport-agnostic JSON-RPC 2.0 method
// dispatch for the MCP surface: initialize, ping, tools/list, tools/call.
// The stdio and HTTP bindings reuse one Handler instance unchanged.
package rpcserver

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"toolgate/internal/domain"
)

var nullID = json.RawMessage("null")

type Handler struct {
	serverName string
	catalog    domain.CatalogSource
	executor   domain.ToolExecutor
	logger     *zap.Logger
	metrics    domain.Metrics

	// Informational only: tools/list and tools/call are accepted before
	// initialize, favoring availability over handshake strictness.
	initialized atomic.Bool
}

func NewHandler(serverName string, catalog domain.CatalogSource, executor domain.ToolExecutor, logger *zap.Logger, metrics domain.Metrics) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if serverName == "" {
		serverName = domain.DefaultServerName
	}
	return &Handler{
		serverName: serverName,
		catalog:    catalog,
		executor:   executor,
		logger:     logger.Named("rpc"),
		metrics:    metrics,
	}
}

// Handle evaluates one raw JSON-RPC request and always produces a complete
// response envelope. Protocol-level problems become structured errors with
// the request id echoed back, or null when the envelope was unparsable.
func (h *Handler) Handle(ctx context.Context, raw []byte) []byte {
	var req domain.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		if json.Valid(raw) {
			return h.fail(nullID, "", domain.CodeInvalidRequest, "request is not a JSON-RPC object", err.Error())
		}
		return h.fail(nullID, "", domain.CodeParseError, "parse error", err.Error())
	}

	id := req.ID
	if len(id) == 0 {
		id = nullID
	}

	if req.JSONRPC != domain.JSONRPCVersion {
		return h.fail(id, req.Method, domain.CodeInvalidRequest, fmt.Sprintf("unsupported jsonrpc version %q", req.JSONRPC), "")
	}

	switch req.Method {
	case domain.MethodInitialize:
		return h.handleInitialize(id)
	case domain.MethodPing:
		return h.respond(id, req.Method, struct{}{})
	case domain.MethodToolsList:
		return h.handleToolsList(ctx, id)
	case domain.MethodToolsCall:
		return h.handleToolsCall(ctx, id, req.Params)
	default:
		return h.fail(id, req.Method, domain.CodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method), "")
	}
}

type serverInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type initializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      serverInfo     `json:"serverInfo"`
}

func (h *Handler) handleInitialize(id json.RawMessage) []byte {
	if !h.initialized.Swap(true) {
		h.logger.Info("session initialized", zap.String("server", h.serverName))
	}
	return h.respond(id, domain.MethodInitialize, initializeResult{
		ProtocolVersion: domain.ProtocolVersion,
		Capabilities:    map[string]any{"tools": map[string]any{}},
		ServerInfo: serverInfo{
			Name:    h.serverName,
			Version: domain.ServerVersion,
		},
	})
}

func (h *Handler) handleToolsList(ctx context.Context, id json.RawMessage) []byte {
	snapshot, err := h.catalog.EnsureFreshSnapshot(ctx)
	if err != nil {
		return h.fail(id, domain.MethodToolsList, domain.CodeInternalError, "catalog unavailable", err.Error())
	}

	names := make([]string, 0, len(snapshot.Tools))
	for name := range snapshot.Tools {
		names = append(names, name)
	}
	sort.Strings(names)

	tools := make([]*mcp.Tool, 0, len(names))
	for _, name := range names {
		descriptor := snapshot.Tools[name]
		tools = append(tools, &mcp.Tool{
			Name:        descriptor.ToolName,
			Description: descriptor.Description,
			InputSchema: descriptor.InputSchema,
		})
	}
	return h.respond(id, domain.MethodToolsList, &mcp.ListToolsResult{Tools: tools})
}

func (h *Handler) handleToolsCall(ctx context.Context, id json.RawMessage, rawParams json.RawMessage) []byte {
	var params domain.CallParams
	if len(rawParams) == 0 {
		return h.fail(id, domain.MethodToolsCall, domain.CodeInvalidParams, "params are required", "")
	}
	if err := json.Unmarshal(rawParams, &params); err != nil {
		return h.fail(id, domain.MethodToolsCall, domain.CodeInvalidParams, "invalid params", err.Error())
	}
	if params.Name == "" {
		return h.fail(id, domain.MethodToolsCall, domain.CodeInvalidParams, "params.name is required", "")
	}
	// Malformed names fail fast, before any catalog lookup, with a code
	// distinct from not-found.
	if !domain.IsValidToolName(params.Name) {
		return h.fail(id, domain.MethodToolsCall, domain.CodeInvalidToolName, fmt.Sprintf("invalid tool name %q", params.Name), "")
	}

	snapshot, err := h.catalog.EnsureFreshSnapshot(ctx)
	if err != nil {
		return h.fail(id, domain.MethodToolsCall, domain.CodeInternalError, "catalog unavailable", err.Error())
	}
	descriptor, ok := snapshot.Tools[params.Name]
	if !ok {
		return h.fail(id, domain.MethodToolsCall, domain.CodeToolNotFound, fmt.Sprintf("tool %q not found", params.Name), "")
	}

	start := time.Now()
	result, err := h.executor.Execute(ctx, descriptor, params.Arguments)
	if err != nil {
		// Executor faults stay inside the RPC result envelope; the call
		// itself succeeded at the protocol level.
		result = domain.ToolResult{
			Success:      false,
			ErrorMessage: err.Error(),
			ErrorType:    "executor_fault",
		}
	}
	if h.metrics != nil {
		h.metrics.ObserveToolCall(time.Since(start), !result.Success)
	}

	return h.respond(id, domain.MethodToolsCall, callResultEnvelope(result))
}

func callResultEnvelope(result domain.ToolResult) *mcp.CallToolResult {
	if result.Success {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: result.Content}},
		}
	}
	text := result.ErrorMessage
	if result.ErrorType != "" {
		text = fmt.Sprintf("%s: %s", result.ErrorType, result.ErrorMessage)
	}
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func (h *Handler) respond(id json.RawMessage, method string, result any) []byte {
	raw, err := json.Marshal(result)
	if err != nil {
		return h.fail(id, method, domain.CodeInternalError, "marshal result", err.Error())
	}
	h.recordRPC(method, 0)
	payload, err := json.Marshal(domain.Response{
		JSONRPC: domain.JSONRPCVersion,
		Result:  raw,
		ID:      id,
	})
	if err != nil {
		return h.fail(id, method, domain.CodeInternalError, "marshal response", err.Error())
	}
	return payload
}

func (h *Handler) fail(id json.RawMessage, method string, code int, message, data string) []byte {
	h.recordRPC(method, code)
	h.logger.Debug("request failed",
		zap.String("method", method),
		zap.Int("code", code),
		zap.String("message", message),
	)
	payload, err := json.Marshal(domain.Response{
		JSONRPC: domain.JSONRPCVersion,
		Error: &domain.RPCError{
			Code:    code,
			Message: message,
			Data:    data,
		},
		ID: id,
	})
	if err != nil {
		// A response of plain constants cannot fail to marshal.
		h.logger.Error("marshal error response", zap.Error(err))
		return []byte(`{"jsonrpc":"2.0","error":{"code":-32603,"message":"internal error"},"id":null}`)
	}
	return payload
}

func (h *Handler) recordRPC(method string, code int) {
	if h.metrics != nil {
		h.metrics.RecordRPC(method, code)
	}
}
