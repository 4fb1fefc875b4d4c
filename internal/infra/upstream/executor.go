package upstream

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"toolgate/internal/domain"
)

// Executor routes gateway tool calls back to the upstream that owns the
// tool, identified by the descriptor's Origin. Upstream failures are
// reported as unsuccessful results, never as faults, so one bad upstream
// cannot break the caller's RPC session.
type Executor struct {
	clients map[string]*Client
	logger  *zap.Logger
}

func NewExecutor(clients []*Client, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	byID := make(map[string]*Client, len(clients))
	for _, client := range clients {
		byID[client.ID()] = client
	}
	return &Executor{
		clients: byID,
		logger:  logger.Named("upstream_executor"),
	}
}

func (e *Executor) Execute(ctx context.Context, tool domain.ToolDescriptor, args json.RawMessage) (domain.ToolResult, error) {
	client, ok := e.clients[tool.Origin]
	if !ok {
		return domain.ToolResult{
			Success:      false,
			ErrorMessage: "tool has no reachable upstream",
			ErrorType:    "unknown_upstream",
		}, nil
	}

	result, err := client.CallTool(ctx, tool.ToolName, args)
	if err != nil {
		e.logger.Warn("upstream call failed",
			zap.String("tool", tool.ToolName),
			zap.String("upstream", tool.Origin),
			zap.Error(err))
		return domain.ToolResult{
			Success:      false,
			ErrorMessage: err.Error(),
			ErrorType:    "upstream_error",
		}, nil
	}

	text := flattenContent(result.Content)
	if result.IsError {
		return domain.ToolResult{
			Success:      false,
			ErrorMessage: text,
			ErrorType:    "tool_error",
		}, nil
	}
	return domain.ToolResult{Success: true, Content: text}, nil
}

func flattenContent(content []mcp.Content) string {
	parts := make([]string, 0, len(content))
	for _, item := range content {
		switch typed := item.(type) {
		case *mcp.TextContent:
			parts = append(parts, typed.Text)
		default:
			raw, err := json.Marshal(item)
			if err != nil {
				continue
			}
			parts = append(parts, string(raw))
		}
	}
	return strings.Join(parts, "\n")
}

var _ domain.ToolExecutor = (*Executor)(nil)
