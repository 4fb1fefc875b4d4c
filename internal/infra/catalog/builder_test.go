package catalog

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"toolgate/internal/domain"
)

func entry(name, route, method string, enabled bool) domain.PolicyEntry {
	return domain.PolicyEntry{
		ToolName:      name,
		RouteTemplate: route,
		HTTPMethod:    method,
		OperationID:   "op_" + name,
		Enabled:       enabled,
		Description:   "test entry " + name,
	}
}

func TestBuilder_DisabledEntriesNeverAppear(t *testing.T) {
	builder := NewBuilder(zap.NewNop(), nil)
	doc := domain.PolicyDocument{
		SourceVersion: "v1",
		Entries: []domain.PolicyEntry{
			entry("alpha", "/alpha", "GET", true),
			entry("beta", "/beta", "GET", false),
		},
	}

	snap, skipped, err := builder.Build(context.Background(), doc)
	require.NoError(t, err)
	require.Contains(t, snap.Tools, "alpha")
	require.NotContains(t, snap.Tools, "beta")
	require.Len(t, skipped, 1)
	require.Equal(t, domain.SkipDisabled, skipped[0].Reason)
	require.Equal(t, "beta", skipped[0].ToolName)
}

func TestBuilder_FirstDuplicateWins(t *testing.T) {
	builder := NewBuilder(zap.NewNop(), nil)
	doc := domain.PolicyDocument{
		SourceVersion: "v1",
		Entries: []domain.PolicyEntry{
			entry("dup", "/first", "GET", true),
			entry("dup", "/second", "POST", true),
		},
	}

	snap, skipped, err := builder.Build(context.Background(), doc)
	require.NoError(t, err)
	require.Len(t, snap.Tools, 1)
	require.Equal(t, "/first", snap.Tools["dup"].Endpoint.RouteTemplate)
	require.Len(t, skipped, 1)
	require.Equal(t, domain.SkipDuplicate, skipped[0].Reason)
	require.Contains(t, skipped[0].Detail, `"dup"`)
}

func TestBuilder_MissingToolNameReported(t *testing.T) {
	builder := NewBuilder(zap.NewNop(), nil)
	doc := domain.PolicyDocument{
		SourceVersion: "v1",
		Entries: []domain.PolicyEntry{
			entry("", "/nameless", "GET", true),
			entry("   ", "/whitespace", "GET", true),
			entry("kept", "/kept", "GET", true),
		},
	}

	snap, skipped, err := builder.Build(context.Background(), doc)
	require.NoError(t, err)
	require.Len(t, snap.Tools, 1)
	require.Len(t, skipped, 2)
	for _, skip := range skipped {
		require.Equal(t, domain.SkipNoToolName, skip.Reason)
	}
}

func TestBuilder_DisabledDuplicateDoesNotShadowLaterEntry(t *testing.T) {
	builder := NewBuilder(zap.NewNop(), nil)
	doc := domain.PolicyDocument{
		SourceVersion: "v1",
		Entries: []domain.PolicyEntry{
			entry("tool", "/disabled", "GET", false),
			entry("tool", "/live", "GET", true),
		},
	}

	snap, skipped, err := builder.Build(context.Background(), doc)
	require.NoError(t, err)
	require.Equal(t, "/live", snap.Tools["tool"].Endpoint.RouteTemplate)
	require.Len(t, skipped, 1)
	require.Equal(t, domain.SkipDisabled, skipped[0].Reason)
}

func TestBuilder_DerivesSchemaFromRouteParams(t *testing.T) {
	builder := NewBuilder(zap.NewNop(), nil)
	doc := domain.PolicyDocument{
		SourceVersion: "v1",
		Entries: []domain.PolicyEntry{
			entry("get_order", "/customers/{customerId}/orders/{orderId}", "get", true),
		},
	}

	snap, _, err := builder.Build(context.Background(), doc)
	require.NoError(t, err)

	tool := snap.Tools["get_order"]
	require.Equal(t, "GET", tool.Endpoint.HTTPMethod)

	var schema struct {
		Type       string                    `json:"type"`
		Properties map[string]map[string]any `json:"properties"`
		Required   []string                  `json:"required"`
	}
	require.NoError(t, json.Unmarshal(tool.InputSchema, &schema))
	require.Equal(t, "object", schema.Type)
	require.Contains(t, schema.Properties, "customerId")
	require.Contains(t, schema.Properties, "orderId")
	require.Equal(t, []string{"customerId", "orderId"}, schema.Required)
}

func TestBuilder_CancellationAbortsBuild(t *testing.T) {
	builder := NewBuilder(zap.NewNop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := builder.Build(ctx, domain.PolicyDocument{
		Entries: []domain.PolicyEntry{entry("tool", "/tool", "GET", true)},
	})
	require.ErrorIs(t, err, context.Canceled)
}
