package upstream

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"toolgate/internal/domain"
)

// fakeUpstream serves a minimal JSON-RPC surface backed by a fixed tool
// list and a canned tools/call response.
type fakeUpstream struct {
	mu         sync.Mutex
	tools      []map[string]any
	callResult map[string]any
	lastCall   domain.CallParams
	lastHeader http.Header
	failList   bool
}

func (f *fakeUpstream) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req domain.Request
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		f.mu.Lock()
		f.lastHeader = r.Header.Clone()
		failList := f.failList
		tools := f.tools
		f.mu.Unlock()

		var result any
		switch req.Method {
		case domain.MethodToolsList:
			if failList {
				http.Error(w, "down", http.StatusServiceUnavailable)
				return
			}
			result = map[string]any{"tools": tools}
		case domain.MethodToolsCall:
			var params domain.CallParams
			_ = json.Unmarshal(req.Params, &params)
			f.mu.Lock()
			f.lastCall = params
			result = f.callResult
			f.mu.Unlock()
		default:
			http.Error(w, "unexpected method", http.StatusBadRequest)
			return
		}

		raw, _ := json.Marshal(result)
		resp, _ := json.Marshal(domain.Response{
			JSONRPC: domain.JSONRPCVersion,
			Result:  raw,
			ID:      req.ID,
		})
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(resp)
	}
}

func newFakeUpstream(t *testing.T) (*fakeUpstream, *httptest.Server) {
	t.Helper()
	fake := &fakeUpstream{
		tools: []map[string]any{
			{"name": "listOrders", "description": "list orders", "inputSchema": map[string]any{"type": "object"}},
			{"name": "getCustomer", "description": "fetch one customer", "inputSchema": map[string]any{"type": "object"}},
		},
		callResult: map[string]any{
			"content": []map[string]any{{"type": "text", "text": "ok"}},
			"isError": false,
		},
	}
	server := httptest.NewServer(fake.handler())
	t.Cleanup(server.Close)
	return fake, server
}

func TestClient_EnsureFreshSnapshotListsTools(t *testing.T) {
	_, server := newFakeUpstream(t)
	client := NewClient(domain.UpstreamSpec{ID: "billing", Endpoint: server.URL}, nil, zap.NewNop())

	snapshot, err := client.EnsureFreshSnapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snapshot.Tools, 2)

	want := domain.ToolDescriptor{
		ToolName:    "listOrders",
		Description: "list orders",
		InputSchema: json.RawMessage(`{"type":"object"}`),
		Origin:      "billing",
	}
	if diff := cmp.Diff(want, snapshot.Tools["listOrders"]); diff != "" {
		t.Fatalf("descriptor mismatch (-want +got):\n%s", diff)
	}
	require.NotEmpty(t, snapshot.SourceVersion)
	require.NotEmpty(t, snapshot.BuildID)
}

func TestClient_SourceVersionStableForUnchangedToolSet(t *testing.T) {
	_, server := newFakeUpstream(t)
	client := NewClient(domain.UpstreamSpec{ID: "billing", Endpoint: server.URL}, nil, zap.NewNop())

	first, err := client.EnsureFreshSnapshot(context.Background())
	require.NoError(t, err)
	second, err := client.EnsureFreshSnapshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, first.SourceVersion, second.SourceVersion)
}

func TestClient_SourceVersionChangesWithToolSet(t *testing.T) {
	fake, server := newFakeUpstream(t)
	client := NewClient(domain.UpstreamSpec{ID: "billing", Endpoint: server.URL}, nil, zap.NewNop())

	first, err := client.EnsureFreshSnapshot(context.Background())
	require.NoError(t, err)

	fake.mu.Lock()
	fake.tools = fake.tools[:1]
	fake.mu.Unlock()

	second, err := client.EnsureFreshSnapshot(context.Background())
	require.NoError(t, err)
	require.NotEqual(t, first.SourceVersion, second.SourceVersion)
}

func TestClient_SendsConfiguredHeaders(t *testing.T) {
	fake, server := newFakeUpstream(t)
	client := NewClient(domain.UpstreamSpec{
		ID:       "billing",
		Endpoint: server.URL,
		Headers:  map[string]string{"Authorization": "Bearer sekret"},
	}, nil, zap.NewNop())

	_, err := client.EnsureFreshSnapshot(context.Background())
	require.NoError(t, err)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Equal(t, "Bearer sekret", fake.lastHeader.Get("Authorization"))
}

func TestClient_ListFailureWrapsUpstreamUnavailable(t *testing.T) {
	fake, server := newFakeUpstream(t)
	fake.failList = true
	client := NewClient(domain.UpstreamSpec{ID: "billing", Endpoint: server.URL}, nil, zap.NewNop())

	_, err := client.EnsureFreshSnapshot(context.Background())
	require.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
}

func TestClient_CallToolForwardsNameAndArguments(t *testing.T) {
	fake, server := newFakeUpstream(t)
	client := NewClient(domain.UpstreamSpec{ID: "billing", Endpoint: server.URL}, nil, zap.NewNop())

	result, err := client.CallTool(context.Background(), "listOrders", json.RawMessage(`{"limit":5}`))
	require.NoError(t, err)
	require.False(t, result.IsError)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Equal(t, "listOrders", fake.lastCall.Name)
	require.JSONEq(t, `{"limit":5}`, string(fake.lastCall.Arguments))
}
