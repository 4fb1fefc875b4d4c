package domain

import (
	"context"
	"encoding/json"
)

// PolicyProvider supplies the current policy document. Watch may return nil
// when the provider has no change signal; callers must treat the signal as
// an optional optimization and rely on poll-on-use version comparison. A
// non-nil channel is closed when ctx ends.
type PolicyProvider interface {
	Get(ctx context.Context) (PolicyDocument, error)
	Watch(ctx context.Context) <-chan struct{}
}

// CatalogSource serves a consistent point-in-time catalog view, rebuilding
// only when the underlying policy version changed. Local providers and
// remote upstream clients implement the same contract so the aggregator can
// treat them uniformly.
type CatalogSource interface {
	EnsureFreshSnapshot(ctx context.Context) (*CatalogSnapshot, error)
}

// ToolResult is the outcome of one tool invocation. Failures are data, not
// errors: the RPC call itself succeeded, so they surface to the caller as
// an isError result, never as a transport failure.
type ToolResult struct {
	Success      bool
	Content      string
	ErrorMessage string
	ErrorType    string
}

// ToolExecutor performs the actual invocation behind a tool descriptor.
// An error return is reserved for faults outside the call itself
// (cancellation, marshaling); endpoint failures belong in ToolResult.
type ToolExecutor interface {
	Execute(ctx context.Context, tool ToolDescriptor, args json.RawMessage) (ToolResult, error)
}
