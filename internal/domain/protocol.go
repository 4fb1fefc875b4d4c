package domain

import (
	"encoding/json"
	"regexp"
)

// JSONRPCVersion is the only protocol version this server speaks.
const JSONRPCVersion = "2.0"

// Method names of the MCP surface served by this system.
const (
	MethodInitialize = "initialize"
	MethodPing       = "ping"
	MethodToolsList  = "tools/list"
	MethodToolsCall  = "tools/call"
)

// JSON-RPC 2.0 error codes, plus the implementation-specific codes in the
// server-reserved -32000..-32099 range.
const (
	CodeParseError      = -32700
	CodeInvalidRequest  = -32600
	CodeMethodNotFound  = -32601
	CodeInvalidParams   = -32602
	CodeInternalError   = -32603
	CodeInvalidToolName = -32000
	CodeToolNotFound    = -32001
)

// Request is the inbound JSON-RPC 2.0 envelope. ID stays raw so null,
// string and numeric ids are echoed back byte for byte.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage `json:"id"`
}

// Response is the outbound envelope; exactly one of Result or Error is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// CallParams are the parameters of a tools/call request.
type CallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

var toolNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,128}$`)

// IsValidToolName reports whether name satisfies the tool identifier
// grammar. Malformed names fail tools/call with CodeInvalidToolName before
// any catalog lookup happens.
func IsValidToolName(name string) bool {
	return toolNamePattern.MatchString(name)
}
