package core

import (
	"context"
	"encoding/json"
)

// Tool is an operation exposed to agents and remote clients.
type Tool interface {
	// Name is the unique tool identifier, e.g. "search_memory".
	Name() string

	// Description tells the caller what the tool does.
	Description() string

	// Schema is the JSON Schema of the tool input.
	Schema() map[string]interface{}

	// Execute runs the tool. Failures the caller can act on are reported
	// in ToolResult; a returned error means the tool itself broke.
	Execute(ctx context.Context, params *ToolParams) (*ToolResult, error)
}

// ToolDefinition is the serializable description of a tool.
type ToolDefinition struct {
	ToolName        string                 `json:"name"`
	ToolDescription string                 `json:"description"`
	InputSchema     map[string]interface{} `json:"input_schema"`
}

// ToolParams is the input of a single tool call.
type ToolParams struct {
	// Input is the raw JSON input matching the tool schema.
	Input json.RawMessage

	// RequestID correlates the call with the client request.
	RequestID string

	// ClientID identifies the connection the call came from, if any.
	ClientID string
}

// ToolResult is the outcome of a tool call.
type ToolResult struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	ErrorCode string      `json:"error_code,omitempty"`
}

// ToolExecution records one tool call for logging and auditing.
type ToolExecution struct {
	Tool       string          `json:"tool"`
	Input      json.RawMessage `json:"input,omitempty"`
	Result     interface{}     `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	ErrorCode  string          `json:"error_code,omitempty"`
	DurationMs int64           `json:"duration_ms"`
}

// Error codes reported in ToolResult.ErrorCode.
const (
	CodeInvalidInput     = "invalid_input"
	CodeSerialization    = "serialization"
	CodeNotFound         = "not_found"
	CodeStoreUnavailable = "store_unavailable"
	CodeUnknownTool      = "unknown_tool"
	CodeInternal         = "internal"
)
