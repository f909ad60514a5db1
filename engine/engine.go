package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/tools"
)

// Engine dispatches tool calls to a registry, timing and auditing each call.
type Engine struct {
	registry *tools.Registry
	audit    AuditLogger // Optional: audit logging
}

// Option configures the engine.
type Option func(*Engine)

// WithAudit sets the audit logger implementation.
func WithAudit(a AuditLogger) Option {
	return func(e *Engine) {
		e.audit = a
	}
}

// NewEngine creates a new engine over the given registry.
func NewEngine(registry *tools.Registry, opts ...Option) *Engine {
	e := &Engine{registry: registry}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the engine's tool registry.
func (e *Engine) Registry() *tools.Registry {
	return e.registry
}

// Call is a single tool invocation.
type Call struct {
	// RequestID is echoed back to the client.
	RequestID string

	// ClientID identifies the calling connection.
	ClientID string

	// Tool is the tool name.
	Tool string

	// Input is the raw JSON tool input.
	Input json.RawMessage
}

// Execute runs one call. It never returns a nil result: unknown tools and
// tool failures are reported as unsuccessful results with an error code.
func (e *Engine) Execute(ctx context.Context, call *Call) (*core.ToolResult, core.ToolExecution) {
	startTime := time.Now()

	execution := core.ToolExecution{
		Tool:  call.Tool,
		Input: call.Input,
	}

	var result *core.ToolResult
	tool, ok := e.registry.Get(call.Tool)
	if !ok {
		result = &core.ToolResult{
			Success:   false,
			Error:     fmt.Sprintf("unknown tool: %s", call.Tool),
			ErrorCode: core.CodeUnknownTool,
		}
	} else {
		var err error
		result, err = tool.Execute(ctx, &core.ToolParams{
			Input:     call.Input,
			RequestID: call.RequestID,
			ClientID:  call.ClientID,
		})
		switch {
		case err != nil:
			result = &core.ToolResult{Success: false, Error: err.Error(), ErrorCode: categorizeError(err.Error())}
		case result == nil:
			result = &core.ToolResult{Success: false, Error: "no result returned", ErrorCode: core.CodeInternal}
		case !result.Success && result.ErrorCode == "":
			result.ErrorCode = categorizeError(result.Error)
		}
	}

	execution.DurationMs = time.Since(startTime).Milliseconds()
	if result.Success {
		execution.Result = result.Data
	} else {
		execution.Error = result.Error
		execution.ErrorCode = result.ErrorCode
	}

	log.Printf("[ENGINE] %s", formatExecution(execution))

	if e.audit != nil {
		e.logAudit(ctx, call, result, execution, startTime)
	}

	return result, execution
}

func (e *Engine) logAudit(ctx context.Context, call *Call, result *core.ToolResult, execution core.ToolExecution, startTime time.Time) {
	var outputBytes json.RawMessage
	var errStr *string
	if result.Success {
		outputBytes, _ = json.Marshal(result.Data)
	} else {
		errStr = &result.Error
	}

	e.audit.Log(ctx, &AuditEntry{
		ID:         uuid.New().String(),
		RequestID:  call.RequestID,
		ClientID:   call.ClientID,
		ToolName:   call.Tool,
		ToolInput:  call.Input,
		ToolOutput: outputBytes,
		Error:      errStr,
		ErrorCode:  result.ErrorCode,
		DurationMs: execution.DurationMs,
		IsWriteOp:  isWriteTool(call.Tool),
		Timestamp:  startTime.Unix(),
	})
}

func formatExecution(x core.ToolExecution) string {
	if x.Error != "" {
		return fmt.Sprintf("tool=%s failed code=%s duration=%dms error=%q", x.Tool, x.ErrorCode, x.DurationMs, truncate(x.Error, 120))
	}
	return fmt.Sprintf("tool=%s ok duration=%dms", x.Tool, x.DurationMs)
}

// isWriteTool reports whether a tool changes the collection.
func isWriteTool(name string) bool {
	switch name {
	case "add_memory", "delete_memory":
		return true
	default:
		return false
	}
}

// categorizeError maps error messages of tools that did not classify their
// failure to an error code.
func categorizeError(errMsg string) string {
	if errMsg == "" {
		return core.CodeInternal
	}

	errLower := strings.ToLower(errMsg)

	switch {
	case strings.Contains(errLower, "not found"), strings.Contains(errLower, "does not exist"):
		return core.CodeNotFound
	case strings.Contains(errLower, "invalid"), strings.Contains(errLower, "malformed"):
		return core.CodeInvalidInput
	case strings.Contains(errLower, "serializ"):
		return core.CodeSerialization
	case strings.Contains(errLower, "timeout"), strings.Contains(errLower, "deadline"),
		strings.Contains(errLower, "connection"), strings.Contains(errLower, "unavailable"):
		return core.CodeStoreUnavailable
	default:
		return core.CodeInternal
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	for maxLen > 0 && !utf8.RuneStart(s[maxLen]) {
		maxLen--
	}
	return s[:maxLen] + "..."
}
