package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/memory"
)

// MemoryToolDefinitions returns the definitions of the memory tools.
func MemoryToolDefinitions() []core.ToolDefinition {
	return []core.ToolDefinition{
		{
			ToolName:        "add_memory",
			ToolDescription: "Store a memory. Text is embedded for similarity search; metadata is any JSON object and keeps its value types. Adding an existing id replaces the memory.",
			InputSchema: ObjectSchema(map[string]interface{}{
				"id":       StringProperty("Optional: document id (default: new UUID)"),
				"text":     StringProperty("Memory content"),
				"metadata": ObjectProperty("Optional: structured metadata (strings, numbers, booleans, lists, objects)"),
			}, "text"),
		},
		{
			ToolName:        "search_memory",
			ToolDescription: "Find the memories most similar to a query. Results are ordered from most to least similar with their distance.",
			InputSchema: ObjectSchema(map[string]interface{}{
				"query": StringProperty("Search query"),
				"k":     BoundedIntegerProperty("Number of results (default: configured default_k)", 1, 100),
			}, "query"),
		},
		{
			ToolName:        "get_memory",
			ToolDescription: "Fetch a single memory by id.",
			InputSchema: ObjectSchema(map[string]interface{}{
				"id": StringProperty("Document id"),
			}, "id"),
		},
		{
			ToolName:        "delete_memory",
			ToolDescription: "Delete a memory by id. Deleting an unknown id succeeds.",
			InputSchema: ObjectSchema(map[string]interface{}{
				"id": StringProperty("Document id"),
			}, "id"),
		},
	}
}

// MemoryTools returns the memory tools bound to r.
func MemoryTools(r *memory.Retriever) []core.Tool {
	handlers := map[string]HandlerFunc{
		"add_memory":    addMemoryHandler(r),
		"search_memory": searchMemoryHandler(r),
		"get_memory":    getMemoryHandler(r),
		"delete_memory": deleteMemoryHandler(r),
	}

	defs := MemoryToolDefinitions()
	out := make([]core.Tool, 0, len(defs))
	for _, def := range defs {
		out = append(out, New(def.ToolName).
			Description(def.ToolDescription).
			Schema(def.InputSchema).
			Handler(handlers[def.ToolName]).
			Build())
	}
	return out
}

func addMemoryHandler(r *memory.Retriever) HandlerFunc {
	return func(ctx context.Context, params *core.ToolParams) (*core.ToolResult, error) {
		var in core.AddMemoryInput
		if err := decodeInput(params.Input, &in); err != nil {
			return invalidInput(err), nil
		}

		var md memory.Metadata
		if len(in.Metadata) > 0 {
			if err := json.Unmarshal(in.Metadata, &md); err != nil {
				return errorResult(fmt.Errorf("%w: metadata: %w", memory.ErrInvalidInput, err)), nil
			}
		}

		id := in.ID
		if id == "" {
			id = uuid.New().String()
		}

		if err := r.AddDocument(ctx, in.Text, md, id); err != nil {
			return errorResult(err), nil
		}

		return &core.ToolResult{
			Success: true,
			Data: map[string]interface{}{
				"id":     id,
				"status": "stored",
			},
		}, nil
	}
}

func searchMemoryHandler(r *memory.Retriever) HandlerFunc {
	return func(ctx context.Context, params *core.ToolParams) (*core.ToolResult, error) {
		var in core.SearchMemoryInput
		if err := decodeInput(params.Input, &in); err != nil {
			return invalidInput(err), nil
		}

		var (
			results *memory.SearchResults
			err     error
		)
		if in.K == 0 {
			results, err = r.SearchDefault(ctx, in.Query)
		} else {
			results, err = r.Search(ctx, in.Query, in.K)
		}
		if err != nil {
			return errorResult(err), nil
		}

		return &core.ToolResult{Success: true, Data: results}, nil
	}
}

func getMemoryHandler(r *memory.Retriever) HandlerFunc {
	return func(ctx context.Context, params *core.ToolParams) (*core.ToolResult, error) {
		var in core.DocumentIDInput
		if err := decodeInput(params.Input, &in); err != nil {
			return invalidInput(err), nil
		}

		doc, err := r.Get(ctx, in.ID)
		if err != nil {
			return errorResult(err), nil
		}
		return &core.ToolResult{Success: true, Data: doc}, nil
	}
}

func deleteMemoryHandler(r *memory.Retriever) HandlerFunc {
	return func(ctx context.Context, params *core.ToolParams) (*core.ToolResult, error) {
		var in core.DocumentIDInput
		if err := decodeInput(params.Input, &in); err != nil {
			return invalidInput(err), nil
		}
		if in.ID == "" {
			return invalidInput(errors.New("id is required")), nil
		}

		if err := r.DeleteDocument(ctx, in.ID); err != nil {
			return errorResult(err), nil
		}

		return &core.ToolResult{
			Success: true,
			Data: map[string]interface{}{
				"id":     in.ID,
				"status": "deleted",
			},
		}, nil
	}
}

func decodeInput(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return errors.New("input is empty")
	}
	return json.Unmarshal(raw, v)
}

func invalidInput(err error) *core.ToolResult {
	return &core.ToolResult{
		Success:   false,
		Error:     fmt.Sprintf("invalid input: %v", err),
		ErrorCode: core.CodeInvalidInput,
	}
}

func errorResult(err error) *core.ToolResult {
	return &core.ToolResult{
		Success:   false,
		Error:     err.Error(),
		ErrorCode: ErrorCode(err),
	}
}

// ErrorCode maps retriever errors to the codes reported to clients.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, memory.ErrInvalidInput):
		return core.CodeInvalidInput
	case errors.Is(err, memory.ErrSerialization):
		return core.CodeSerialization
	case errors.Is(err, memory.ErrNotFound):
		return core.CodeNotFound
	case errors.Is(err, memory.ErrStoreUnavailable), errors.Is(err, memory.ErrClosed):
		return core.CodeStoreUnavailable
	case errors.Is(err, ErrUnknownTool):
		return core.CodeUnknownTool
	default:
		return core.CodeInternal
	}
}
