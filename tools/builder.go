package tools

import (
	"context"
	"fmt"

	"github.com/becomeliminal/nim-memory/core"
)

// HandlerFunc executes a tool call.
type HandlerFunc func(ctx context.Context, params *core.ToolParams) (*core.ToolResult, error)

// Builder assembles a core.Tool.
//
//	tool := tools.New("search_memory").
//		Description("Search memories").
//		Schema(tools.ObjectSchema(props, "query")).
//		Handler(fn).
//		Build()
type Builder struct {
	name        string
	description string
	schema      map[string]interface{}
	handler     HandlerFunc
}

// New starts a tool definition.
func New(name string) *Builder {
	return &Builder{name: name}
}

// Description sets the tool description.
func (b *Builder) Description(d string) *Builder {
	b.description = d
	return b
}

// Schema sets the input schema.
func (b *Builder) Schema(s map[string]interface{}) *Builder {
	b.schema = s
	return b
}

// Handler sets the function run on Execute.
func (b *Builder) Handler(h HandlerFunc) *Builder {
	b.handler = h
	return b
}

// Build returns the tool. A missing schema defaults to an empty object.
func (b *Builder) Build() core.Tool {
	schema := b.schema
	if schema == nil {
		schema = ObjectSchema(map[string]interface{}{})
	}
	return &tool{
		name:        b.name,
		description: b.description,
		schema:      schema,
		handler:     b.handler,
	}
}

type tool struct {
	name        string
	description string
	schema      map[string]interface{}
	handler     HandlerFunc
}

func (t *tool) Name() string                   { return t.name }
func (t *tool) Description() string            { return t.description }
func (t *tool) Schema() map[string]interface{} { return t.schema }

func (t *tool) Execute(ctx context.Context, params *core.ToolParams) (*core.ToolResult, error) {
	if t.handler == nil {
		return nil, fmt.Errorf("tool %s has no handler", t.name)
	}
	if params == nil {
		params = &core.ToolParams{}
	}
	return t.handler(ctx, params)
}

// Definition describes a tool for listing.
func Definition(t core.Tool) core.ToolDefinition {
	return core.ToolDefinition{
		ToolName:        t.Name(),
		ToolDescription: t.Description(),
		InputSchema:     t.Schema(),
	}
}
