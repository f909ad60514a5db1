package tools_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/tools"
)

func echoTool(name string) core.Tool {
	return tools.New(name).
		Description("Echo the input").
		Schema(tools.ObjectSchema(map[string]interface{}{
			"msg": tools.StringProperty("Message"),
		}, "msg")).
		Handler(func(ctx context.Context, params *core.ToolParams) (*core.ToolResult, error) {
			return &core.ToolResult{Success: true, Data: string(params.Input)}, nil
		}).
		Build()
}

func TestRegistry(t *testing.T) {
	reg := tools.NewRegistry(echoTool("b_echo"), echoTool("a_echo"))

	_, ok := reg.Get("a_echo")
	assert.True(t, ok)
	_, ok = reg.Get("missing")
	assert.False(t, ok)

	defs := reg.List()
	require.Len(t, defs, 2)
	assert.Equal(t, "a_echo", defs[0].ToolName)
	assert.Equal(t, []string{"msg"}, defs[0].InputSchema["required"])

	res, err := reg.Execute(context.Background(), "a_echo", json.RawMessage(`{"msg":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, `{"msg":"hi"}`, res.Data)

	_, err = reg.Execute(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, tools.ErrUnknownTool)
}

func TestRegistry_RegisterReplaces(t *testing.T) {
	reg := tools.NewRegistry(echoTool("echo"))
	reg.Register(tools.New("echo").Description("replaced").Build())

	defs := reg.List()
	require.Len(t, defs, 1)
	assert.Equal(t, "replaced", defs[0].ToolDescription)
	assert.Equal(t, "object", defs[0].InputSchema["type"])
}

func TestBuilder_NoHandler(t *testing.T) {
	tool := tools.New("empty").Build()
	_, err := tool.Execute(context.Background(), nil)
	assert.Error(t, err)
}

func TestDefinition_JSON(t *testing.T) {
	data, err := json.Marshal(tools.Definition(echoTool("echo")))
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"name": "echo",
		"description": "Echo the input",
		"input_schema": {
			"type": "object",
			"properties": {"msg": {"type": "string", "description": "Message"}},
			"required": ["msg"]
		}
	}`, string(data))
}

func TestSchemaHelpers(t *testing.T) {
	prop := tools.BoundedIntegerProperty("k", 1, 100)
	assert.Equal(t, "integer", prop["type"])
	assert.Equal(t, 1, prop["minimum"])
	assert.Equal(t, 100, prop["maximum"])

	arr := tools.ArrayProperty("tags", tools.StringProperty(""))
	assert.Equal(t, "array", arr["type"])

	obj := tools.ObjectProperty("metadata")
	assert.Equal(t, true, obj["additionalProperties"])

	assert.NotContains(t, tools.ObjectSchema(map[string]interface{}{}), "required")
}
