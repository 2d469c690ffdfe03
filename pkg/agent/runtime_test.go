package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runtimeWithTools(t *testing.T) (*Runtime, *[]string) {
	t.Helper()
	var executed []string
	registry, err := NewRegistry(
		AgentTypeGeneral,
		&Descriptor{
			Type:        AgentTypeGeneral,
			Description: "general",
			Tools: []ToolDefinition{
				{
					Name:        "echo",
					Description: "echoes its args",
					Handler: func(_ context.Context, userID string, args json.RawMessage) (any, error) {
						executed = append(executed, "echo:"+userID)
						return string(args), nil
					},
				},
				{
					Name:                 "destroy",
					Description:          "a mutating tool",
					RequiresConfirmation: true,
					Handler: func(_ context.Context, userID string, _ json.RawMessage) (any, error) {
						executed = append(executed, "destroy:"+userID)
						return "destroyed", nil
					},
				},
			},
		},
	)
	require.NoError(t, err)
	return NewRuntime(registry), &executed
}

func TestExecute_PlainTool(t *testing.T) {
	rt, executed := runtimeWithTools(t)

	result := rt.Execute(context.Background(), "u1", AgentTypeGeneral, ToolCall{
		ToolName:   "echo",
		Args:       json.RawMessage(`{"x":1}`),
		ToolCallID: "tc-1",
	})

	assert.True(t, result.Success)
	assert.False(t, result.Pending)
	assert.Equal(t, `{"x":1}`, result.Result)
	assert.Equal(t, "tc-1", result.ToolCallID)
	assert.Equal(t, []string{"echo:u1"}, *executed)
}

func TestExecute_UnknownToolFails(t *testing.T) {
	rt, _ := runtimeWithTools(t)
	result := rt.Execute(context.Background(), "u1", AgentTypeGeneral, ToolCall{
		ToolName: "nope", ToolCallID: "tc-2",
	})
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "no tool")
}

func TestMutatingToolRequiresConfirmation(t *testing.T) {
	rt, executed := runtimeWithTools(t)
	ctx := context.Background()

	result := rt.Execute(ctx, "u1", AgentTypeGeneral, ToolCall{
		ToolName: "destroy", ToolCallID: "tc-3",
	})
	require.True(t, result.Pending)
	assert.Empty(t, *executed, "must not execute before confirmation")

	confirmed := rt.Confirm(ctx, "u1", "tc-3", true)
	assert.True(t, confirmed.Success)
	assert.Equal(t, "destroyed", confirmed.Result)
	assert.Equal(t, []string{"destroy:u1"}, *executed)

	// Second confirmation finds nothing pending.
	again := rt.Confirm(ctx, "u1", "tc-3", true)
	assert.False(t, again.Success)
}

func TestConfirmRejectionSkipsExecution(t *testing.T) {
	rt, executed := runtimeWithTools(t)
	ctx := context.Background()

	rt.Execute(ctx, "u1", AgentTypeGeneral, ToolCall{ToolName: "destroy", ToolCallID: "tc-4"})
	result := rt.Confirm(ctx, "u1", "tc-4", false)

	assert.True(t, result.Success)
	assert.Empty(t, *executed)
}

func TestConfirmWrongUserRejected(t *testing.T) {
	rt, executed := runtimeWithTools(t)
	ctx := context.Background()

	rt.Execute(ctx, "u1", AgentTypeGeneral, ToolCall{ToolName: "destroy", ToolCallID: "tc-5"})
	result := rt.Confirm(ctx, "u2", "tc-5", true)

	assert.False(t, result.Success)
	assert.Empty(t, *executed)
}
