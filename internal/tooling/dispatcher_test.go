package tooling

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgehq/forge/internal/eventbus"
	"github.com/forgehq/forge/internal/models"
)

func echoTool() *FuncTool {
	schema := json.RawMessage(`{
		"type": "object",
		"properties": {"message": {"type": "string"}},
		"required": ["message"],
		"additionalProperties": false
	}`)
	return NewFuncTool("echo", "echoes a message", schema, func(_ context.Context, args json.RawMessage) (Result, error) {
		var in struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(args, &in)
		return Result{Content: in.Message}, nil
	})
}

func TestDispatchUnknownToolSynthesizesError(t *testing.T) {
	reg := NewRegistry()
	d := NewDispatcher(reg, nil)
	results := d.Dispatch(context.Background(), []models.ToolCall{{ID: "c1", Name: "nope", Arguments: json.RawMessage(`{}`)}}, DispatchOptions{})
	require.Len(t, results, 1)
	assert.True(t, results[0].IsError)
	assert.Contains(t, results[0].Content, "Unknown tool: nope")
}

func TestDispatchValidatesSchema(t *testing.T) {
	reg := NewRegistry()
	reg.Register(echoTool())
	d := NewDispatcher(reg, nil)
	results := d.Dispatch(context.Background(), []models.ToolCall{{ID: "c1", Name: "echo", Arguments: json.RawMessage(`{}`)}}, DispatchOptions{})
	require.Len(t, results, 1)
	assert.True(t, results[0].IsError)
}

func TestDispatchSuccessTruncatesOutputButNotEvent(t *testing.T) {
	reg := NewRegistry()
	reg.Register(echoTool())
	bus := eventbus.NewBufferedEmitter(16)
	sub, unsub := bus.Subscribe()
	defer unsub()
	emitter := eventbus.NewSessionEmitter("sess-1", bus)
	d := NewDispatcher(reg, emitter)

	longMsg := ""
	for i := 0; i < 20; i++ {
		longMsg += "0123456789"
	}
	args, _ := json.Marshal(map[string]string{"message": longMsg})
	results := d.Dispatch(context.Background(), []models.ToolCall{{ID: "c1", Name: "echo", Arguments: args}}, DispatchOptions{
		ToolOutputLimits: map[string]int{"echo": 10},
	})
	require.Len(t, results, 1)
	assert.False(t, results[0].IsError)
	assert.Contains(t, results[0].Content, "truncated")
	assert.Less(t, len(results[0].Content), len(longMsg))

	var sawFullOutput bool
	for i := 0; i < 10; i++ {
		select {
		case ev := <-sub:
			if ev.Kind == eventbus.ToolCallEnd {
				if out, ok := ev.Data["output"].(string); ok && out == longMsg {
					sawFullOutput = true
				}
			}
		default:
		}
	}
	assert.True(t, sawFullOutput, "event bus copy of tool output must not be truncated")
}

func TestDispatchPreHookSkip(t *testing.T) {
	reg := NewRegistry()
	reg.Register(echoTool())
	d := NewDispatcher(reg, nil)
	hook := PreHookFunc(func(_ context.Context, _ string, _ models.ToolCall) (PreHookOutcome, error) {
		return PreHookOutcome{Action: PreHookSkip, Message: "skipped by policy"}, nil
	})
	args, _ := json.Marshal(map[string]string{"message": "hi"})
	results := d.Dispatch(context.Background(), []models.ToolCall{{ID: "c1", Name: "echo", Arguments: args}}, DispatchOptions{PreHook: hook})
	require.Len(t, results, 1)
	assert.Equal(t, "skipped by policy", results[0].Content)
	assert.False(t, results[0].IsError)
}

func TestDispatchParallelPreservesInputOrder(t *testing.T) {
	reg := NewRegistry()
	reg.Register(echoTool())
	d := NewDispatcher(reg, nil)
	calls := make([]models.ToolCall, 0, 5)
	for i := 0; i < 5; i++ {
		args, _ := json.Marshal(map[string]string{"message": string(rune('a' + i))})
		calls = append(calls, models.ToolCall{ID: string(rune('0' + i)), Name: "echo", Arguments: args})
	}
	results := d.Dispatch(context.Background(), calls, DispatchOptions{SupportsParallelToolCalls: true})
	require.Len(t, results, 5)
	for i, r := range results {
		assert.Equal(t, calls[i].ID, r.ToolCallID)
	}
}
