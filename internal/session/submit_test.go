package session

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgehq/forge/internal/env"
	"github.com/forgehq/forge/internal/eventbus"
	"github.com/forgehq/forge/internal/llm"
	"github.com/forgehq/forge/internal/models"
	"github.com/forgehq/forge/internal/tooling"
)

type scriptedLLM struct {
	responses []llm.Response
	calls     int
}

func (f *scriptedLLM) Capabilities(string, string) llm.Capabilities {
	return llm.Capabilities{ContextWindowSize: 100000}
}

func (f *scriptedLLM) Complete(ctx context.Context, provider string, req llm.Request) (llm.Response, error) {
	resp := f.responses[f.calls]
	f.calls++
	return resp, nil
}

func newTestSession(t *testing.T, llmc *scriptedLLM) (*Session, *tooling.Registry) {
	t.Helper()
	reg := tooling.NewRegistry()
	reg.Register(tooling.NewFuncTool("echo", "echoes input", json.RawMessage(`{"type":"object"}`),
		func(ctx context.Context, args json.RawMessage) (tooling.Result, error) {
			return tooling.Result{Content: "echoed"}, nil
		}))
	bus := eventbus.NewBufferedEmitter(64)
	emitter := eventbus.NewSessionEmitter("sess-1", bus)
	deps := Deps{
		LLMClient:  llmc,
		Env:        env.NewLocalExecutionEnvironment(),
		Bus:        bus,
		Registry:   reg,
		Dispatcher: tooling.NewDispatcher(reg, emitter),
		Provider:   "test",
		Model:      "test-model",
	}
	cfg := models.DefaultSessionConfig()
	s := New("sess-1", cfg, deps, 0)
	return s, reg
}

func TestSubmitCompletesNaturallyWithoutToolCalls(t *testing.T) {
	llmc := &scriptedLLM{responses: []llm.Response{{Text: "all done."}}}
	s, _ := newTestSession(t, llmc)

	result, err := s.Submit(context.Background(), "do the thing", models.SubmitOptions{})
	require.NoError(t, err)
	assert.Equal(t, "all done.", result.AssistantText)
	assert.Equal(t, models.SessionIdle, s.State())
	assert.Equal(t, 0, result.ToolCallCount)
}

func TestSubmitTransitionsToAwaitingInputOnQuestion(t *testing.T) {
	llmc := &scriptedLLM{responses: []llm.Response{{Text: "should I continue with the deploy?"}}}
	s, _ := newTestSession(t, llmc)

	_, err := s.Submit(context.Background(), "do the thing", models.SubmitOptions{})
	require.NoError(t, err)
	assert.Equal(t, models.SessionAwaitingInput, s.State())
}

func TestSubmitDispatchesToolCallsThenCompletes(t *testing.T) {
	llmc := &scriptedLLM{responses: []llm.Response{
		{ToolCalls: []llm.ToolCallOut{{ID: "c1", Name: "echo", Arguments: json.RawMessage(`{}`)}}},
		{Text: "finished."},
	}}
	s, _ := newTestSession(t, llmc)

	result, err := s.Submit(context.Background(), "run echo", models.SubmitOptions{})
	require.NoError(t, err)
	assert.Equal(t, "finished.", result.AssistantText)
	assert.Equal(t, 1, result.ToolCallCount)
	assert.Equal(t, []string{"c1"}, result.ToolCallIDs)
	assert.Equal(t, 0, result.ToolErrorCount)
	assert.Equal(t, models.SessionIdle, s.State())

	history := s.snapshotHistory()
	require.Len(t, history, 4) // user, assistant(tool_call), tool_results, assistant(final)
	assert.Equal(t, models.TurnToolResults, history[2].Kind)
	assert.Equal(t, "echoed", history[2].Results[0].Content)
}

func TestSubmitUnknownToolProducesErrorResult(t *testing.T) {
	llmc := &scriptedLLM{responses: []llm.Response{
		{ToolCalls: []llm.ToolCallOut{{ID: "c1", Name: "nonexistent", Arguments: json.RawMessage(`{}`)}}},
		{Text: "done."},
	}}
	s, _ := newTestSession(t, llmc)

	result, err := s.Submit(context.Background(), "run bogus", models.SubmitOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.ToolErrorCount)
}

func TestSubmitFailsWhenClosed(t *testing.T) {
	llmc := &scriptedLLM{}
	s, _ := newTestSession(t, llmc)
	s.Close()

	_, err := s.Submit(context.Background(), "hello", models.SubmitOptions{})
	require.Error(t, err)
}

func TestSubmitWithResultAggregatesUsage(t *testing.T) {
	llmc := &scriptedLLM{responses: []llm.Response{{Text: "ok", InputTokens: 10, OutputTokens: 5}}}
	s, _ := newTestSession(t, llmc)

	result, err := s.SubmitWithResult(context.Background(), "hi", models.SubmitOptions{})
	require.NoError(t, err)
	assert.Equal(t, 10, result.Usage.InputTokens)
	assert.Equal(t, 5, result.Usage.OutputTokens)
}
