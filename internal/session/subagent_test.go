package session

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgehq/forge/internal/llm"
	"github.com/forgehq/forge/internal/models"
)

func TestSpawnAgentThenWaitReturnsChildOutput(t *testing.T) {
	parentLLM := &scriptedLLM{responses: []llm.Response{
		{ToolCalls: []llm.ToolCallOut{{ID: "c1", Name: "spawn_agent", Arguments: json.RawMessage(`{"task":"investigate"}`)}}},
		{Text: "spawned."},
		// The child session shares this client and consumes one response.
		{Text: "investigated."},
	}}
	s, _ := newTestSession(t, parentLLM)
	s.config.MaxSubAgentDepth = 3

	result, err := s.Submit(context.Background(), "delegate this", models.SubmitOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.ToolCallCount)
	assert.Equal(t, 0, result.ToolErrorCount)

	agentID := spawnedAgentID(t, s)
	require.NotEmpty(t, agentID)

	waitResult, err := s.supervisor.Wait(context.Background(), agentID)
	require.NoError(t, err)
	assert.True(t, waitResult.Success)
}

// spawnedAgentID pulls the agent id the spawn_agent call returned by
// replaying the last tool-results turn.
func spawnedAgentID(t *testing.T, s *Session) string {
	t.Helper()
	for i := len(s.history) - 1; i >= 0; i-- {
		turn := s.history[i]
		if turn.Kind != models.TurnToolResults {
			continue
		}
		for _, r := range turn.Results {
			var payload struct {
				AgentID string `json:"agent_id"`
			}
			if err := json.Unmarshal([]byte(r.Content), &payload); err == nil && payload.AgentID != "" {
				return payload.AgentID
			}
		}
	}
	return ""
}

func TestSpawnAgentRejectedAtMaxDepth(t *testing.T) {
	llmc := &scriptedLLM{responses: []llm.Response{
		{ToolCalls: []llm.ToolCallOut{{ID: "c1", Name: "spawn_agent", Arguments: json.RawMessage(`{"task":"investigate"}`)}}},
		{Text: "gave up."},
	}}
	s, _ := newTestSession(t, llmc)
	s.config.MaxSubAgentDepth = 0

	result, err := s.Submit(context.Background(), "delegate this", models.SubmitOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.ToolErrorCount)
}
