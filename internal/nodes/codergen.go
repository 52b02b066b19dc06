package nodes

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/forgehq/forge/internal/graph"
	"github.com/forgehq/forge/internal/models"
)

// MaxLastResponseChars bounds the text stored at the "last_response"
// context key.
const MaxLastResponseChars = 8000

// CodergenBackend is the injected LLM-stage backend. When Outcome is nil, the handler
// synthesizes a Success outcome from Text; when non-nil, Outcome is
// used verbatim.
type CodergenBackend interface {
	Generate(ctx context.Context, prompt string) (CodergenResult, error)
}

// CodergenResult is what a CodergenBackend returns.
type CodergenResult struct {
	Text    string
	Outcome *models.NodeOutcome
}

// CodergenHandler implements the LLM stage node. When submitting through the Session Engine instead of a
// raw backend, wrap a *session.Session in a CodergenBackend adapter
// (see sessionCodergenBackend in cmd/forge/codergen.go) — this package stays
// a leaf dependency and never imports internal/session directly.
type CodergenHandler struct {
	Backend CodergenBackend
}

func (h CodergenHandler) Execute(ctx context.Context, node graph.Node, rc *models.RuntimeContext, g *graph.Graph) (models.NodeOutcome, error) {
	prompt := buildPrompt(node, g)

	result, err := h.Backend.Generate(ctx, prompt)
	if err != nil {
		return models.NodeOutcome{}, models.Wrap("Runner.StageFailed", err)
	}

	if logsRoot, ok := rc.GetString("runtime.logs_root"); ok && logsRoot != "" {
		writeNodeLogs(logsRoot, node.ID, prompt, result)
	}

	if result.Outcome != nil {
		return *result.Outcome, nil
	}

	truncated := result.Text
	if len(truncated) > MaxLastResponseChars {
		truncated = truncated[:MaxLastResponseChars]
	}
	outcome := models.NodeOutcome{
		Status: models.NodeSuccess,
		ContextUpdates: map[string]json.RawMessage{
			"last_response": mustJSON(truncated),
		},
	}
	return outcome, nil
}

// buildPrompt resolves node.attrs.prompt (falling back to label/id) and
// substitutes $goal with graph.attrs.goal.
func buildPrompt(node graph.Node, g *graph.Graph) string {
	prompt := node.Attrs.Str("prompt")
	if prompt == "" {
		prompt = node.Attrs.Str("label")
	}
	if prompt == "" {
		prompt = node.ID
	}
	goal := g.Attrs().Str("goal")
	return strings.ReplaceAll(prompt, "$goal", goal)
}

func writeNodeLogs(logsRoot, nodeID, prompt string, result CodergenResult) {
	dir := filepath.Join(logsRoot, nodeID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return
	}
	_ = os.WriteFile(filepath.Join(dir, "prompt.md"), []byte(prompt), 0o644)
	_ = os.WriteFile(filepath.Join(dir, "response.md"), []byte(result.Text), 0o644)

	status := map[string]any{"node_id": nodeID}
	if result.Outcome != nil {
		status["status"] = string(result.Outcome.Status)
		status["notes"] = result.Outcome.Notes
	} else {
		status["status"] = string(models.NodeSuccess)
	}
	statusJSON, _ := json.MarshalIndent(status, "", "  ")
	_ = os.WriteFile(filepath.Join(dir, "status.json"), statusJSON, 0o644)
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(fmt.Sprintf("%q", fmt.Sprint(v)))
	}
	return b
}
