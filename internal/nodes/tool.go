package nodes

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/forgehq/forge/internal/graph"
	"github.com/forgehq/forge/internal/models"
	"github.com/forgehq/forge/internal/tooling"
)

// ToolDispatch is the subset of *tooling.Dispatcher the Tool node
// handler needs, kept as an interface so tests can substitute a fake.
type ToolDispatch interface {
	Dispatch(ctx context.Context, calls []models.ToolCall, opts tooling.DispatchOptions) []models.ToolResultEntry
}

// ToolHandler implements the Tool node: validates and dispatches
// exactly one tool call through the Tool Dispatcher. The node's attrs name the tool ("tool", falling back to
// "label") and supply its JSON arguments ("arguments", a literal JSON
// object string).
type ToolHandler struct {
	Dispatcher ToolDispatch
	Options    tooling.DispatchOptions
}

func (h ToolHandler) Execute(ctx context.Context, node graph.Node, _ *models.RuntimeContext, _ *graph.Graph) (models.NodeOutcome, error) {
	name := node.Attrs.Str("tool")
	if name == "" {
		name = node.Attrs.Str("label")
	}
	if name == "" {
		return models.NodeOutcome{Status: models.NodeFail}, models.NewError(tooling.KindUnknownTool, "tool node declares no tool name")
	}

	argsLiteral := node.Attrs.Str("arguments")
	if argsLiteral == "" {
		argsLiteral = "{}"
	}

	call := models.ToolCall{ID: node.ID, Name: name, RawArguments: argsLiteral}
	results := h.Dispatcher.Dispatch(ctx, []models.ToolCall{call}, h.Options)
	if len(results) == 0 {
		return models.NodeOutcome{Status: models.NodeFail, Notes: "tool dispatch returned no result"}, nil
	}

	res := results[0]
	status := models.NodeSuccess
	if res.IsError {
		status = models.NodeFail
	}
	return models.NodeOutcome{
		Status: status,
		Notes:  res.Content,
		ContextUpdates: map[string]json.RawMessage{
			fmt.Sprintf("tool.%s.output", node.ID): mustJSON(res.Content),
		},
	}, nil
}
