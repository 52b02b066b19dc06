package nodes

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/forgehq/forge/internal/graph"
	"github.com/forgehq/forge/internal/models"
)

// ManagerLoopHandler implements the stack.manager_loop node: a node that re-enters one of its own outgoing
// branches, bounded by max_retries, until an edge whose condition no
// longer holds routes it out of the loop. It is a stack-frame
// primitive in miniature: each iteration pushes a counter onto the runtime context under the
// node's own id (stack.<node_id>.iterations) rather than a real call
// stack, since the runner's RuntimeContext is the only per-run state
// shared across node visits.
//
// Edge selection reuses the Conditional handler's evaluator: edges
// declare a "condition" attribute the same way, and the first edge
// whose condition holds is taken. An edge with no condition is always
// eligible and acts as the loop's exit once max_retries is spent.
type ManagerLoopHandler struct{}

func (ManagerLoopHandler) Execute(_ context.Context, node graph.Node, rc *models.RuntimeContext, g *graph.Graph) (models.NodeOutcome, error) {
	maxIterations, ok := node.Attrs.GetInteger("max_retries")
	if !ok || maxIterations <= 0 {
		maxIterations = 10
	}

	counterKey := fmt.Sprintf("stack.%s.iterations", node.ID)
	var iterations int64
	if raw, ok := rc.Get(counterKey); ok {
		_ = json.Unmarshal(raw, &iterations)
	}

	lookup := contextLookup(rc)
	edges := g.OutgoingEdges(node.ID)

	var chosen *graph.Edge
	for i := range edges {
		e := edges[i]
		cond := e.Attrs.Str("condition")
		if cond == "" || graph.EvaluateCondition(cond, lookup) {
			chosen = &e
			break
		}
	}
	if chosen == nil {
		return models.NodeOutcome{Status: models.NodeFail, Notes: "manager_loop: no outgoing edge available"}, nil
	}

	iterations++
	iterationsJSON, _ := json.Marshal(iterations)

	if iterations > maxIterations {
		return models.NodeOutcome{
			Status:         models.NodePartialSuccess,
			Notes:          "manager_loop: max_retries exhausted, exiting loop",
			ContextUpdates: map[string]json.RawMessage{counterKey: iterationsJSON},
		}, nil
	}

	return models.NodeOutcome{
		Status:           models.NodeSuccess,
		ContextUpdates:   map[string]json.RawMessage{counterKey: iterationsJSON},
		SuggestedNextIDs: []string{chosen.To},
	}, nil
}
