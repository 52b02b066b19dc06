package nodes

import (
	"context"

	"github.com/forgehq/forge/internal/graph"
	"github.com/forgehq/forge/internal/models"
)

// ConditionalHandler implements the Conditional node: evaluates each
// outgoing edge's condition attribute and returns a Success outcome
// whose suggested_next_ids is the first edge whose condition holds.
type ConditionalHandler struct{}

func (ConditionalHandler) Execute(_ context.Context, node graph.Node, rc *models.RuntimeContext, g *graph.Graph) (models.NodeOutcome, error) {
	lookup := contextLookup(rc)
	for _, e := range g.OutgoingEdges(node.ID) {
		cond := e.Attrs.Str("condition")
		if graph.EvaluateCondition(cond, lookup) {
			return models.NodeOutcome{
				Status:           models.NodeSuccess,
				SuggestedNextIDs: []string{e.To},
			}, nil
		}
	}
	return models.NodeOutcome{Status: models.NodeFail, Notes: "no edge condition matched"}, nil
}
