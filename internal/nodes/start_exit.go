package nodes

import (
	"context"

	"github.com/forgehq/forge/internal/graph"
	"github.com/forgehq/forge/internal/models"
)

// StartHandler implements the Start node.
type StartHandler struct{}

func (StartHandler) Execute(_ context.Context, _ graph.Node, _ *models.RuntimeContext, _ *graph.Graph) (models.NodeOutcome, error) {
	return models.NodeOutcome{Status: models.NodeSuccess}, nil
}

// ExitHandler exists only so Registry lookups for a terminal's
// handler-kind resolve to something; the Pipeline Runner never invokes
// it.
type ExitHandler struct{}

func (ExitHandler) Execute(_ context.Context, _ graph.Node, _ *models.RuntimeContext, _ *graph.Graph) (models.NodeOutcome, error) {
	return models.NodeOutcome{Status: models.NodeSuccess}, nil
}
