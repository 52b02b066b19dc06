// Package nodes implements the typed node handlers invoked by the
// Pipeline Runner: start, exit (never executed; the
// runner short-circuits terminals), codergen (LLM stage), tool,
// parallel, wait-human, and conditional.
package nodes

import (
	"context"

	"github.com/forgehq/forge/internal/graph"
	"github.com/forgehq/forge/internal/models"
)

// Handler implements one node kind's execution contract.
type Handler interface {
	Execute(ctx context.Context, node graph.Node, rc *models.RuntimeContext, g *graph.Graph) (models.NodeOutcome, error)
}

// Registry maps a node's handler-kind string (graph.Node.HandlerKind)
// to its Handler.
type Registry map[string]Handler

// Get looks up the handler for kind.
func (r Registry) Get(kind string) (Handler, bool) {
	h, ok := r[kind]
	return h, ok
}

// contextLookup adapts a *models.RuntimeContext into a graph.RuntimeLookup
// for the shared condition evaluator (internal/graph's Conditional
// evaluator, reused by both the Conditional handler and the runner's
// route selection).
func contextLookup(rc *models.RuntimeContext) graph.RuntimeLookup {
	return func(key string) string {
		s, _ := rc.GetString(key)
		return s
	}
}
