package main

import (
	"context"

	"github.com/forgehq/forge/internal/models"
	"github.com/forgehq/forge/internal/nodes"
	"github.com/forgehq/forge/internal/session"
)

// sessionCodergenBackend adapts a *session.Session into a
// nodes.CodergenBackend, the session-handoff glue internal/nodes
// documents but deliberately leaves out of its own package so it stays
// a leaf dependency (internal/nodes never imports internal/session).
type sessionCodergenBackend struct {
	sess *session.Session
}

func (b sessionCodergenBackend) Generate(ctx context.Context, prompt string) (nodes.CodergenResult, error) {
	result, err := b.sess.SubmitWithResult(ctx, prompt, models.SubmitOptions{})
	if err != nil {
		return nodes.CodergenResult{}, err
	}
	return nodes.CodergenResult{Text: result.AssistantText}, nil
}
