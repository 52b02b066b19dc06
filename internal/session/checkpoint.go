package session

import (
	"context"
	"time"

	"github.com/forgehq/forge/internal/lineage"
	"github.com/forgehq/forge/internal/models"
)

// Checkpoint returns a persistent snapshot sufficient to resume this
// Session verbatim via FromCheckpoint.
func (s *Session) Checkpoint() models.SessionCheckpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	steering, followUp := s.steering.Snapshot()
	return models.SessionCheckpoint{
		SessionID:     s.id,
		State:         s.state,
		History:       append([]models.Turn(nil), s.history...),
		SteeringQueue: steering,
		FollowupQueue: followUp,
		Config:        s.config,
		ThreadKey:     s.config.ThreadKey,
		SavedAt:       time.Now(),
	}
}

// FromCheckpoint rebuilds a Session from a prior Checkpoint, wiring the
// same Deps a fresh Session would take. The checkpoint invariant (no
// sub-agent has an active task at checkpoint time) is the caller's
// responsibility to uphold before calling Checkpoint.
func FromCheckpoint(cp models.SessionCheckpoint, deps Deps, subagentDepth int) *Session {
	s := New(cp.SessionID, cp.Config, deps, subagentDepth)
	s.mu.Lock()
	s.state = cp.State
	s.history = append([]models.Turn(nil), cp.History...)
	s.mu.Unlock()
	s.steering.restore(cp.SteeringQueue, cp.FollowupQueue)
	return s
}

// OpenLineageContext opens (or resumes) this Session's lineage context,
// the missing half of persistTurn's contract: until this is called,
// persistTurn is a no-op (or an error, under PersistenceRequired).
// baseTurnID, if non-empty, forks from an existing turn (e.g. resuming
// a checkpointed session); otherwise a fresh context is created.
func (s *Session) OpenLineageContext(ctx context.Context, baseTurnID string) error {
	if s.deps.Lineage == nil {
		return nil
	}
	if baseTurnID == "" {
		baseTurnID = lineage.RootSentinel
	}
	lctx, err := s.deps.Lineage.CreateContext(ctx, baseTurnID)
	if err != nil {
		return models.Wrap(models.Kind("Storage.AppendFailed"), err)
	}
	s.mu.Lock()
	contextID := lctx.ContextID
	headTurnID := lctx.HeadTurnID
	s.contextID = &contextID
	s.headTurnID = &headTurnID
	s.mu.Unlock()
	return nil
}
