package session

import "github.com/forgehq/forge/internal/models"

// Kind values for the Session.* error family.
const (
	KindClosed                models.Kind = "Session.Closed"
	KindInvalidReasoningEffort models.Kind = "Session.InvalidReasoningEffort"
	KindLLMRequestFailed       models.Kind = "Session.LLMRequestFailed"
	KindCheckpointBlocked      models.Kind = "Session.CheckpointBlocked"
	KindNoProvider             models.Kind = "Session.NoProvider"
)
