package subagent

import "github.com/forgehq/forge/internal/models"

// Kind values for the Session.SubAgent* error family.
const (
	KindDepthExceeded  models.Kind = "Session.SubAgentDepthExceeded"
	KindSpawnFailed    models.Kind = "Session.SubAgentSpawnFailed"
	KindUnknownAgent   models.Kind = "Session.SubAgentNotFound"
	KindAlreadyRunning models.Kind = "Session.SubAgentAlreadyRunning"
)
