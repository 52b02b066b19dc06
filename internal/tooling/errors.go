package tooling

import "github.com/forgehq/forge/internal/models"

// Kind values for the Tool.* error family.
const (
	KindUnknownTool     models.Kind = "Tool.UnknownTool"
	KindSchemaViolation models.Kind = "Tool.SchemaViolation"
	KindHookFailure     models.Kind = "Tool.HookFailure"
	KindExecutionFailed models.Kind = "Tool.ExecutionFailed"
)
