package models

import "time"

// SessionState is one of the four states in the Session Engine's state
// machine. Transitions are validated in internal/session.
type SessionState string

const (
	SessionIdle          SessionState = "idle"
	SessionProcessing    SessionState = "processing"
	SessionAwaitingInput SessionState = "awaiting_input"
	SessionClosed        SessionState = "closed"
)

// PersistenceMode controls whether lineage failures abort the operation
// that would have produced a record, or are swallowed silently.
type PersistenceMode string

const (
	PersistenceOff      PersistenceMode = "off"
	PersistenceRequired PersistenceMode = "required"
)

// ReasoningEffort is the normalized (lowercase) reasoning-effort level.
type ReasoningEffort string

const (
	ReasoningLow    ReasoningEffort = "low"
	ReasoningMedium ReasoningEffort = "medium"
	ReasoningHigh   ReasoningEffort = "high"
)

// ValidReasoningEffort reports whether s, case-folded, names a
// recognized reasoning effort.
func ValidReasoningEffort(s string) (ReasoningEffort, bool) {
	switch lower(s) {
	case string(ReasoningLow):
		return ReasoningLow, true
	case string(ReasoningMedium):
		return ReasoningMedium, true
	case string(ReasoningHigh):
		return ReasoningHigh, true
	default:
		return "", false
	}
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// FSSnapshotPolicy selects how the working directory is snapshotted at
// persisted turns. "" means no snapshotting.
type FSSnapshotPolicy string

const (
	FSSnapshotNone    FSSnapshotPolicy = ""
	FSSnapshotDefault FSSnapshotPolicy = "default"
)

// SessionConfig holds the recognized session options, all with
// documented defaults.
type SessionConfig struct {
	MaxTurns                int                `json:"max_turns" yaml:"max_turns"`                                         // 0 = unbounded
	MaxToolRoundsPerInput   int                `json:"max_tool_rounds_per_input" yaml:"max_tool_rounds_per_input"`         // default 25
	LoopDetectionWindow     int                `json:"loop_detection_window" yaml:"loop_detection_window"`                 // 0 disables
	MaxSubAgentDepth        int                `json:"max_subagent_depth" yaml:"max_subagent_depth"`                       // default 3
	DefaultCommandTimeoutMs int                `json:"default_command_timeout_ms" yaml:"default_command_timeout_ms"`       // default 30000
	MaxCommandTimeoutMs     int                `json:"max_command_timeout_ms" yaml:"max_command_timeout_ms"`               // default 600000
	ToolOutputLimits        map[string]int     `json:"tool_output_limits" yaml:"tool_output_limits"`
	ToolHookStrict          bool               `json:"tool_hook_strict" yaml:"tool_hook_strict"`
	ReasoningEffort         ReasoningEffort     `json:"reasoning_effort" yaml:"reasoning_effort"` // "" = none
	ThreadKey               string             `json:"thread_key,omitempty" yaml:"thread_key,omitempty"`
	PersistenceMode         PersistenceMode     `json:"persistence_mode" yaml:"persistence_mode"`
	FSSnapshotPolicy        FSSnapshotPolicy    `json:"fs_snapshot_policy,omitempty" yaml:"fs_snapshot_policy,omitempty"`
}

// DefaultSessionConfig returns the documented defaults.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		MaxTurns:                0,
		MaxToolRoundsPerInput:   25,
		LoopDetectionWindow:     0,
		MaxSubAgentDepth:        3,
		DefaultCommandTimeoutMs: 30_000,
		MaxCommandTimeoutMs:     600_000,
		ToolOutputLimits:        map[string]int{},
		ToolHookStrict:          false,
		ReasoningEffort:         "",
		PersistenceMode:         PersistenceOff,
	}
}

// SessionCheckpoint is a persistent snapshot of a Session, sufficient to
// resume it verbatim via from_checkpoint.
//
// Invariant: no sub-agent has an active task at checkpoint time.
type SessionCheckpoint struct {
	SessionID      string          `json:"session_id"`
	State          SessionState    `json:"state"`
	History        []Turn          `json:"history"`
	SteeringQueue  []string        `json:"steering_queue"`
	FollowupQueue  []string        `json:"followup_queue"`
	Config         SessionConfig   `json:"config"`
	ThreadKey      string          `json:"thread_key,omitempty"`
	SavedAt        time.Time       `json:"saved_at"`
}

// SubAgentStatus is the lifecycle status of a spawned child session.
type SubAgentStatus string

const (
	SubAgentRunning   SubAgentStatus = "running"
	SubAgentCompleted SubAgentStatus = "completed"
	SubAgentFailed    SubAgentStatus = "failed"
)

// SubAgentHandle identifies a child Session owned by a Sub-Agent
// Supervisor.
//
// Invariant: a handle in status Running has exactly one associated
// background task; Completed/Failed has none.
type SubAgentHandle struct {
	ID     string         `json:"id"`
	Status SubAgentStatus `json:"status"`
}

// SubmitOptions overrides config-level defaults for a single submission.
type SubmitOptions struct {
	Provider             string         `json:"provider,omitempty"`
	Model                string         `json:"model,omitempty"`
	ReasoningEffort      string         `json:"reasoning_effort,omitempty"`
	SystemPromptOverride string         `json:"system_prompt_override,omitempty"`
	ProviderOptions      map[string]any `json:"provider_options,omitempty"`
	Metadata             map[string]any `json:"metadata,omitempty"`
}

// SubmitResult aggregates statistics for submit_with_result.
type SubmitResult struct {
	AssistantText string   `json:"assistant_text"`
	ToolCallCount int      `json:"tool_call_count"`
	ToolCallIDs   []string `json:"tool_call_ids"`
	ToolErrorCount int     `json:"tool_error_count"`
	Usage         Usage    `json:"usage"`
	ThreadKey     string   `json:"thread_key,omitempty"`
}

// PersistenceSnapshot is the minimal lineage pointer returned by
// persistence_snapshot().
type PersistenceSnapshot struct {
	SessionID   string  `json:"session_id"`
	ContextID   *string `json:"context_id,omitempty"`
	HeadTurnID  *string `json:"head_turn_id,omitempty"`
}
