package lineage

import (
	"encoding/json"
	"time"
)

// Type identifiers and versions.
const (
	TypeSessionLifecycle = "forge.agent.session_lifecycle"
	TypeUserTurn         = "forge.agent.user_turn"
	TypeAssistantTurn    = "forge.agent.assistant_turn"
	TypeToolResultsTurn  = "forge.agent.tool_results_turn"
	TypeSystemTurn       = "forge.agent.system_turn"
	TypeSteeringTurn     = "forge.agent.steering_turn"
	TypeToolCallLifecycle = "forge.agent.tool_call_lifecycle"
	TypeSubAgentSpawn     = "forge.link.subagent_spawn"

	TypeRunLifecycle      = "forge.attractor.run_lifecycle"
	TypeStageLifecycle    = "forge.attractor.stage_lifecycle"
	TypeParallelLifecycle = "forge.attractor.parallel_lifecycle"
	TypeInterviewLifecycle = "forge.attractor.interview_lifecycle"
	TypeCheckpointSaved   = "forge.attractor.checkpoint_saved"
	TypeRouteDecision     = "forge.attractor.route_decision"
	TypeDotSource         = "forge.attractor.dot_source"
	TypeGraphSnapshot     = "forge.attractor.graph_snapshot"
	TypeStageToAgentLink  = "forge.link.stage_to_agent"
)

const (
	VersionSessionLifecycle = 1
	VersionTurn             = 2 // user/assistant/tool_results/system/steering turns
	VersionToolCallLifecycle = 1
	VersionSubAgentSpawn     = 1
	VersionRunLifecycle      = 1
	VersionStageLifecycle    = 1
	VersionParallelLifecycle = 1
	VersionInterviewLifecycle = 1
	VersionCheckpointSaved   = 1
	VersionRouteDecision     = 1
	VersionDotSource         = 1
	VersionGraphSnapshot     = 1
	VersionStageToAgentLink  = 1
)

// SessionLifecycleRecord payload for TypeSessionLifecycle.
type SessionLifecycleRecord struct {
	Kind             string    `json:"kind" msgpack:"kind"` // "started" | "ended"
	SessionID        string    `json:"session_id" msgpack:"session_id"`
	Timestamp        time.Time `json:"timestamp" msgpack:"timestamp"`
	FinalState       string    `json:"final_state,omitempty" msgpack:"final_state,omitempty"`
	SequenceNo       uint64    `json:"sequence_no" msgpack:"sequence_no"`
	ThreadKey        string    `json:"thread_key,omitempty" msgpack:"thread_key,omitempty"`
	FSRootHash       string    `json:"fs_root_hash,omitempty" msgpack:"fs_root_hash,omitempty"`
	SnapshotPolicyID string    `json:"snapshot_policy_id,omitempty" msgpack:"snapshot_policy_id,omitempty"`
}

// TurnRecord payload shared by user_turn/assistant_turn/tool_results_turn/system_turn/steering_turn.
type TurnRecord struct {
	SessionID        string          `json:"session_id" msgpack:"session_id"`
	Timestamp        time.Time       `json:"timestamp" msgpack:"timestamp"`
	Turn             json.RawMessage `json:"turn" msgpack:"turn"`
	SequenceNo       uint64          `json:"sequence_no" msgpack:"sequence_no"`
	ThreadKey        string          `json:"thread_key,omitempty" msgpack:"thread_key,omitempty"`
	FSRootHash       string          `json:"fs_root_hash,omitempty" msgpack:"fs_root_hash,omitempty"`
	SnapshotPolicyID string          `json:"snapshot_policy_id,omitempty" msgpack:"snapshot_policy_id,omitempty"`
}

// ToolCallLifecycleRecord payload for TypeToolCallLifecycle.
type ToolCallLifecycleRecord struct {
	Kind       string `json:"kind" msgpack:"kind"` // "started" | "ended"
	SessionID  string `json:"session_id" msgpack:"session_id"`
	Timestamp  time.Time `json:"timestamp" msgpack:"timestamp"`
	CallID     string `json:"call_id" msgpack:"call_id"`
	ToolName   string `json:"tool_name,omitempty" msgpack:"tool_name,omitempty"`
	Arguments  string `json:"arguments,omitempty" msgpack:"arguments,omitempty"`
	Output     string `json:"output,omitempty" msgpack:"output,omitempty"`
	IsError    bool   `json:"is_error,omitempty" msgpack:"is_error,omitempty"`
	SequenceNo uint64 `json:"sequence_no" msgpack:"sequence_no"`
	ThreadKey  string `json:"thread_key,omitempty" msgpack:"thread_key,omitempty"`
}

// SubAgentSpawnRecord payload for TypeSubAgentSpawn.
type SubAgentSpawnRecord struct {
	ChildContextID string `json:"child_context_id" msgpack:"child_context_id"`
	ChildSessionID string `json:"child_session_id" msgpack:"child_session_id"`
	ParentTurn     string `json:"parent_turn" msgpack:"parent_turn"`
	SubAgentID     string `json:"subagent_id" msgpack:"subagent_id"`
}

// RunLifecycleRecord payload for TypeRunLifecycle.
type RunLifecycleRecord struct {
	Kind    string `json:"kind" msgpack:"kind"` // "initialized" | "finalized"
	RunID   string `json:"run_id" msgpack:"run_id"`
	GraphID string `json:"graph_id" msgpack:"graph_id"`
	Status  string `json:"status,omitempty" msgpack:"status,omitempty"`
}

// StageLifecycleRecord payload for TypeStageLifecycle.
type StageLifecycleRecord struct {
	Kind           string `json:"kind" msgpack:"kind"` // "started" | "completed" | "failed"
	RunID          string `json:"run_id" msgpack:"run_id"`
	NodeID         string `json:"node_id" msgpack:"node_id"`
	StageAttemptID string `json:"stage_attempt_id" msgpack:"stage_attempt_id"`
	Status         string `json:"status,omitempty" msgpack:"status,omitempty"`
	Notes          string `json:"notes,omitempty" msgpack:"notes,omitempty"`
}

// ParallelLifecycleRecord payload for TypeParallelLifecycle.
type ParallelLifecycleRecord struct {
	RunID       string `json:"run_id" msgpack:"run_id"`
	NodeID      string `json:"node_id" msgpack:"node_id"`
	JoinPolicy  string `json:"join_policy" msgpack:"join_policy"`
	BranchCount int    `json:"branch_count" msgpack:"branch_count"`
	SuccessCount int   `json:"success_count" msgpack:"success_count"`
	FailCount   int    `json:"fail_count" msgpack:"fail_count"`
}

// InterviewLifecycleRecord payload for TypeInterviewLifecycle.
type InterviewLifecycleRecord struct {
	RunID    string `json:"run_id" msgpack:"run_id"`
	NodeID   string `json:"node_id" msgpack:"node_id"`
	Question string `json:"question" msgpack:"question"`
	Answer   string `json:"answer" msgpack:"answer"`
}

// RouteDecisionRecord payload for TypeRouteDecision.
type RouteDecisionRecord struct {
	RunID    string `json:"run_id" msgpack:"run_id"`
	FromNode string `json:"from_node" msgpack:"from_node"`
	ToNode   string `json:"to_node" msgpack:"to_node"`
	Reason   string `json:"reason" msgpack:"reason"` // "suggested_next_ids" | "condition" | "preferred_label" | "lexicographic"
}

// CheckpointSavedRecord payload for TypeCheckpointSaved.
type CheckpointSavedRecord struct {
	RunID         string         `json:"run_id" msgpack:"run_id"`
	CheckpointID  string         `json:"checkpoint_id" msgpack:"checkpoint_id"`
	StateSummary  map[string]any `json:"state_summary" msgpack:"state_summary"`
}

// DotSourceRecord / GraphSnapshotRecord payloads.
type DotSourceRecord struct {
	ContentHash string `json:"content_hash" msgpack:"content_hash"`
}

type GraphSnapshotRecord struct {
	ContentHash string `json:"content_hash" msgpack:"content_hash"`
}

// StageToAgentLinkRecord payload for TypeStageToAgentLink.
type StageToAgentLinkRecord struct {
	RunID          string `json:"run_id" msgpack:"run_id"`
	NodeID         string `json:"node_id" msgpack:"node_id"`
	StageAttemptID string `json:"stage_attempt_id" msgpack:"stage_attempt_id"`
	AgentSessionID string `json:"agent_session_id" msgpack:"agent_session_id"`
	AgentContextID string `json:"agent_context_id" msgpack:"agent_context_id"`
	AgentHeadTurnID string `json:"agent_head_turn_id" msgpack:"agent_head_turn_id"`
	ParentTurnID   string `json:"parent_turn_id" msgpack:"parent_turn_id"`
	SequenceNo     uint64 `json:"sequence_no" msgpack:"sequence_no"`
	ThreadKey      string `json:"thread_key,omitempty" msgpack:"thread_key,omitempty"`
}
