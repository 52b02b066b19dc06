package tooling

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/forgehq/forge/internal/models"
)

// PreHookOutcome is the result of invoking a pre-dispatch hook.
type PreHookOutcome struct {
	// Action selects Continue, Skip, or Fail.
	Action  PreHookAction
	Message string
	IsError bool
}

// PreHookAction discriminates a PreHookOutcome.
type PreHookAction int

const (
	PreHookContinue PreHookAction = iota
	PreHookSkip
	PreHookFail
)

// PreHook inspects a tool call before execution and may short-circuit it.
type PreHook interface {
	Before(ctx context.Context, sessionID string, call models.ToolCall) (PreHookOutcome, error)
}

// PostHook observes a tool call's outcome after execution.
type PostHook interface {
	After(ctx context.Context, sessionID string, call models.ToolCall, durationMs int64, result Result) error
}

// PreHookFunc adapts a function to PreHook.
type PreHookFunc func(ctx context.Context, sessionID string, call models.ToolCall) (PreHookOutcome, error)

func (f PreHookFunc) Before(ctx context.Context, sessionID string, call models.ToolCall) (PreHookOutcome, error) {
	return f(ctx, sessionID, call)
}

// PostHookFunc adapts a function to PostHook.
type PostHookFunc func(ctx context.Context, sessionID string, call models.ToolCall, durationMs int64, result Result) error

func (f PostHookFunc) After(ctx context.Context, sessionID string, call models.ToolCall, durationMs int64, result Result) error {
	return f(ctx, sessionID, call, durationMs, result)
}

// ApprovalDecision is the gate's allow/deny/pending vocabulary.
type ApprovalDecision string

const (
	ApprovalAllowed ApprovalDecision = "allowed"
	ApprovalDenied  ApprovalDecision = "denied"
	ApprovalPending ApprovalDecision = "pending"
)

// ApprovalChecker decides whether a tool call may run without
// interactive confirmation.
type ApprovalChecker interface {
	Check(ctx context.Context, sessionID string, call models.ToolCall) (ApprovalDecision, string)
}

// PatternApprovalChecker implements allow/deny/require-approval
// pattern matching over tool names: deny wins, then require-approval,
// then allow.
type PatternApprovalChecker struct {
	Allowlist       []string
	Denylist        []string
	RequireApproval []string
	DefaultDecision ApprovalDecision
}

func (c *PatternApprovalChecker) Check(_ context.Context, _ string, call models.ToolCall) (ApprovalDecision, string) {
	if matchesAny(c.Denylist, call.Name) {
		return ApprovalDenied, "tool in denylist"
	}
	if matchesAny(c.Allowlist, call.Name) {
		return ApprovalAllowed, "tool in allowlist"
	}
	if matchesAny(c.RequireApproval, call.Name) {
		return ApprovalPending, "tool requires approval"
	}
	if c.DefaultDecision == "" {
		return ApprovalAllowed, "default allow"
	}
	return c.DefaultDecision, "default decision"
}

func matchesAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if matchPattern(p, name) {
			return true
		}
	}
	return false
}

func matchPattern(pattern, name string) bool {
	if pattern == "" || name == "" {
		return false
	}
	if pattern == name {
		return true
	}
	if len(pattern) > 2 && pattern[len(pattern)-2:] == ".*" {
		prefix := pattern[:len(pattern)-1]
		return len(name) >= len(prefix) && name[:len(prefix)] == prefix
	}
	return false
}

// AsyncJob tracks a tool call dispatched into the background.
type AsyncJob struct {
	ID         string
	ToolCallID string
	Status     AsyncJobStatus
	Result     *Result
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// AsyncJobStatus is the lifecycle state of an AsyncJob.
type AsyncJobStatus string

const (
	AsyncJobPending   AsyncJobStatus = "pending"
	AsyncJobRunning   AsyncJobStatus = "running"
	AsyncJobSucceeded AsyncJobStatus = "succeeded"
	AsyncJobFailed    AsyncJobStatus = "failed"
)

// AsyncJobStore persists AsyncJob records so a session can poll them via
// the check_job pseudo-tool.
type AsyncJobStore interface {
	Create(ctx context.Context, job *AsyncJob) error
	Get(ctx context.Context, id string) (*AsyncJob, error)
	Update(ctx context.Context, job *AsyncJob) error
}

// MemoryAsyncJobStore is an in-process AsyncJobStore, sufficient for the
// single-process Session Engine this package serves.
type MemoryAsyncJobStore struct {
	mu   sync.Mutex
	jobs map[string]*AsyncJob
}

func NewMemoryAsyncJobStore() *MemoryAsyncJobStore {
	return &MemoryAsyncJobStore{jobs: make(map[string]*AsyncJob)}
}

func (s *MemoryAsyncJobStore) Create(_ context.Context, job *AsyncJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

func (s *MemoryAsyncJobStore) Get(_ context.Context, id string) (*AsyncJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, models.NewError(models.Kind("Tool.JobNotFound"), "async job not found: "+id)
	}
	return job, nil
}

func (s *MemoryAsyncJobStore) Update(_ context.Context, job *AsyncJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

// marshalArgs is a convenience used by callers constructing synthetic
// ToolResults; kept here since both dispatcher.go and session code need it.
func marshalArgs(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}
