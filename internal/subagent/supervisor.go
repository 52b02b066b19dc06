// Package subagent implements the sub-agent supervisor: the four
// pseudo-tool operations (spawn_agent, send_input, wait,
// close_agent) the Session Engine recognises before normal tool
// dispatch, built as a run-tracking registry over background tasks.
package subagent

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/forgehq/forge/internal/models"
)

// Runner is the subset of Session Engine behavior a spawned child must
// expose; it lets this package avoid importing internal/session
// directly (internal/session depends on internal/subagent, not the
// reverse).
type Runner interface {
	Submit(ctx context.Context, input string, opts models.SubmitOptions) (models.SubmitResult, error)
	LastAssistantText() (text string, hadToolCalls bool)
	TurnsUsed() int
	RequestAbort()

	// PersistenceSnapshot exposes the child's own session/context id so
	// SpawnAgent can pass them to LinkSubAgentSpawn without the
	// correlation races a separately-tracked id map would introduce
	// under concurrent spawn_agent calls.
	PersistenceSnapshot() models.PersistenceSnapshot
}

// Factory constructs a child Runner for a spawn_agent call. The
// concrete implementation lives in internal/session, which wires a new
// Session sharing the parent's LLM client and event emitter.
type Factory interface {
	NewChild(ctx context.Context, spec SpawnSpec) (Runner, error)
}

// SpawnSpec is the resolved input to spawn_agent.
type SpawnSpec struct {
	Task          string
	WorkingDir    string
	Model         string
	MaxTurns      int
	ParentDepth   int
	ParentHeadID  string
	ParentContext string
}

// LineageLinker records a subagent_spawn lineage link; implemented by internal/lineage
// callers in the Session Engine.
type LineageLinker interface {
	LinkSubAgentSpawn(ctx context.Context, parentContextID, parentHeadTurnID, childAgentID, childSessionID, childContextID string)
}

// run tracks one spawned child and its current background task.
type run struct {
	mu      sync.Mutex
	handle  models.SubAgentHandle
	runner  Runner
	done    chan struct{}
	result  models.SubmitResult
	err     error
}

// Supervisor tracks spawned children and dispatches the four pseudo-tool
// operations against them.
type Supervisor struct {
	factory Factory
	linker  LineageLinker

	mu       sync.Mutex
	runs     map[string]*run
	maxDepth int
	depth    int
}

// NewSupervisor builds a Supervisor bound to a child factory. depth is
// this session's own subagent_depth; maxDepth is the configured
// max_subagent_depth.
func NewSupervisor(factory Factory, linker LineageLinker, depth, maxDepth int) *Supervisor {
	return &Supervisor{
		factory:  factory,
		linker:   linker,
		runs:     make(map[string]*run),
		depth:    depth,
		maxDepth: maxDepth,
	}
}

// SpawnAgent allocates a child session and submits its first input in
// the background, returning immediately.
func (s *Supervisor) SpawnAgent(ctx context.Context, spec SpawnSpec) (models.SubAgentHandle, error) {
	if s.depth >= s.maxDepth {
		return models.SubAgentHandle{}, models.NewError(KindDepthExceeded,
			fmt.Sprintf("subagent_depth %d >= max_subagent_depth %d", s.depth, s.maxDepth))
	}

	spec.ParentDepth = s.depth
	child, err := s.factory.NewChild(ctx, spec)
	if err != nil {
		return models.SubAgentHandle{}, models.Wrap(KindSpawnFailed, err)
	}

	id := uuid.NewString()
	r := &run{
		handle: models.SubAgentHandle{ID: id, Status: models.SubAgentRunning},
		runner: child,
		done:   make(chan struct{}),
	}
	s.mu.Lock()
	s.runs[id] = r
	s.mu.Unlock()

	if s.linker != nil {
		childContextID := ""
		snap := child.PersistenceSnapshot()
		if snap.ContextID != nil {
			childContextID = *snap.ContextID
		}
		s.linker.LinkSubAgentSpawn(ctx, spec.ParentContext, spec.ParentHeadID, id, snap.SessionID, childContextID)
	}

	s.launch(r, spec.Task)
	return r.handle, nil
}

func (s *Supervisor) launch(r *run, input string) {
	r.mu.Lock()
	r.done = make(chan struct{})
	r.mu.Unlock()

	go func() {
		defer close(r.done)
		result, err := r.runner.Submit(context.Background(), input, models.SubmitOptions{})
		r.mu.Lock()
		r.result = result
		r.err = err
		if err != nil {
			r.handle.Status = models.SubAgentFailed
		} else {
			r.handle.Status = models.SubAgentCompleted
		}
		r.mu.Unlock()
	}()
}

// SendInput launches a new background submission with message as the
// child's input; the child must not currently be Running.
func (s *Supervisor) SendInput(ctx context.Context, agentID, message string) error {
	r, err := s.get(agentID)
	if err != nil {
		return err
	}
	r.mu.Lock()
	status := r.handle.Status
	r.mu.Unlock()
	if status == models.SubAgentRunning {
		return models.NewError(KindAlreadyRunning, "subagent is currently running: "+agentID)
	}
	r.mu.Lock()
	r.handle.Status = models.SubAgentRunning
	r.mu.Unlock()
	s.launch(r, message)
	return nil
}

// WaitResult is what the wait pseudo-tool returns to the model.
type WaitResult struct {
	AgentID   string `json:"agent_id"`
	Status    string `json:"status"`
	Output    string `json:"output"`
	Success   bool   `json:"success"`
	TurnsUsed int    `json:"turns_used"`
}

// Wait blocks until the child's active task completes.
func (s *Supervisor) Wait(ctx context.Context, agentID string) (WaitResult, error) {
	r, err := s.get(agentID)
	if err != nil {
		return WaitResult{}, err
	}
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		return WaitResult{}, ctx.Err()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return WaitResult{
			AgentID: agentID,
			Status:  string(models.SubAgentFailed),
			Output:  r.err.Error(),
			Success: false,
		}, nil
	}

	text, hadToolCalls := r.runner.LastAssistantText()
	return WaitResult{
		AgentID:   agentID,
		Status:    string(models.SubAgentCompleted),
		Output:    text,
		Success:   !hadToolCalls,
		TurnsUsed: r.runner.TurnsUsed(),
	}, nil
}

// CloseAgent aborts any active task and marks the child Failed
// (closed).
func (s *Supervisor) CloseAgent(agentID string) error {
	r, err := s.get(agentID)
	if err != nil {
		return err
	}
	r.runner.RequestAbort()
	r.mu.Lock()
	r.handle.Status = models.SubAgentFailed
	r.mu.Unlock()
	return nil
}

// Handle returns the current handle for agentID.
func (s *Supervisor) Handle(agentID string) (models.SubAgentHandle, bool) {
	s.mu.Lock()
	r, ok := s.runs[agentID]
	s.mu.Unlock()
	if !ok {
		return models.SubAgentHandle{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handle, true
}

func (s *Supervisor) get(agentID string) (*run, error) {
	s.mu.Lock()
	r, ok := s.runs[agentID]
	s.mu.Unlock()
	if !ok {
		return nil, models.NewError(KindUnknownAgent, "unknown subagent: "+agentID)
	}
	return r, nil
}
