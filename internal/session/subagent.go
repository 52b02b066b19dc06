package session

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/forgehq/forge/internal/env"
	"github.com/forgehq/forge/internal/lineage"
	"github.com/forgehq/forge/internal/models"
	"github.com/forgehq/forge/internal/subagent"
	"github.com/forgehq/forge/internal/tooling"
)

// subAgentCallNames is the closed set of pseudo-tool names the Session
// Engine recognises before normal tool dispatch.
var subAgentCallNames = map[string]bool{
	"spawn_agent": true,
	"send_input":  true,
	"wait":        true,
	"close_agent": true,
}

// sessionFactory implements both subagent.Factory and
// subagent.LineageLinker over the parent Session that owns it, so a
// single small type wires component D into the Session Engine without
// a circular import (internal/subagent never imports internal/session).
type sessionFactory struct {
	parent *Session
}

// NewChild allocates a fresh child Session for spawn_agent, sharing the parent's LLM client, event emitter, tool registry
// and dispatcher, with a ScopedExecutionEnvironment restricting file
// operations to the resolved working_dir.
func (f *sessionFactory) NewChild(ctx context.Context, spec subagent.SpawnSpec) (subagent.Runner, error) {
	base := f.parent.deps.WorkDir
	if base == "" {
		if wd, err := os.Getwd(); err == nil {
			base = wd
		} else {
			base = "."
		}
	}
	workingDir := spec.WorkingDir
	if workingDir == "" {
		workingDir = base
	} else if !filepath.IsAbs(workingDir) {
		workingDir = filepath.Join(base, workingDir)
	}
	scoped, err := env.NewScopedExecutionEnvironment(f.parent.deps.Env, base, workingDir)
	if err != nil {
		return nil, err
	}

	childDeps := f.parent.deps
	childDeps.Env = scoped
	if spec.Model != "" {
		// "wraps the provider profile in an override that reports that
		// model verbatim on child requests": the child's
		// own default model takes effect the same way deps.Model does
		// for the parent, since SpawnSpec's request uses SubmitOptions{}.
		childDeps.Model = spec.Model
	}

	childCfg := f.parent.config
	childCfg.ThreadKey = ""
	if spec.MaxTurns > 0 {
		childCfg.MaxTurns = spec.MaxTurns
	}

	child := New(uuid.NewString(), childCfg, childDeps, spec.ParentDepth+1)
	if f.parent.deps.Lineage != nil {
		if err := child.OpenLineageContext(ctx, spec.ParentHeadID); err != nil {
			return nil, err
		}
	}
	return child, nil
}

// LinkSubAgentSpawn persists the forge.link.subagent_spawn lineage
// record onto the parent's own context.
func (f *sessionFactory) LinkSubAgentSpawn(ctx context.Context, parentContextID, parentHeadTurnID, childAgentID, childSessionID, childContextID string) {
	rec := lineage.SubAgentSpawnRecord{
		ChildContextID: childContextID,
		ChildSessionID: childSessionID,
		ParentTurn:     parentHeadTurnID,
		SubAgentID:     childAgentID,
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return
	}
	_ = f.parent.persistTurn(ctx, lineage.TypeSubAgentSpawn, lineage.VersionSubAgentSpawn, "subagent_spawn", payload)
}

// supervisor lazily builds this session's Sub-Agent Supervisor, bound
// to its own subagent_depth and the configured max_subagent_depth.
func (s *Session) ensureSupervisor() *subagent.Supervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.supervisor == nil {
		factory := &sessionFactory{parent: s}
		s.supervisor = subagent.NewSupervisor(factory, factory, s.subagentDepth, s.config.MaxSubAgentDepth)
	}
	return s.supervisor
}

// dispatchCalls splits calls between the four sub-agent pseudo-tools
// (handled directly against this session's Supervisor) and everything
// else (handled by the normal Dispatcher), preserving input order in
// the merged result.
func (s *Session) dispatchCalls(ctx context.Context, calls []models.ToolCall, opts tooling.DispatchOptions) []models.ToolResultEntry {
	results := make([]models.ToolResultEntry, len(calls))
	var normal []models.ToolCall
	var normalIdx []int

	for i, c := range calls {
		if subAgentCallNames[c.Name] {
			results[i] = s.dispatchSubAgentCall(ctx, c)
			continue
		}
		normal = append(normal, c)
		normalIdx = append(normalIdx, i)
	}

	if len(normal) > 0 {
		normalResults := s.deps.Dispatcher.Dispatch(ctx, normal, opts)
		for j, idx := range normalIdx {
			results[idx] = normalResults[j]
		}
	}
	return results
}

func (s *Session) dispatchSubAgentCall(ctx context.Context, call models.ToolCall) models.ToolResultEntry {
	argMap := map[string]any{}
	_ = json.Unmarshal(call.EffectiveArguments(), &argMap)
	s.emitter.ToolCallStart(call.ID, call.Name, argMap)

	content, isError := s.runSubAgentCall(ctx, call)

	s.emitter.ToolCallEnd(call.ID, call.Name, content, isError, 0)
	return models.ToolResultEntry{ToolCallID: call.ID, Content: content, IsError: isError}
}

func (s *Session) runSubAgentCall(ctx context.Context, call models.ToolCall) (string, bool) {
	sup := s.ensureSupervisor()
	args := call.EffectiveArguments()

	switch call.Name {
	case "spawn_agent":
		var params struct {
			Task       string `json:"task"`
			WorkingDir string `json:"working_dir"`
			Model      string `json:"model"`
			MaxTurns   int    `json:"max_turns"`
		}
		if err := json.Unmarshal(args, &params); err != nil {
			return "invalid spawn_agent arguments: " + err.Error(), true
		}
		snap := s.PersistenceSnapshot()
		contextID := ""
		if snap.ContextID != nil {
			contextID = *snap.ContextID
		}
		headTurnID := ""
		if snap.HeadTurnID != nil {
			headTurnID = *snap.HeadTurnID
		}
		handle, err := sup.SpawnAgent(ctx, subagent.SpawnSpec{
			Task:         params.Task,
			WorkingDir:   params.WorkingDir,
			Model:        params.Model,
			MaxTurns:     params.MaxTurns,
			ParentDepth:  s.subagentDepth,
			ParentHeadID: headTurnID,
			ParentContext: contextID,
		})
		if err != nil {
			return err.Error(), true
		}
		if s.deps.AuditLogger != nil {
			s.deps.AuditLogger.LogSubagentSpawn(ctx, handle.ID, params.Task, s.subagentDepth+1)
		}
		return marshalOrError(map[string]string{"agent_id": handle.ID, "status": string(handle.Status)})

	case "send_input":
		var params struct {
			AgentID string `json:"agent_id"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(args, &params); err != nil {
			return "invalid send_input arguments: " + err.Error(), true
		}
		if err := sup.SendInput(ctx, params.AgentID, params.Message); err != nil {
			return err.Error(), true
		}
		return marshalOrError(map[string]string{"agent_id": params.AgentID, "status": string(models.SubAgentRunning)})

	case "wait":
		var params struct {
			AgentID string `json:"agent_id"`
		}
		if err := json.Unmarshal(args, &params); err != nil {
			return "invalid wait arguments: " + err.Error(), true
		}
		result, err := sup.Wait(ctx, params.AgentID)
		if err != nil {
			return err.Error(), true
		}
		return marshalOrError(result)

	case "close_agent":
		var params struct {
			AgentID string `json:"agent_id"`
		}
		if err := json.Unmarshal(args, &params); err != nil {
			return "invalid close_agent arguments: " + err.Error(), true
		}
		if err := sup.CloseAgent(params.AgentID); err != nil {
			return err.Error(), true
		}
		return marshalOrError(map[string]string{"agent_id": params.AgentID, "status": string(models.SubAgentFailed)})

	default:
		return "unknown sub-agent operation: " + call.Name, true
	}
}

func marshalOrError(v any) (string, bool) {
	b, err := json.Marshal(v)
	if err != nil {
		return err.Error(), true
	}
	return string(b), false
}
