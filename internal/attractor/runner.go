// Package attractor implements the Pipeline Runner:
// a graph-directed orchestrator that walks a validated graph.Graph one
// node at a time, invoking typed node handlers, routing between them,
// retrying and recovering goal gates, and persisting the same
// append-only lineage trail as the Session Engine. Adapted from the
// graph-directed run loop generalized from a fixed phase sequence to
// traversal over an arbitrary graph.Graph.
package attractor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/forgehq/forge/internal/artifacts"
	"github.com/forgehq/forge/internal/forgebackoff"
	"github.com/forgehq/forge/internal/graph"
	"github.com/forgehq/forge/internal/lineage"
	"github.com/forgehq/forge/internal/models"
	"github.com/forgehq/forge/internal/nodes"
	"github.com/forgehq/forge/internal/obs"
)

// Deps bundles the Pipeline Runner's collaborators.
type Deps struct {
	Nodes     nodes.Registry
	Lineage   lineage.Store
	Artifacts *artifacts.Store
	Backoff   forgebackoff.Policy
	Logger    *slog.Logger

	// Tracer wraps each node handler invocation in a span. Nil disables
	// tracing.
	Tracer *obs.Tracer

	// Metrics records stage-attempt outcomes against the shared
	// Prometheus collectors. Nil disables metrics recording.
	Metrics *obs.Metrics
}

// Runner is one Pipeline Runner instance. A single
// Runner publishes its registry bundle at most once, regardless of how
// many runs it drives.
type Runner struct {
	deps        Deps
	bundleOnce  sync.Once
	bundleErr   error
}

// New builds a Runner, filling in defaults the way session.New does
// for its own Deps.
func New(deps Deps) *Runner {
	if deps.Nodes == nil {
		deps.Nodes = nodes.Registry{}
	}
	if deps.Artifacts == nil {
		deps.Artifacts = artifacts.New()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Backoff == (forgebackoff.Policy{}) {
		deps.Backoff = forgebackoff.DefaultPolicy()
	}
	return &Runner{deps: deps}
}

// RunOptions configures one Run call.
type RunOptions struct {
	// RunID, if set, is used verbatim; otherwise "<graph.id>-run".
	RunID string
	// DotSource is the raw DOT text the graph was parsed from, if any.
	DotSource []byte
}

// run holds the mutable state of one Run call.
type run struct {
	runner *Runner
	g      *graph.Graph
	runID  string

	contextID  string
	headTurnID string
	persisting bool

	rc             *models.RuntimeContext
	completedNodes []string
	nodeOutcomes   map[string]models.NodeOutcome
	checkpointSeq  int
}

// Run executes g from its start node through to a terminal.
func (r *Runner) Run(ctx context.Context, g *graph.Graph, opts RunOptions) (models.PipelineRunResult, error) {
	// Step 1: validate.
	diags, err := graph.Validate(g)
	if err != nil {
		return models.PipelineRunResult{}, models.NewError(models.Kind("Runner.ValidationFailed"), "graph failed validation").WithDiagnostics(diags)
	}

	// Step 2: assign run_id.
	runID := opts.RunID
	if runID == "" {
		runID = g.ID() + "-run"
	}

	p := &run{
		runner:       r,
		g:            g,
		runID:        runID,
		rc:           models.NewRuntimeContext(),
		nodeOutcomes: make(map[string]models.NodeOutcome),
	}

	// Step 3: mirror graph.attrs as graph.<key>.
	for _, key := range g.Attrs().Keys() {
		if raw, ok := g.Attrs().JSONValue(key); ok {
			p.rc.Set("graph."+key, raw)
		}
	}

	// Step 4: open lineage, publish registry bundle once, append
	// run_lifecycle{initialized}, dot_source, graph_snapshot.
	if r.deps.Lineage != nil {
		lctx, err := r.deps.Lineage.CreateContext(ctx, lineage.RootSentinel)
		if err != nil {
			return models.PipelineRunResult{}, models.Wrap(models.Kind("Storage.AppendFailed"), err)
		}
		p.contextID = lctx.ContextID
		p.headTurnID = lctx.HeadTurnID
		p.persisting = true

		r.publishRegistryBundle(ctx)

		if err := p.persist(ctx, lineage.TypeRunLifecycle, lineage.VersionRunLifecycle, must(lineage.RunLifecycleRecord{
			Kind: "initialized", RunID: runID, GraphID: g.ID(),
		})); err != nil {
			return models.PipelineRunResult{}, err
		}
		if len(opts.DotSource) > 0 {
			if err := p.persistBlob(ctx, runID+"-dot-source", "dot_source", opts.DotSource, lineage.TypeDotSource, lineage.VersionDotSource); err != nil {
				return models.PipelineRunResult{}, err
			}
		}
		snapshot := snapshotGraph(g)
		snapshotBytes, _ := json.Marshal(snapshot)
		if err := p.persistBlob(ctx, runID+"-graph-snapshot", "graph_snapshot", snapshotBytes, lineage.TypeGraphSnapshot, lineage.VersionGraphSnapshot); err != nil {
			return models.PipelineRunResult{}, err
		}
	}

	// Step 5: traversal.
	status, failureReason := p.traverse(ctx)

	// Step 6: finalize.
	if p.persisting {
		if err := p.persist(ctx, lineage.TypeRunLifecycle, lineage.VersionRunLifecycle, must(lineage.RunLifecycleRecord{
			Kind: "finalized", RunID: runID, GraphID: g.ID(), Status: string(status),
		})); err != nil {
			return models.PipelineRunResult{}, err
		}
	}

	return models.PipelineRunResult{
		RunID:          runID,
		Status:         status,
		FailureReason:  failureReason,
		CompletedNodes: p.completedNodes,
		NodeOutcomes:   p.nodeOutcomes,
		Context:        p.rc.Snapshot(),
	}, nil
}

// publishRegistryBundle publishes a minimal bundle covering the
// Pipeline Runner's own typed records, once per Runner instance.
func (r *Runner) publishRegistryBundle(ctx context.Context) {
	r.bundleOnce.Do(func() {
		bundle := lineage.RegistryBundle{
			RegistryVersion: 1,
			BundleID:        "forge-attractor",
			Types: map[string]lineage.RegistryTypeDef{
				lineage.TypeRunLifecycle:      {Versions: map[string]lineage.RegistryVersionDef{"1": {}}},
				lineage.TypeStageLifecycle:    {Versions: map[string]lineage.RegistryVersionDef{"1": {}}},
				lineage.TypeParallelLifecycle: {Versions: map[string]lineage.RegistryVersionDef{"1": {}}},
				lineage.TypeInterviewLifecycle: {Versions: map[string]lineage.RegistryVersionDef{"1": {}}},
				lineage.TypeCheckpointSaved:   {Versions: map[string]lineage.RegistryVersionDef{"1": {}}},
				lineage.TypeRouteDecision:     {Versions: map[string]lineage.RegistryVersionDef{"1": {}}},
				lineage.TypeDotSource:         {Versions: map[string]lineage.RegistryVersionDef{"1": {}}},
				lineage.TypeGraphSnapshot:     {Versions: map[string]lineage.RegistryVersionDef{"1": {}}},
			},
		}
		r.bundleErr = r.deps.Lineage.PublishRegistryBundle(ctx, bundle)
		if r.bundleErr != nil {
			r.deps.Logger.Warn("registry bundle publish failed", "error", r.bundleErr)
		}
	})
}

// traverse walks the graph from the start node until a terminal is
// reached or routing dead-ends.
func (p *run) traverse(ctx context.Context) (models.NodeStatus, string) {
	starts := p.g.StartCandidates()
	if len(starts) != 1 {
		return models.NodeFail, "no_single_start_node"
	}
	current := starts[0].ID

	for {
		select {
		case <-ctx.Done():
			return models.NodeFail, "context_canceled"
		default:
		}

		node, ok := p.g.Node(current)
		if !ok {
			return models.NodeFail, "unknown_node:" + current
		}

		if node.IsTerminal() {
			if gateID, target, ok := p.unsatisfiedGoalGate(); ok {
				if target == "" {
					return models.NodeFail, "goal_gate_unsatisfied:" + gateID
				}
				current = target
				continue
			}
			return models.NodeSuccess, ""
		}

		handler, ok := p.runner.deps.Nodes.Get(node.HandlerKind())
		if !ok {
			return models.NodeFail, "no_handler_for_kind:" + node.HandlerKind()
		}

		outcome, err := p.invokeWithRetry(ctx, node, handler)
		if err != nil {
			return models.NodeFail, err.Error()
		}

		p.nodeOutcomes[node.ID] = outcome
		p.completedNodes = append(p.completedNodes, node.ID)
		p.rc.Merge(outcome.ContextUpdates)
		p.rc.SetString("outcome", string(outcome.Status))
		if outcome.PreferredLabel != "" {
			p.rc.SetString("preferred_label", outcome.PreferredLabel)
		}

		if err := p.persistCheckpoint(ctx, node.ID); err != nil {
			return models.NodeFail, err.Error()
		}

		next, reason, ok := p.route(node, outcome)
		if !ok {
			if !outcome.Status.IsSuccessLike() {
				return models.NodeFail, "terminal_failure"
			}
			return outcome.Status, ""
		}
		if p.persisting {
			if err := p.persist(ctx, lineage.TypeRouteDecision, lineage.VersionRouteDecision, must(lineage.RouteDecisionRecord{
				RunID: p.runID, FromNode: node.ID, ToNode: next, Reason: reason,
			})); err != nil {
				return models.NodeFail, err.Error()
			}
		}
		current = next
	}
}

// invokeWithRetry invokes handler, re-invoking it after a backoff delay
// while it returns a Retry outcome, up to node.attrs.max_retries
// attempts.
func (p *run) invokeWithRetry(ctx context.Context, node graph.Node, handler nodes.Handler) (models.NodeOutcome, error) {
	maxRetries, _ := node.Attrs.GetInteger("max_retries")

	var outcome models.NodeOutcome
	attempt := 1
	for {
		stageAttemptID := fmt.Sprintf("%s:attempt:%d", node.ID, attempt)
		if p.persisting {
			if err := p.persist(ctx, lineage.TypeStageLifecycle, lineage.VersionStageLifecycle, must(lineage.StageLifecycleRecord{
				Kind: "started", RunID: p.runID, NodeID: node.ID, StageAttemptID: stageAttemptID,
			})); err != nil {
				return outcome, err
			}
		}

		execCtx := ctx
		var span trace.Span
		if p.runner.deps.Tracer != nil {
			execCtx, span = p.runner.deps.Tracer.TraceStageExecution(ctx, node.ID, node.HandlerKind())
		}
		out, err := handler.Execute(execCtx, node, p.rc, p.g)
		if span != nil {
			if err != nil {
				p.runner.deps.Tracer.RecordError(span, err)
			}
			span.End()
		}
		if err != nil {
			if p.persisting {
				_ = p.persist(ctx, lineage.TypeStageLifecycle, lineage.VersionStageLifecycle, must(lineage.StageLifecycleRecord{
					Kind: "failed", RunID: p.runID, NodeID: node.ID, StageAttemptID: stageAttemptID, Notes: err.Error(),
				}))
			}
			if p.runner.deps.Metrics != nil {
				p.runner.deps.Metrics.RecordRunAttempt("failed")
			}
			obs.EmitRunAttempt(&obs.RunAttemptEvent{RunID: p.runID, NodeID: node.ID, Attempt: attempt})
			return outcome, err
		}
		outcome = out

		kind := "completed"
		if outcome.Status == models.NodeFail {
			kind = "failed"
		}
		if p.persisting {
			if err := p.persist(ctx, lineage.TypeStageLifecycle, lineage.VersionStageLifecycle, must(lineage.StageLifecycleRecord{
				Kind: kind, RunID: p.runID, NodeID: node.ID, StageAttemptID: stageAttemptID,
				Status: string(outcome.Status), Notes: outcome.Notes,
			})); err != nil {
				return outcome, err
			}
		}

		if outcome.Status != models.NodeRetry {
			if p.runner.deps.Metrics != nil {
				status := "success"
				if outcome.Status == models.NodeFail {
					status = "failed"
				}
				p.runner.deps.Metrics.RecordRunAttempt(status)
			}
			obs.EmitRunAttempt(&obs.RunAttemptEvent{RunID: p.runID, NodeID: node.ID, Attempt: attempt})
			return outcome, nil
		}
		if int64(attempt) > maxRetries {
			if p.runner.deps.Metrics != nil {
				p.runner.deps.Metrics.RecordRunAttempt("failed")
			}
			obs.EmitRunAttempt(&obs.RunAttemptEvent{RunID: p.runID, NodeID: node.ID, Attempt: attempt})
			return outcome, nil
		}
		if p.runner.deps.Metrics != nil {
			p.runner.deps.Metrics.RecordRunAttempt("retry")
		}
		obs.EmitRunAttempt(&obs.RunAttemptEvent{RunID: p.runID, NodeID: node.ID, Attempt: attempt})

		delay := forgebackoff.NextDelay(p.runner.deps.Backoff, attempt)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return outcome, ctx.Err()
		}
		attempt++
	}
}

// unsatisfiedGoalGate scans completed
// goal-gate nodes in completion order and returns the first whose
// outcome is not success-like, plus its resolved retry target ("" when
// none of the candidate targets names an existing node).
func (p *run) unsatisfiedGoalGate() (string, string, bool) {
	seen := map[string]bool{}
	for _, id := range p.completedNodes {
		if seen[id] {
			continue
		}
		seen[id] = true
		node, ok := p.g.Node(id)
		if !ok || !node.Attrs.Bool("goal_gate") {
			continue
		}
		if p.nodeOutcomes[id].Status.IsSuccessLike() {
			continue
		}
		target, _ := p.resolveRetryTarget(node)
		return id, target, true
	}
	return "", "", false
}

func (p *run) resolveRetryTarget(node graph.Node) (string, bool) {
	candidates := []string{
		node.Attrs.Str("retry_target"),
		node.Attrs.Str("fallback_retry_target"),
		p.g.Attrs().Str("retry_target"),
		p.g.Attrs().Str("fallback_retry_target"),
	}
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if _, ok := p.g.Node(c); ok {
			return c, true
		}
	}
	return "", false
}

// route picks the next node: an explicit suggested id wins, then the
// condition-filtered outgoing edges, preferring a label match and
// breaking ties by target id.
func (p *run) route(node graph.Node, outcome models.NodeOutcome) (string, string, bool) {
	if len(outcome.SuggestedNextIDs) > 0 {
		return outcome.SuggestedNextIDs[0], "suggested_next_ids", true
	}

	lookup := func(key string) string {
		s, _ := p.rc.GetString(key)
		return s
	}
	var survivors []graph.Edge
	for _, e := range p.g.OutgoingEdges(node.ID) {
		if graph.EvaluateCondition(e.Attrs.Str("condition"), lookup) {
			survivors = append(survivors, e)
		}
	}
	if len(survivors) == 0 {
		return "", "", false
	}
	if len(survivors) == 1 {
		return survivors[0].To, "condition", true
	}
	if outcome.PreferredLabel != "" {
		for _, e := range survivors {
			if strings.EqualFold(e.Attrs.Str("label"), outcome.PreferredLabel) {
				return e.To, "preferred_label", true
			}
		}
	}
	sort.Slice(survivors, func(i, j int) bool { return survivors[i].To < survivors[j].To })
	return survivors[0].To, "lexicographic", true
}

func (p *run) persistCheckpoint(ctx context.Context, nodeID string) error {
	if !p.persisting {
		return nil
	}
	p.checkpointSeq++
	id := fmt.Sprintf("cp-%d", p.checkpointSeq)
	summary := map[string]any{
		"current_node_id":      nodeID,
		"completed_nodes_count": len(p.completedNodes),
		"context_keys_count":   len(p.rc.Keys()),
	}
	return p.persist(ctx, lineage.TypeCheckpointSaved, lineage.VersionCheckpointSaved, must(lineage.CheckpointSavedRecord{
		RunID: p.runID, CheckpointID: id, StateSummary: summary,
	}))
}

func (p *run) persist(ctx context.Context, typeID string, version int, payload []byte) error {
	if !p.persisting {
		return nil
	}
	turn, err := p.runner.deps.Lineage.AppendTurn(ctx, lineage.AppendRequest{
		ContextID:    p.contextID,
		ParentTurnID: p.headTurnID,
		TypeID:       typeID,
		TypeVersion:  version,
		Payload:      payload,
	})
	if err != nil {
		return models.Wrap(models.Kind("Storage.AppendFailed"), err)
	}
	p.headTurnID = turn.TurnID
	return nil
}

// persistBlob stores data in the artifact store and appends a record
// carrying its content hash.
func (p *run) persistBlob(ctx context.Context, artifactID, name string, data []byte, typeID string, version int) error {
	if _, err := p.runner.deps.Artifacts.StoreJSON(artifactID, name, string(data)); err != nil {
		return models.Wrap(models.Kind("Storage.AppendFailed"), err)
	}
	hash := lineage.ContentHash(data)
	var payload []byte
	switch typeID {
	case lineage.TypeDotSource:
		payload = must(lineage.DotSourceRecord{ContentHash: hash})
	default:
		payload = must(lineage.GraphSnapshotRecord{ContentHash: hash})
	}
	return p.persist(ctx, typeID, version, payload)
}

type graphSnapshot struct {
	ID    string              `json:"id"`
	Attrs []string            `json:"attrs"`
	Nodes []string            `json:"nodes"`
	Edges map[string][]string `json:"edges"`
}

func snapshotGraph(g *graph.Graph) graphSnapshot {
	snap := graphSnapshot{ID: g.ID(), Attrs: g.Attrs().Keys(), Edges: make(map[string][]string)}
	for _, n := range g.Nodes() {
		snap.Nodes = append(snap.Nodes, n.ID)
		var targets []string
		for _, e := range g.OutgoingEdges(n.ID) {
			targets = append(targets, e.To)
		}
		if len(targets) > 0 {
			snap.Edges[n.ID] = targets
		}
	}
	sort.Strings(snap.Attrs)
	return snap
}

func must(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte("null")
	}
	return b
}
