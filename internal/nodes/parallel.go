package nodes

import (
	"context"
	"encoding/json"

	"github.com/forgehq/forge/internal/graph"
	"github.com/forgehq/forge/internal/models"
	"github.com/forgehq/forge/internal/parallel"
)

// ParallelHandler implements the Parallel node: bounded fan-out over
// outgoing edges with a configurable join policy. Each branch's actual outcome is supplied out-of-band via
// the runtime context (parallel.branch_outcomes/branch_scores/
// branch_notes, keyed by branch_id) so the handler's own job is purely
// batching and aggregation; the branch's real work (an LLM stage, a
// tool call, a sub-pipeline) is expected to have already populated
// those keys by the time this node runs, the way a fan-out/fan-in DAG
// stage resolves upstream results before a join.
type ParallelHandler struct{}

func (ParallelHandler) Execute(ctx context.Context, node graph.Node, rc *models.RuntimeContext, g *graph.Graph) (models.NodeOutcome, error) {
	edges := g.OutgoingEdges(node.ID)

	policy := parallel.JoinPolicy(node.Attrs.Str("join_policy"))
	if policy == "" {
		policy = parallel.JoinAllSuccess
	}
	maxParallel, _ := node.Attrs.GetInteger("max_parallel")
	if maxParallel < 1 {
		maxParallel = int64(len(edges))
		if maxParallel < 1 {
			maxParallel = 1
		}
	}
	quorumCount, _ := node.Attrs.GetInteger("quorum_count")
	quorumRatio, _ := node.Attrs.GetFloat("quorum_ratio")

	outcomes := readStringMap(rc, "parallel.branch_outcomes")
	scores := readFloatMap(rc, "parallel.branch_scores")
	notes := readStringMap(rc, "parallel.branch_notes")

	branches := make([]parallel.Branch, 0, len(edges))
	for _, e := range edges {
		branchID := e.Attrs.Str("label")
		if branchID == "" {
			branchID = e.To
		}
		bid := branchID
		target := e.To
		branches = append(branches, parallel.Branch{
			ID: bid,
			Run: func(ctx context.Context) (parallel.BranchResult, error) {
				status := parallel.StatusSuccess
				if s, ok := outcomes[bid]; ok && s != string(models.NodeSuccess) && s != string(models.NodePartialSuccess) {
					status = parallel.StatusFail
				}
				return parallel.BranchResult{
					BranchID: bid,
					Status:   status,
					Score:    scores[bid],
					Notes:    notesOrTarget(notes[bid], target),
				}, nil
			},
		})
	}

	results, err := parallel.Execute(ctx, branches, int(maxParallel))
	if err != nil {
		return models.NodeOutcome{}, models.Wrap("Runner.StageFailed", err)
	}

	success, successCount, failCount := parallel.Aggregate(policy, results, int(quorumCount), quorumRatio)

	status := models.NodeFail
	if success {
		status = models.NodeSuccess
	}

	resultsJSON, _ := json.Marshal(results)
	return models.NodeOutcome{
		Status: status,
		ContextUpdates: map[string]json.RawMessage{
			"parallel.results":       resultsJSON,
			"parallel.branch_count":  mustJSON(len(results)),
			"parallel.success_count": mustJSON(successCount),
			"parallel.fail_count":    mustJSON(failCount),
			"parallel.join_policy":   mustJSON(string(policy)),
		},
	}, nil
}

func notesOrTarget(notes, target string) string {
	if notes != "" {
		return notes
	}
	return target
}

func readStringMap(rc *models.RuntimeContext, key string) map[string]string {
	raw, ok := rc.Get(key)
	out := map[string]string{}
	if !ok {
		return out
	}
	_ = json.Unmarshal(raw, &out)
	return out
}

func readFloatMap(rc *models.RuntimeContext, key string) map[string]float64 {
	raw, ok := rc.Get(key)
	out := map[string]float64{}
	if !ok {
		return out
	}
	_ = json.Unmarshal(raw, &out)
	return out
}
