package nodes

import (
	"context"
	"encoding/json"

	"github.com/forgehq/forge/internal/graph"
	"github.com/forgehq/forge/internal/models"
	"github.com/forgehq/forge/internal/parallel"
)

// FanInHandler implements the parallel.fan_in node: the join counterpart of the Parallel handler. It
// does not re-run branches; it reads back the aggregate a preceding
// Parallel node already wrote to the runtime context
// (parallel.fail_count, parallel.join_policy) and resolves to the same
// Success/Fail verdict, so a DAG that fans out through a "component"
// node and reconverges through a "tripleoctagon" node carries the join
// result across the reconvergence point without recomputing it.
type FanInHandler struct{}

func (FanInHandler) Execute(_ context.Context, _ graph.Node, rc *models.RuntimeContext, _ *graph.Graph) (models.NodeOutcome, error) {
	policy := parallel.JoinPolicy("all_success")
	if s, ok := rc.GetString("parallel.join_policy"); ok && s != "" {
		policy = parallel.JoinPolicy(s)
	}

	failCount := int64(0)
	if raw, ok := rc.Get("parallel.fail_count"); ok {
		_ = json.Unmarshal(raw, &failCount)
	}
	successCount := int64(0)
	if raw, ok := rc.Get("parallel.success_count"); ok {
		_ = json.Unmarshal(raw, &successCount)
	}

	status := models.NodeSuccess
	notes := ""
	switch policy {
	case parallel.JoinIgnore:
		status = models.NodeSuccess
	case parallel.JoinAnySuccess:
		if successCount == 0 && failCount > 0 {
			status = models.NodeFail
			notes = "fan-in: no branch succeeded"
		}
	default: // all_success, quorum: a prior Parallel handler already resolved quorum math into fail_count.
		if failCount > 0 {
			status = models.NodeFail
			notes = "fan-in: upstream parallel branches reported a failure"
		}
	}

	return models.NodeOutcome{Status: status, Notes: notes}, nil
}
