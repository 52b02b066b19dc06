// Package parallel implements bounded branch fan-out with join
// policies, invoked by the Parallel node
// handler (internal/nodes). Grounded on internal/tooling.Dispatcher's
// errgroup-based parallel tool dispatch, generalized from "N tool
// calls" to "N graph branches", joining batch-serially so assembled
// results stay reproducible, with a panic-to-error boundary per branch.
package parallel

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Status is a branch's terminal outcome, mirrored from
// models.NodeStatus without importing internal/models to keep this
// package a leaf dependency of internal/nodes.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFail    Status = "fail"
)

// BranchResult is one branch's outcome.
type BranchResult struct {
	BranchID string
	Status   Status
	Score    float64
	Notes    string
}

// Branch is one unit of fan-out work.
type Branch struct {
	ID  string
	Run func(ctx context.Context) (BranchResult, error)
}

// Execute runs branches in batches of size maxParallel (at least 1),
// joining each batch before starting the next so result assembly order
// is reproducible across runs. A branch whose Run
// panics is recovered and reported as the generic backend error
// "branch thread panicked", rather than crashing the
// runner.
func Execute(ctx context.Context, branches []Branch, maxParallel int) ([]BranchResult, error) {
	if maxParallel < 1 {
		maxParallel = 1
	}
	results := make([]BranchResult, len(branches))

	for start := 0; start < len(branches); start += maxParallel {
		end := start + maxParallel
		if end > len(branches) {
			end = len(branches)
		}
		batch := branches[start:end]

		g, gctx := errgroup.WithContext(ctx)
		for i, br := range batch {
			idx := start + i
			branch := br
			g.Go(func() (err error) {
				defer func() {
					if r := recover(); r != nil {
						err = fmt.Errorf("branch thread panicked: %v", r)
					}
				}()
				res, runErr := branch.Run(gctx)
				if runErr != nil {
					results[idx] = BranchResult{BranchID: branch.ID, Status: StatusFail, Notes: runErr.Error()}
					return nil
				}
				if res.BranchID == "" {
					res.BranchID = branch.ID
				}
				results[idx] = res
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return results, err
		}
	}
	return results, nil
}

// JoinPolicy is an aggregation rule over a batch of BranchResults.
type JoinPolicy string

const (
	JoinAllSuccess JoinPolicy = "all_success"
	JoinAnySuccess JoinPolicy = "any_success"
	JoinQuorum     JoinPolicy = "quorum"
	JoinIgnore     JoinPolicy = "ignore"
)

// Aggregate applies policy to results and returns whether the
// aggregate is Success, plus the success/fail counts. quorumCount, if > 0, is capped to
// len(results); otherwise the quorum target is
// ceil(len(results) * quorumRatio) with a minimum of 1.
func Aggregate(policy JoinPolicy, results []BranchResult, quorumCount int, quorumRatio float64) (success bool, successCount, failCount int) {
	for _, r := range results {
		if r.Status == StatusSuccess {
			successCount++
		} else {
			failCount++
		}
	}
	switch policy {
	case JoinAllSuccess:
		return failCount == 0, successCount, failCount
	case JoinAnySuccess:
		return successCount >= 1, successCount, failCount
	case JoinQuorum:
		target := quorumTarget(len(results), quorumCount, quorumRatio)
		return successCount >= target, successCount, failCount
	case JoinIgnore:
		return true, successCount, failCount
	default:
		return failCount == 0, successCount, failCount
	}
}

func quorumTarget(branchCount, quorumCount int, quorumRatio float64) int {
	if quorumCount > 0 {
		if quorumCount > branchCount {
			return branchCount
		}
		return quorumCount
	}
	if quorumRatio <= 0 {
		return 1
	}
	target := int(quorumRatio * float64(branchCount))
	if float64(target) < quorumRatio*float64(branchCount) {
		target++
	}
	if target < 1 {
		target = 1
	}
	return target
}
