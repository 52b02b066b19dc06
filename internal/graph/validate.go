package graph

import (
	"regexp"
	"strings"

	"github.com/forgehq/forge/internal/models"
)

// conditionKeyPattern matches a well-formed condition clause's key.
var conditionKeyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

// Validate checks the structural acceptance rules for a graph.
// Rules marked MUST abort acceptance; goal-gate/prompt rules are
// warnings only. Returns the full diagnostics list regardless of
// outcome, and a non-nil error (wrapping a models.Error with
// Kind=Graph.Invalid) iff any diagnostic has Severity "error".
func Validate(g *Graph) ([]models.Diagnostic, error) {
	var diags []models.Diagnostic
	fail := func(rule, msg, nodeID, edge string) {
		diags = append(diags, models.Diagnostic{Rule: rule, Severity: "error", Message: msg, NodeID: nodeID, Edge: edge})
	}
	warn := func(rule, msg, nodeID, edge string) {
		diags = append(diags, models.Diagnostic{Rule: rule, Severity: "warning", Message: msg, NodeID: nodeID, Edge: edge})
	}

	starts := g.StartCandidates()
	if len(starts) != 1 {
		fail("single_start", "graph must have exactly one start node", "", "")
	}

	terminals := g.TerminalCandidates()
	if len(terminals) < 1 {
		fail("min_terminal", "graph must have at least one terminal node", "", "")
	}

	for _, e := range g.edges {
		if _, ok := g.nodes[e.To]; !ok {
			fail("edge_target_exists", "edge target does not exist: "+e.To, "", e.From+"->"+e.To)
		}
		if _, ok := g.nodes[e.From]; !ok {
			fail("edge_target_exists", "edge source does not exist: "+e.From, "", e.From+"->"+e.To)
		}
	}

	if len(starts) == 1 {
		s := starts[0]
		if len(g.IncomingEdges(s.ID)) > 0 {
			fail("start_no_incoming", "start node must have no incoming edges", s.ID, "")
		}
	}

	for _, t := range terminals {
		if len(g.OutgoingEdges(t.ID)) > 0 {
			fail("terminal_no_outgoing", "terminal node must have no outgoing edges", t.ID, "")
		}
	}

	if len(starts) == 1 {
		reachable := g.ReachableFrom(starts[0].ID)
		for _, n := range g.Nodes() {
			if !reachable[n.ID] {
				fail("all_reachable", "node is not reachable from start", n.ID, "")
			}
		}
	}

	for _, e := range g.edges {
		if cond, ok := e.Attrs.GetStr("condition"); ok && cond != "" {
			if err := validateConditionSyntax(cond); err != "" {
				fail("condition_well_formed", err, "", e.From+"->"+e.To)
			}
		}
	}

	for _, n := range g.Nodes() {
		if n.Attrs.Bool("goal_gate") {
			hasRetry := n.Attrs.Str("retry_target") != "" || n.Attrs.Str("fallback_retry_target") != "" ||
				g.attrs.Str("retry_target") != "" || g.attrs.Str("fallback_retry_target") != ""
			if !hasRetry {
				warn("goal_gate_retry_target", "goal-gate node declares no retry target", n.ID, "")
			}
		}
		if n.HandlerKind() == "codergen" {
			if n.Attrs.Str("prompt") == "" && n.Attrs.Str("label") == "" {
				warn("llm_stage_prompt", "LLM stage node declares no prompt or label", n.ID, "")
			}
		}
	}

	for _, d := range diags {
		if d.Severity == "error" {
			return diags, models.NewError("Graph.Invalid", "graph failed validation").WithDiagnostics(diags)
		}
	}
	return diags, nil
}

// validateConditionSyntax checks one "key[!=]=value" clause (or a
// conjunction of such clauses joined by the same operator grammar used
// at evaluation time) for well-formedness; returns a non-empty message
// describing the first violation, or "" if well-formed.
func validateConditionSyntax(cond string) string {
	clauses := strings.Split(cond, "&&")
	if len(clauses) == 0 {
		return "empty condition"
	}
	for _, raw := range clauses {
		clause := strings.TrimSpace(raw)
		if clause == "" {
			return "empty condition clause"
		}
		op := "="
		idx := strings.Index(clause, "!=")
		if idx >= 0 {
			op = "!="
		} else {
			idx = strings.Index(clause, "=")
			if idx < 0 {
				return "condition clause missing '=' or '!=': " + clause
			}
		}
		key := strings.TrimSpace(clause[:idx])
		value := strings.TrimSpace(clause[idx+len(op):])
		if key == "" || !conditionKeyPattern.MatchString(key) {
			return "condition clause has invalid key: " + clause
		}
		if value == "" {
			return "condition clause has empty value: " + clause
		}
	}
	return ""
}
