package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func simpleGraph() *Graph {
	nodes := map[string]Node{
		"start": {ID: "start", Attrs: Attrs{"shape": StringAttr(ShapeStart)}},
		"work":  {ID: "work", Attrs: Attrs{"shape": StringAttr(ShapeCodergen), "prompt": StringAttr("do work")}},
		"exit":  {ID: "exit", Attrs: Attrs{"shape": StringAttr(ShapeExit)}},
	}
	edges := []Edge{
		{From: "start", To: "work"},
		{From: "work", To: "exit"},
	}
	return New("g1", Attrs{}, nodes, edges)
}

func TestValidateAcceptsWellFormedGraph(t *testing.T) {
	g := simpleGraph()
	diags, err := Validate(g)
	require.NoError(t, err)
	assert.Empty(t, diags)
}

func TestValidateRejectsMissingStart(t *testing.T) {
	nodes := map[string]Node{
		"exit": {ID: "exit", Attrs: Attrs{"shape": StringAttr(ShapeExit)}},
	}
	g := New("g2", Attrs{}, nodes, nil)
	_, err := Validate(g)
	assert.Error(t, err)
}

func TestValidateRejectsUnreachableNode(t *testing.T) {
	nodes := map[string]Node{
		"start":    {ID: "start", Attrs: Attrs{"shape": StringAttr(ShapeStart)}},
		"exit":     {ID: "exit", Attrs: Attrs{"shape": StringAttr(ShapeExit)}},
		"orphaned": {ID: "orphaned", Attrs: Attrs{"shape": StringAttr(ShapeCodergen)}},
	}
	g := New("g3", Attrs{}, nodes, []Edge{{From: "start", To: "exit"}})
	_, err := Validate(g)
	assert.Error(t, err)
}

func TestValidateGoalGateWarning(t *testing.T) {
	nodes := map[string]Node{
		"start": {ID: "start", Attrs: Attrs{"shape": StringAttr(ShapeStart)}},
		"work":  {ID: "work", Attrs: Attrs{"shape": StringAttr(ShapeCodergen), "prompt": StringAttr("do work"), "goal_gate": BoolAttr(true)}},
		"exit":  {ID: "exit", Attrs: Attrs{"shape": StringAttr(ShapeExit)}},
	}
	edges := []Edge{{From: "start", To: "work"}, {From: "work", To: "exit"}}
	g := New("g4", Attrs{}, nodes, edges)
	diags, err := Validate(g)
	require.NoError(t, err)
	require.Len(t, diags, 1)
	assert.Equal(t, "warning", diags[0].Severity)
	assert.Equal(t, "goal_gate_retry_target", diags[0].Rule)
}

func TestEvaluateCondition(t *testing.T) {
	ctx := map[string]string{"outcome": "fail", "env": "prod"}
	lookup := func(k string) string { return ctx[k] }

	assert.True(t, EvaluateCondition("outcome=fail", lookup))
	assert.False(t, EvaluateCondition("outcome=success", lookup))
	assert.True(t, EvaluateCondition("outcome!=success", lookup))
	assert.True(t, EvaluateCondition("outcome=fail&&env=prod", lookup))
	assert.False(t, EvaluateCondition("outcome=fail&&env=dev", lookup))
	assert.False(t, EvaluateCondition("missing=x", lookup))
	assert.True(t, EvaluateCondition("", lookup))
}

func TestParseDuration(t *testing.T) {
	cases := map[string]int64{"500ms": 500, "2s": 2, "1m": 1, "1h": 1, "1d": 1}
	for lit := range cases {
		_, err := ParseDuration(lit)
		require.NoError(t, err)
	}
	_, err := ParseDuration("bogus")
	assert.Error(t, err)
}
