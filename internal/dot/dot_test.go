package dot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTypesAttributes(t *testing.T) {
	src := `digraph pipeline {
		goal="ship it";
		start [type="start"];
		work [type="fake", max_retries=3, timeout="5s", goal_gate=true];
		exit [type="exit"];
		start -> work;
		work -> exit;
	}`

	g, diags, err := Parse([]byte(src))
	require.NoError(t, err)
	assert.Empty(t, diags)
	require.NotNil(t, g)

	work, ok := g.Node("work")
	require.True(t, ok)
	retries, ok := work.Attrs.GetInteger("max_retries")
	require.True(t, ok)
	assert.Equal(t, int64(3), retries)

	timeout, ok := work.Attrs.GetDuration("timeout")
	require.True(t, ok)
	assert.Equal(t, 5*time.Second, timeout)

	gate, ok := work.Attrs.GetBool("goal_gate")
	require.True(t, ok)
	assert.True(t, gate)
}

func TestParseRejectsInvalidGraph(t *testing.T) {
	src := `digraph broken {
		a [type="fake"];
		b [type="fake"];
	}` // no start node, no edges

	_, diags, err := Parse([]byte(src))
	require.Error(t, err)
	assert.NotEmpty(t, diags)
}
