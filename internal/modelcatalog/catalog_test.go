package modelcatalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogGetByIDAndAlias(t *testing.T) {
	c := NewCatalog()
	c.Register(&Model{
		ID:            "vendor-large-1",
		Provider:      "vendor",
		ContextWindow: 100000,
		Capabilities:  []Capability{CapTools, CapStreaming},
		Aliases:       []string{"Large"},
	})

	byID, ok := c.Get("vendor-large-1")
	require.True(t, ok)
	assert.Equal(t, 100000, byID.ContextWindow)

	byAlias, ok := c.Get("large")
	require.True(t, ok, "alias lookup should be case-insensitive")
	assert.Equal(t, "vendor-large-1", byAlias.ID)

	_, ok = c.Get("nope")
	assert.False(t, ok)
}

func TestCatalogListOrdersAndSkipsDeprecated(t *testing.T) {
	c := NewCatalog()
	c.Register(&Model{ID: "b-model", Provider: "beta"})
	c.Register(&Model{ID: "a-model", Provider: "alpha"})
	c.Register(&Model{ID: "a-old", Provider: "alpha", Deprecated: true, ReplacedBy: "a-model"})

	var ids []string
	for _, m := range c.List() {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"a-model", "b-model"}, ids)

	alpha := c.ListByProvider("alpha")
	require.Len(t, alpha, 1)
	assert.Equal(t, "a-model", alpha[0].ID)
}

func TestModelHasCapability(t *testing.T) {
	m := &Model{Capabilities: []Capability{CapTools, CapReasoning}}
	assert.True(t, m.HasCapability(CapReasoning))
	assert.False(t, m.HasCapability(CapVision))
}

func TestDefaultCatalogResolvesBundledModels(t *testing.T) {
	opus, ok := DefaultCatalog.Get("opus")
	require.True(t, ok)
	assert.Equal(t, "claude-opus-4", opus.ID)
	assert.Equal(t, 200000, opus.ContextWindow)
	assert.True(t, opus.HasCapability(CapReasoning))

	gpt, ok := DefaultCatalog.Get("gpt-4o")
	require.True(t, ok)
	assert.True(t, gpt.HasCapability(CapStreaming))
	assert.False(t, gpt.HasCapability(CapReasoning))
}
