package modelcatalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrock"
	"github.com/aws/aws-sdk-go-v2/service/bedrock/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLister struct {
	calls     int
	err       error
	summaries []types.FoundationModelSummary
}

func (f *fakeLister) ListFoundationModels(_ context.Context, _ *bedrock.ListFoundationModelsInput, _ ...func(*bedrock.Options)) (*bedrock.ListFoundationModelsOutput, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &bedrock.ListFoundationModelsOutput{ModelSummaries: f.summaries}, nil
}

func activeSummary(id, provider string, streaming bool) types.FoundationModelSummary {
	return types.FoundationModelSummary{
		ModelId:                    aws.String(id),
		ProviderName:               aws.String(provider),
		ResponseStreamingSupported: aws.Bool(streaming),
		OutputModalities:           []types.ModelModality{types.ModelModalityText},
		InputModalities:            []types.ModelModality{types.ModelModalityText},
		ModelLifecycle:             &types.FoundationModelLifecycle{Status: types.FoundationModelLifecycleStatusActive},
		InferenceTypesSupported:    []types.InferenceType{types.InferenceTypeOnDemand},
	}
}

func newTestDiscovery(lister *fakeLister, cfg BedrockDiscoveryConfig) *BedrockDiscovery {
	cfg.Enabled = true
	d := NewBedrockDiscovery(cfg, nil)
	d.SetLister(func(_ context.Context, _ string) (BedrockLister, error) { return lister, nil })
	return d
}

func TestDiscoverAdmitsOnlyUsableModels(t *testing.T) {
	retired := activeSummary("amazon.retired", "Amazon", true)
	retired.ModelLifecycle = &types.FoundationModelLifecycle{Status: types.FoundationModelLifecycleStatusLegacy}

	lister := &fakeLister{summaries: []types.FoundationModelSummary{
		activeSummary("anthropic.claude-3-haiku", "Anthropic", true),
		activeSummary("amazon.titan-embed", "Amazon", false), // no streaming
		retired,
	}}
	d := newTestDiscovery(lister, BedrockDiscoveryConfig{})

	models, err := d.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 1)
	assert.Equal(t, "anthropic.claude-3-haiku", models[0].ID)
	assert.Equal(t, "bedrock", models[0].Provider)
	assert.True(t, models[0].HasCapability(CapStreaming))
	assert.True(t, models[0].HasCapability(CapTools), "on-demand models are assumed tool-capable")
}

func TestDiscoverAppliesProviderFilter(t *testing.T) {
	lister := &fakeLister{summaries: []types.FoundationModelSummary{
		activeSummary("anthropic.claude-3-haiku", "Anthropic", true),
		activeSummary("meta.llama3", "Meta", true),
	}}
	d := newTestDiscovery(lister, BedrockDiscoveryConfig{ProviderFilter: []string{" Anthropic "}})

	models, err := d.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 1)
	assert.Equal(t, "anthropic.claude-3-haiku", models[0].ID)
}

func TestDiscoverCachesWithinRefreshInterval(t *testing.T) {
	lister := &fakeLister{summaries: []types.FoundationModelSummary{
		activeSummary("anthropic.claude-3-haiku", "Anthropic", true),
	}}
	d := newTestDiscovery(lister, BedrockDiscoveryConfig{RefreshInterval: time.Hour})

	_, err := d.Discover(context.Background())
	require.NoError(t, err)
	_, err = d.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, lister.calls)

	d.Invalidate()
	_, err = d.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, lister.calls)
}

func TestDiscoverSurfacesErrorAfterInvalidate(t *testing.T) {
	lister := &fakeLister{summaries: []types.FoundationModelSummary{
		activeSummary("anthropic.claude-3-haiku", "Anthropic", true),
	}}
	d := newTestDiscovery(lister, BedrockDiscoveryConfig{RefreshInterval: time.Hour})

	first, err := d.Discover(context.Background())
	require.NoError(t, err)

	lister.err = errors.New("throttled")

	// An expired cache is served when the refresh fails.
	d.staleAt = time.Now().Add(-time.Minute)
	stale, err := d.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, stale)

	// Invalidate drops the cache entirely, so the failure surfaces.
	d.Invalidate()
	_, err = d.Discover(context.Background())
	require.Error(t, err)
}

func TestDiscoverDisabledReturnsNothing(t *testing.T) {
	lister := &fakeLister{}
	d := NewBedrockDiscovery(BedrockDiscoveryConfig{Enabled: false}, nil)
	d.SetLister(func(_ context.Context, _ string) (BedrockLister, error) { return lister, nil })

	models, err := d.Discover(context.Background())
	require.NoError(t, err)
	assert.Nil(t, models)
	assert.Zero(t, lister.calls)
}

func TestRegisterWithCatalog(t *testing.T) {
	lister := &fakeLister{summaries: []types.FoundationModelSummary{
		activeSummary("anthropic.claude-3-haiku", "Anthropic", true),
	}}
	d := newTestDiscovery(lister, BedrockDiscoveryConfig{DefaultContextWindow: 50000})
	catalog := NewCatalog()

	require.NoError(t, d.RegisterWithCatalog(context.Background(), catalog))
	entry, ok := catalog.Get("anthropic.claude-3-haiku")
	require.True(t, ok)
	assert.Equal(t, 50000, entry.ContextWindow)
}
