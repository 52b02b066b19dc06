package modelcatalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrock"
	"github.com/aws/aws-sdk-go-v2/service/bedrock/types"
)

const (
	defaultDiscoveryRefresh       = time.Hour
	defaultDiscoveryContextWindow = 32000
	defaultDiscoveryMaxTokens     = 4096
)

// BedrockDiscoveryConfig controls which Bedrock foundation models get
// registered into a Catalog and how often the listing is refreshed.
type BedrockDiscoveryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Region  string `yaml:"region"`

	// RefreshInterval bounds how long a listing is reused before the
	// API is queried again. Zero means the package default (1h).
	RefreshInterval time.Duration `yaml:"refresh_interval"`

	// ProviderFilter restricts discovery to the named upstream
	// providers (e.g. "anthropic", "amazon"); empty admits all.
	ProviderFilter []string `yaml:"provider_filter"`

	// DefaultContextWindow and DefaultMaxTokens fill in the sizes the
	// listing API does not report.
	DefaultContextWindow int `yaml:"default_context_window"`
	DefaultMaxTokens     int `yaml:"default_max_tokens"`
}

// BedrockLister is the slice of the Bedrock control-plane API that
// discovery needs; satisfied by *bedrock.Client.
type BedrockLister interface {
	ListFoundationModels(ctx context.Context, params *bedrock.ListFoundationModelsInput, optFns ...func(*bedrock.Options)) (*bedrock.ListFoundationModelsOutput, error)
}

// BedrockDiscovery lists the active, streamable text models available
// to the account and converts them into catalog entries.
type BedrockDiscovery struct {
	cfg    BedrockDiscoveryConfig
	logger *slog.Logger

	newLister func(ctx context.Context, region string) (BedrockLister, error)

	mu      sync.Mutex
	cached  []*Model
	staleAt time.Time
}

// NewBedrockDiscovery builds a discovery instance. A nil logger falls
// back to slog.Default.
func NewBedrockDiscovery(cfg BedrockDiscoveryConfig, logger *slog.Logger) *BedrockDiscovery {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = defaultDiscoveryRefresh
	}
	if cfg.DefaultContextWindow <= 0 {
		cfg.DefaultContextWindow = defaultDiscoveryContextWindow
	}
	if cfg.DefaultMaxTokens <= 0 {
		cfg.DefaultMaxTokens = defaultDiscoveryMaxTokens
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	return &BedrockDiscovery{
		cfg:       cfg,
		logger:    logger,
		newLister: defaultLister,
	}
}

func defaultLister(ctx context.Context, region string) (BedrockLister, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return bedrock.NewFromConfig(awsCfg), nil
}

// SetLister replaces the AWS client constructor; tests inject a fake.
func (d *BedrockDiscovery) SetLister(fn func(ctx context.Context, region string) (BedrockLister, error)) {
	d.newLister = fn
}

// Invalidate drops the cached listing so the next Discover queries the
// API again.
func (d *BedrockDiscovery) Invalidate() {
	d.mu.Lock()
	d.cached = nil
	d.staleAt = time.Time{}
	d.mu.Unlock()
}

// Discover returns the current model listing, reusing a cached result
// within RefreshInterval. A refresh failure falls back to the stale
// cache when one exists.
func (d *BedrockDiscovery) Discover(ctx context.Context) ([]*Model, error) {
	if !d.cfg.Enabled {
		return nil, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cached != nil && time.Now().Before(d.staleAt) {
		return d.cached, nil
	}

	models, err := d.list(ctx)
	if err != nil {
		if d.cached != nil {
			d.logger.Warn("bedrock discovery refresh failed, serving stale listing", "error", err)
			return d.cached, nil
		}
		return nil, err
	}
	d.cached = models
	d.staleAt = time.Now().Add(d.cfg.RefreshInterval)
	return models, nil
}

// RegisterWithCatalog runs Discover and registers every result.
func (d *BedrockDiscovery) RegisterWithCatalog(ctx context.Context, catalog *Catalog) error {
	models, err := d.Discover(ctx)
	if err != nil {
		return err
	}
	for _, m := range models {
		catalog.Register(m)
	}
	d.logger.Info("registered bedrock models", "count", len(models))
	return nil
}

func (d *BedrockDiscovery) list(ctx context.Context) ([]*Model, error) {
	lister, err := d.newLister(ctx, d.cfg.Region)
	if err != nil {
		return nil, fmt.Errorf("build bedrock client: %w", err)
	}
	out, err := lister.ListFoundationModels(ctx, &bedrock.ListFoundationModelsInput{})
	if err != nil {
		return nil, fmt.Errorf("list foundation models: %w", err)
	}

	filter := normalizeFilter(d.cfg.ProviderFilter)
	var models []*Model
	for _, summary := range out.ModelSummaries {
		if !d.admit(summary, filter) {
			continue
		}
		models = append(models, d.toEntry(summary))
	}
	d.logger.Debug("bedrock discovery listing",
		"total", len(out.ModelSummaries), "admitted", len(models))
	return models, nil
}

// admit keeps only active, streaming-capable, text-output models that
// pass the provider filter. Non-streaming or non-text models cannot
// serve a Session round.
func (d *BedrockDiscovery) admit(summary types.FoundationModelSummary, filter map[string]bool) bool {
	if summary.ModelId == nil || *summary.ModelId == "" {
		return false
	}
	if summary.ResponseStreamingSupported == nil || !*summary.ResponseStreamingSupported {
		return false
	}
	if !outputsText(summary.OutputModalities) {
		return false
	}
	if summary.ModelLifecycle == nil || summary.ModelLifecycle.Status != types.FoundationModelLifecycleStatusActive {
		return false
	}
	if len(filter) > 0 && !filter[upstreamProvider(summary)] {
		return false
	}
	return true
}

func (d *BedrockDiscovery) toEntry(summary types.FoundationModelSummary) *Model {
	id := *summary.ModelId
	name := id
	if summary.ModelName != nil && *summary.ModelName != "" {
		name = *summary.ModelName
	}

	caps := []Capability{CapStreaming}
	for _, m := range summary.InputModalities {
		if m == types.ModelModalityImage {
			caps = append(caps, CapVision)
			break
		}
	}
	for _, inf := range summary.InferenceTypesSupported {
		if inf == types.InferenceTypeOnDemand {
			caps = append(caps, CapTools)
			break
		}
	}

	return &Model{
		ID:              id,
		Name:            name,
		Provider:        "bedrock",
		ContextWindow:   d.cfg.DefaultContextWindow,
		MaxOutputTokens: d.cfg.DefaultMaxTokens,
		Capabilities:    caps,
	}
}

// upstreamProvider extracts the model's upstream vendor, preferring the
// reported name over the "vendor.model" id prefix.
func upstreamProvider(summary types.FoundationModelSummary) string {
	if summary.ProviderName != nil && *summary.ProviderName != "" {
		return strings.ToLower(*summary.ProviderName)
	}
	if summary.ModelId != nil {
		vendor, _, _ := strings.Cut(*summary.ModelId, ".")
		return strings.ToLower(vendor)
	}
	return ""
}

func outputsText(modalities []types.ModelModality) bool {
	for _, m := range modalities {
		if m == types.ModelModalityText {
			return true
		}
	}
	return false
}

func normalizeFilter(filter []string) map[string]bool {
	if len(filter) == 0 {
		return nil
	}
	out := make(map[string]bool, len(filter))
	for _, p := range filter {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out[p] = true
		}
	}
	return out
}
