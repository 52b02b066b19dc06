package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/forgehq/forge/internal/audit"
	"github.com/forgehq/forge/internal/config"
	"github.com/forgehq/forge/internal/eventbus"
	"github.com/forgehq/forge/internal/forgebackoff"
	"github.com/forgehq/forge/internal/lineage"
	"github.com/forgehq/forge/internal/llm"
	"github.com/forgehq/forge/internal/modelcatalog"
	"github.com/forgehq/forge/internal/obs"
	"github.com/forgehq/forge/internal/session"
	"github.com/forgehq/forge/internal/workspace"
)

// loadConfig reads and validates the YAML config at path. An empty path
// falls back to $FORGE_CONFIG, then forge.yaml; config.Default() is
// returned when the resolved file does not exist.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = os.Getenv("FORGE_CONFIG")
	}
	if path == "" {
		path = "forge.yaml"
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return config.Default(), nil
		}
		return nil, err
	}
	return config.Load(path)
}

// buildLLMClient resolves the configured provider adapters, wraps each
// in the shared model catalog, and layers the configured retry and
// fallback decorators around the default
// provider/model a Session dials out to.
func buildLLMClient(ctx context.Context, cfg *config.Config) (llm.Client, error) {
	clients := map[string]llm.Client{}

	if entry := cfg.Providers.Anthropic; entry.APIKeyEnv != "" {
		apiKey := os.Getenv(entry.APIKeyEnv)
		clients["anthropic"] = llm.NewCatalogClient(llm.NewAnthropicAdapter(apiKey), nil)
	}
	if entry := cfg.Providers.OpenAI; entry.APIKeyEnv != "" {
		apiKey := os.Getenv(entry.APIKeyEnv)
		clients["openai"] = llm.NewCatalogClient(llm.NewOpenAIAdapter(apiKey), nil)
	}
	if entry := cfg.Providers.Bedrock; entry.Region != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(entry.Region))
		if err != nil {
			return nil, fmt.Errorf("load bedrock aws config: %w", err)
		}
		var catalog *modelcatalog.Catalog
		if entry.DiscoverModels {
			catalog = modelcatalog.NewCatalog()
			discovery := modelcatalog.NewBedrockDiscovery(modelcatalog.BedrockDiscoveryConfig{
				Enabled:        true,
				Region:         entry.Region,
				ProviderFilter: entry.DiscoveryProviderFilter,
			}, nil)
			if err := discovery.RegisterWithCatalog(ctx, catalog); err != nil {
				return nil, fmt.Errorf("discover bedrock models: %w", err)
			}
		}
		clients["bedrock"] = llm.NewCatalogClient(llm.NewBedrockAdapter(awsCfg), catalog)
	}

	defaultProvider := cfg.Session.DefaultProvider
	if defaultProvider == "" {
		defaultProvider = "anthropic"
	}
	client, ok := clients[defaultProvider]
	if !ok {
		return nil, fmt.Errorf("session.default_provider %q has no configured credentials", defaultProvider)
	}

	if len(cfg.Session.Fallbacks) > 0 {
		client = llm.NewFallbackClient(clients, modelcatalog.FallbackConfig{
			Fallbacks: cfg.Session.Fallbacks,
		})
	}

	if cfg.Session.RetryPolicy != "" {
		policy := forgebackoff.DefaultPolicy()
		switch cfg.Session.RetryPolicy {
		case "aggressive":
			policy = forgebackoff.AggressivePolicy()
		case "conservative":
			policy = forgebackoff.ConservativePolicy()
		}
		maxAttempts := cfg.Session.RetryMaxAttempts
		if maxAttempts <= 0 {
			maxAttempts = 3
		}
		client = llm.NewRetryingClient(client, policy, maxAttempts)
	}

	return client, nil
}

// lineageCloser unifies the three store implementations' differing
// shutdown signatures behind one func() error cmd/forge can defer.
type lineageCloser func() error

// buildLineageStore opens the configured ALS backend (internal/lineage:
// memory, sqlite, postgres).
func buildLineageStore(ctx context.Context, cfg *config.Config) (lineage.Store, lineageCloser, error) {
	ttl := cfg.Lineage.IdempotencyTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	switch cfg.Lineage.Backend {
	case "", "memory":
		return lineage.NewMemoryStore(ttl), func() error { return nil }, nil
	case "sqlite":
		store, err := lineage.OpenSQLiteStore(cfg.Lineage.DSN, ttl)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite lineage store: %w", err)
		}
		return store, store.Close, nil
	case "postgres":
		store, err := lineage.OpenPostgresStore(ctx, cfg.Lineage.DSN, ttl)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres lineage store: %w", err)
		}
		return store, func() error { store.Close(); return nil }, nil
	default:
		return nil, nil, fmt.Errorf("lineage.backend: unsupported backend %q", cfg.Lineage.Backend)
	}
}

// buildPromptLayers bootstraps the workspace instruction documents
// (internal/workspace) and folds them into the Session Engine's
// layered system prompt.
func buildPromptLayers(cfg *config.Config) (session.PromptLayers, error) {
	root := cfg.Workspace.Path
	if root == "" {
		root = "."
	}
	if _, err := workspace.EnsureWorkspaceFiles(root, workspace.BootstrapFilesForConfig(cfg), false); err != nil {
		return session.PromptLayers{}, fmt.Errorf("bootstrap workspace files: %w", err)
	}

	docs, err := workspace.Load(workspace.LoaderConfigFromConfig(cfg))
	if err != nil {
		return session.PromptLayers{}, fmt.Errorf("load workspace: %w", err)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		absRoot = root
	}

	return session.PromptLayers{
		BaseInstructions: "You are Forge, an autonomous coding agent operating in this workspace.",
		EnvironmentBlock: fmt.Sprintf("## Environment\n- platform: %s/%s\n- working directory: %s", runtime.GOOS, runtime.GOARCH, absRoot),
		ProjectDocs:      docs.InstructionDocs(),
	}, nil
}

// buildSessionLogger constructs the obs logger from the logging config
// and hands back its slog face for session.Deps.Logger /
// attractor.Deps.Logger.
func buildSessionLogger(cfg *config.Config) *slog.Logger {
	return obs.NewLogger(obs.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}).Slog()
}

// startAuditBridge constructs an audit.Logger from cfg and, if
// enabled, forwards every Event Bus event to it until ctx is
// cancelled. Returns the logger so callers can Close it on shutdown;
// returns a disabled logger (nil Close is a no-op) when audit logging
// is off.
func startAuditBridge(ctx context.Context, cfg *config.Config, bus eventbus.Emitter) (*audit.Logger, error) {
	logger, err := audit.NewLogger(cfg.Audit)
	if err != nil {
		return nil, fmt.Errorf("build audit logger: %w", err)
	}
	if cfg.Audit.Enabled {
		go audit.BridgeFromBus(ctx, logger, bus)
	}
	return logger, nil
}
