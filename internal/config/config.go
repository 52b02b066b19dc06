// Package config loads the layered YAML configuration Forge's ambient
// CLI decodes into plain structs before constructing SessionConfig,
// pipeline RunOptions, and the LineageStore backend. The core packages
// (session, attractor, lineage, ...) never read config or the
// environment directly; only cmd/forge and this package do.
package config

import (
	"fmt"
	"time"

	"github.com/forgehq/forge/internal/audit"
	"github.com/forgehq/forge/internal/models"
)

// Config is the top-level decoded shape of a Forge config file.
type Config struct {
	// Version is the config file schema version; 0 (absent) is treated
	// as the current version.
	Version int `yaml:"version"`

	Session   SessionSection   `yaml:"session"`
	Lineage   LineageSection   `yaml:"lineage"`
	Providers ProvidersSection `yaml:"providers"`
	Logging   LoggingSection   `yaml:"logging"`
	Workspace WorkspaceSection `yaml:"workspace"`
	Metrics   MetricsSection   `yaml:"metrics"`
	Audit     audit.Config     `yaml:"audit"`
}

// SessionSection mirrors models.SessionConfig's YAML-recognized
// fields, plus the default provider/model a Session dials out to and
// the cmd/forge-level LLM client decorators (retry, fallback) that
// wrap whichever provider adapter the session actually calls.
type SessionSection struct {
	DefaultProvider         string         `yaml:"default_provider"`
	DefaultModel            string         `yaml:"default_model"`
	MaxTurns                int            `yaml:"max_turns"`
	MaxToolRoundsPerInput   int            `yaml:"max_tool_rounds_per_input"`
	LoopDetectionWindow     int            `yaml:"loop_detection_window"`
	MaxSubAgentDepth        int            `yaml:"max_subagent_depth"`
	DefaultCommandTimeoutMs int            `yaml:"default_command_timeout_ms"`
	MaxCommandTimeoutMs     int            `yaml:"max_command_timeout_ms"`
	ToolOutputLimits        map[string]int `yaml:"tool_output_limits"`
	ToolHookStrict          bool           `yaml:"tool_hook_strict"`
	ReasoningEffort         string         `yaml:"reasoning_effort"`
	PersistenceMode         string         `yaml:"persistence_mode"`
	FSSnapshotPolicy        string         `yaml:"fs_snapshot_policy"`

	// RetryPolicy selects a forgebackoff.Policy ("aggressive" | "default"
	// | "conservative") for internal/llm.RetryingClient. Empty disables
	// the retry decorator.
	RetryPolicy      string `yaml:"retry_policy"`
	RetryMaxAttempts int    `yaml:"retry_max_attempts"`

	// Fallbacks lists ordered "provider/model" alternates for
	// internal/llm.FallbackClient. Empty disables the fallback decorator.
	Fallbacks []string `yaml:"fallbacks"`
}

// LineageSection selects and configures one of the three ALS backends
// (internal/lineage: memory, sqlite, postgres).
type LineageSection struct {
	Backend        string        `yaml:"backend"` // "memory" | "sqlite" | "postgres"
	DSN            string        `yaml:"dsn"`      // sqlite file path or postgres connection string
	IdempotencyTTL time.Duration `yaml:"idempotency_ttl"`
}

// ProvidersSection holds per-provider connection settings. API keys are
// never read from this struct directly in the core; cmd/forge resolves
// them via environment overlay (internal/config.Load applies
// godotenv-sourced values before decoding) and passes resolved clients
// into session.Deps.
type ProvidersSection struct {
	Anthropic ProviderEntry `yaml:"anthropic"`
	OpenAI    ProviderEntry `yaml:"openai"`
	Bedrock   ProviderEntry `yaml:"bedrock"`
}

// ProviderEntry is one provider's config block.
type ProviderEntry struct {
	APIKeyEnv string `yaml:"api_key_env"`
	BaseURL   string `yaml:"base_url,omitempty"`
	Region    string `yaml:"region,omitempty"` // bedrock

	// DiscoverModels enables modelcatalog.BedrockDiscovery, querying AWS
	// for the account's available foundation models instead of relying
	// solely on the adapter's built-in model list. Bedrock only.
	DiscoverModels bool `yaml:"discover_models,omitempty"`

	// DiscoveryProviderFilter restricts discovery to the named model
	// providers (e.g. "anthropic", "amazon", "meta"). Empty means all.
	DiscoveryProviderFilter []string `yaml:"discovery_provider_filter,omitempty"`
}

// LoggingSection configures the ambient log/slog setup (internal/obs).
type LoggingSection struct {
	Level  string `yaml:"level"`  // "debug" | "info" | "warn" | "error"
	Format string `yaml:"format"` // "text" | "json"
}

// MetricsSection configures the Prometheus exporter (internal/obs).
type MetricsSection struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// WorkspaceSection configures the instruction-document bootstrap
// (internal/workspace), consumed by the Session Engine's layered
// system prompt as the project instruction documents.
type WorkspaceSection struct {
	Path       string `yaml:"path"`
	AgentsFile string `yaml:"agents_file"`
	ToolsFile  string `yaml:"tools_file"`
	MemoryFile string `yaml:"memory_file"`
}

// Default returns the documented defaults, matching
// models.DefaultSessionConfig() where the two overlap.
func Default() *Config {
	d := models.DefaultSessionConfig()
	return &Config{
		Session: SessionSection{
			DefaultProvider:         "anthropic",
			MaxTurns:                d.MaxTurns,
			MaxToolRoundsPerInput:   d.MaxToolRoundsPerInput,
			LoopDetectionWindow:     d.LoopDetectionWindow,
			MaxSubAgentDepth:        d.MaxSubAgentDepth,
			DefaultCommandTimeoutMs: d.DefaultCommandTimeoutMs,
			MaxCommandTimeoutMs:     d.MaxCommandTimeoutMs,
			ToolOutputLimits:        map[string]int{},
			PersistenceMode:         string(d.PersistenceMode),
		},
		Lineage: LineageSection{
			Backend:        "memory",
			IdempotencyTTL: 24 * time.Hour,
		},
		Logging: LoggingSection{Level: "info", Format: "text"},
		Workspace: WorkspaceSection{
			Path: ".",
		},
		Audit: audit.DefaultConfig(),
	}
}

// SessionConfig converts the decoded YAML section into
// models.SessionConfig, validating the reasoning effort and
// persistence mode enums.
func (c *Config) SessionConfig() (models.SessionConfig, error) {
	cfg := models.DefaultSessionConfig()
	s := c.Session
	if s.MaxToolRoundsPerInput > 0 {
		cfg.MaxToolRoundsPerInput = s.MaxToolRoundsPerInput
	}
	cfg.MaxTurns = s.MaxTurns
	cfg.LoopDetectionWindow = s.LoopDetectionWindow
	if s.MaxSubAgentDepth > 0 {
		cfg.MaxSubAgentDepth = s.MaxSubAgentDepth
	}
	if s.DefaultCommandTimeoutMs > 0 {
		cfg.DefaultCommandTimeoutMs = s.DefaultCommandTimeoutMs
	}
	if s.MaxCommandTimeoutMs > 0 {
		cfg.MaxCommandTimeoutMs = s.MaxCommandTimeoutMs
	}
	if s.ToolOutputLimits != nil {
		cfg.ToolOutputLimits = s.ToolOutputLimits
	}
	cfg.ToolHookStrict = s.ToolHookStrict
	if s.ReasoningEffort != "" {
		effort, ok := models.ValidReasoningEffort(s.ReasoningEffort)
		if !ok {
			return cfg, fmt.Errorf("session.reasoning_effort: invalid value %q", s.ReasoningEffort)
		}
		cfg.ReasoningEffort = effort
	}
	switch s.PersistenceMode {
	case "", "off":
		cfg.PersistenceMode = models.PersistenceOff
	case "required":
		cfg.PersistenceMode = models.PersistenceRequired
	default:
		return cfg, fmt.Errorf("session.persistence_mode: invalid value %q", s.PersistenceMode)
	}
	switch s.FSSnapshotPolicy {
	case "", "none":
		cfg.FSSnapshotPolicy = models.FSSnapshotNone
	case "default":
		cfg.FSSnapshotPolicy = models.FSSnapshotDefault
	default:
		return cfg, fmt.Errorf("session.fs_snapshot_policy: invalid value %q", s.FSSnapshotPolicy)
	}
	return cfg, nil
}

// Validate checks cross-field constraints not expressible as plain
// zero-value defaults.
func (c *Config) Validate() error {
	if err := ValidateVersion(c.Version); err != nil {
		return err
	}
	if _, err := c.SessionConfig(); err != nil {
		return err
	}
	switch c.Lineage.Backend {
	case "", "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("lineage.backend: unsupported backend %q", c.Lineage.Backend)
	}
	if (c.Lineage.Backend == "sqlite" || c.Lineage.Backend == "postgres") && c.Lineage.DSN == "" {
		return fmt.Errorf("lineage.dsn: required for backend %q", c.Lineage.Backend)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported level %q", c.Logging.Level)
	}
	switch c.Session.RetryPolicy {
	case "", "aggressive", "default", "conservative":
	default:
		return fmt.Errorf("session.retry_policy: unsupported policy %q", c.Session.RetryPolicy)
	}
	return nil
}
