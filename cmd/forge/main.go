// Package main provides the CLI entry point for Forge, the
// multi-provider coding-agent runtime.
//
// Forge drives two independent engines against the same
// append-only lineage trail: the Session Engine, a conversational
// round loop with tool dispatch and sub-agent spawning, and the
// Pipeline Runner, a graph-directed orchestrator over a DOT pipeline
// definition.
//
// # Basic Usage
//
// Submit one input to a fresh session:
//
//	forge run --config forge.yaml "implement the thing"
//
// Run a pipeline graph to completion:
//
//	forge pipeline run --config forge.yaml graph.dot
//
// Expose Prometheus metrics and a health check:
//
//	forge serve --config forge.yaml
//
// # Environment Variables
//
// These environment variables are read alongside the YAML config file:
//
//   - FORGE_CONFIG: Path to configuration file when --config is not
//     given (default: forge.yaml)
//   - Provider API keys: read from the variable named by each
//     provider's api_key_env setting (for example ANTHROPIC_API_KEY or
//     OPENAI_API_KEY); a provider with no api_key_env is not configured
//   - AWS credentials (standard SDK discovery) for Bedrock
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build.
//
// Example build command:
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "forge",
		Short: "Forge - multi-provider coding-agent runtime",
		Long: `Forge drives a Session Engine (conversational round loop, tool
dispatch, sub-agent spawning) and a Pipeline Runner (graph-directed
orchestration) against a shared append-only lineage trail.

Supported LLM providers: Anthropic (Claude), OpenAI (GPT), AWS Bedrock`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildRunCmd(),
		buildPipelineCmd(),
		buildServeCmd(),
	)

	return rootCmd
}
