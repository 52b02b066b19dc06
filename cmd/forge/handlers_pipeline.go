package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/forgehq/forge/internal/artifacts"
	"github.com/forgehq/forge/internal/attractor"
	"github.com/forgehq/forge/internal/dot"
	"github.com/forgehq/forge/internal/env"
	"github.com/forgehq/forge/internal/eventbus"
	"github.com/forgehq/forge/internal/forgebackoff"
	"github.com/forgehq/forge/internal/interview"
	"github.com/forgehq/forge/internal/models"
	"github.com/forgehq/forge/internal/nodes"
	"github.com/forgehq/forge/internal/obs"
	"github.com/forgehq/forge/internal/session"
	"github.com/forgehq/forge/internal/tooling"
)

// runPipeline parses graphPath and drives it through an
// attractor.Runner, printing the final node and status.
func runPipeline(ctx context.Context, configPath, graphPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	source, err := os.ReadFile(graphPath)
	if err != nil {
		return fmt.Errorf("read graph: %w", err)
	}
	g, diags, err := dot.Parse(source)
	if err != nil {
		return fmt.Errorf("parse graph: %w (%d diagnostics)", err, len(diags))
	}

	client, err := buildLLMClient(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build llm client: %w", err)
	}
	store, closeStore, err := buildLineageStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	layers, err := buildPromptLayers(cfg)
	if err != nil {
		return err
	}

	sessionCfg, err := cfg.SessionConfig()
	if err != nil {
		return err
	}

	bus := eventbus.NewBufferedEmitter(256)
	auditLogger, err := startAuditBridge(ctx, cfg, bus)
	if err != nil {
		return err
	}
	defer auditLogger.Close()

	localEnv := env.NewLocalExecutionEnvironment()
	defer localEnv.TerminateAll()

	sessionID := uuid.NewString()
	registry := tooling.NewRegistry()
	registry.Register(newRunCommandTool(localEnv, 0))
	dispatcher := tooling.NewDispatcher(registry, eventbus.NewSessionEmitter(sessionID, bus))

	codergenSession := session.New(sessionID, sessionCfg, session.Deps{
		LLMClient:   client,
		Env:         localEnv,
		Lineage:     store,
		Bus:         bus,
		Registry:    registry,
		Dispatcher:  dispatcher,
		Provider:    cfg.Session.DefaultProvider,
		Model:       cfg.Session.DefaultModel,
		Layers:      layers,
		Logger:      buildSessionLogger(cfg),
		Metrics:     obs.NewMetrics(),
		AuditLogger: auditLogger.ForSession(sessionID),
	}, 0)
	defer codergenSession.Close()

	nodeRegistry := nodes.Registry{
		"start":       nodes.StartHandler{},
		"exit":        nodes.ExitHandler{},
		"conditional": nodes.ConditionalHandler{},
		"parallel":    nodes.ParallelHandler{},
		"codergen":    nodes.CodergenHandler{Backend: sessionCodergenBackend{sess: codergenSession}},
		"tool": nodes.ToolHandler{
			Dispatcher: dispatcher,
			Options: tooling.DispatchOptions{
				DefaultCommandTimeoutMs: int64(sessionCfg.DefaultCommandTimeoutMs),
				MaxCommandTimeoutMs:     int64(sessionCfg.MaxCommandTimeoutMs),
				ToolOutputLimits:        sessionCfg.ToolOutputLimits,
			},
		},
		"wait.human": nodes.WaitHumanHandler{
			Interviewer: interview.ConsoleInterviewer{Prompter: newStdioPrompter(os.Stdin, os.Stdout)},
		},
		"parallel.fan_in":    nodes.FanInHandler{},
		"stack.manager_loop": nodes.ManagerLoopHandler{},
	}

	artifactStore := artifacts.New(artifacts.WithBaseDir(cfg.Workspace.Path))

	runner := attractor.New(attractor.Deps{
		Nodes:     nodeRegistry,
		Lineage:   store,
		Artifacts: artifactStore,
		Backoff:   forgebackoff.DefaultPolicy(),
	})

	result, err := runner.Run(ctx, g, attractor.RunOptions{DotSource: source})
	if err != nil {
		return fmt.Errorf("run pipeline: %w", err)
	}

	fmt.Printf("run %s: %s\n", result.RunID, result.Status)
	if result.Status == models.NodeFail {
		fmt.Printf("failure: %s\n", result.FailureReason)
	}
	fmt.Printf("completed nodes: %v\n", result.CompletedNodes)
	return nil
}
