package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/forgehq/forge/internal/env"
	"github.com/forgehq/forge/internal/eventbus"
	"github.com/forgehq/forge/internal/models"
	"github.com/forgehq/forge/internal/obs"
	"github.com/forgehq/forge/internal/session"
	"github.com/forgehq/forge/internal/tooling"
)

// runInput loads the configured runtime, submits input to a single
// fresh Session, and prints the assistant's final reply.
func runInput(ctx context.Context, configPath, provider, model, input string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
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
	registry.Register(newRunCommandTool(localEnv, time.Duration(sessionCfg.DefaultCommandTimeoutMs)*time.Millisecond))
	dispatcher := tooling.NewDispatcher(registry, eventbus.NewSessionEmitter(sessionID, bus))

	if provider == "" {
		provider = cfg.Session.DefaultProvider
	}
	if model == "" {
		model = cfg.Session.DefaultModel
	}

	sess := session.New(sessionID, sessionCfg, session.Deps{
		LLMClient:   client,
		Env:         localEnv,
		Lineage:     store,
		Bus:         bus,
		Registry:    registry,
		Dispatcher:  dispatcher,
		Provider:    provider,
		Model:       model,
		Layers:      layers,
		Logger:      buildSessionLogger(cfg),
		Metrics:     obs.NewMetrics(),
		AuditLogger: auditLogger.ForSession(sessionID),
	}, 0)
	defer sess.Close()

	result, err := sess.SubmitWithResult(ctx, input, models.SubmitOptions{})
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}

	text, _ := sess.LastAssistantText()
	fmt.Println(text)
	fmt.Printf("\n[%d tool call(s), %d turn(s) used]\n", result.ToolCallCount, sess.TurnsUsed())
	return nil
}
