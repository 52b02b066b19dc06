package session

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/forgehq/forge/internal/lineage"
	"github.com/forgehq/forge/internal/llm"
	"github.com/forgehq/forge/internal/models"
	"github.com/forgehq/forge/internal/obs"
	"github.com/forgehq/forge/internal/tooling"
)

// SubmitWithResult drives the round loop and aggregates statistics
// (assistant text, tool-call ids and error count, merged usage),
// rather than just settling the pipeline like Submit.
func (s *Session) SubmitWithResult(ctx context.Context, input string, opts models.SubmitOptions) (models.SubmitResult, error) {
	return s.submitSingle(ctx, input, opts)
}

// submitSingle drives one input through the round loop: user turn,
// steering drain, then repeated assistant generation and tool dispatch
// until the model stops calling tools or a limit fires.
func (s *Session) submitSingle(ctx context.Context, input string, opts models.SubmitOptions) (models.SubmitResult, error) {
	if s.State() == models.SessionClosed {
		return models.SubmitResult{}, models.NewError(KindClosed, "session_closed")
	}
	if s.aborted.Load() {
		s.transitionClosed()
		return models.SubmitResult{}, nil
	}

	s.mu.Lock()
	prevState := s.state
	if s.state == models.SessionIdle || s.state == models.SessionAwaitingInput {
		s.state = models.SessionProcessing
	}
	s.mu.Unlock()
	if prevState != models.SessionProcessing {
		obs.EmitSessionState(&obs.SessionStateEvent{
			SessionID: s.id,
			PrevState: diagnosticState(prevState),
			State:     obs.SessionStateProcessing,
		})
	}

	s.startOnce.Do(func() {
		s.startedAt = time.Now()
		s.emitter.SessionStart()
		s.persistSessionLifecycle(ctx, "started", "")
		if s.deps.Metrics != nil {
			s.deps.Metrics.SessionStarted(resolveProvider(s.deps.Provider, opts))
		}
	})

	userTurn := models.NewUserTurn(input)
	s.appendTurn(userTurn)
	if err := s.persistTurnRecord(ctx, lineage.TypeUserTurn, lineage.VersionTurn, "user_turn", userTurn); err != nil {
		return models.SubmitResult{}, err
	}
	s.emitter.UserInput(input)

	for _, msg := range s.steering.DrainSteering() {
		st := models.NewSteeringTurn(msg)
		s.appendTurn(st)
		if err := s.persistTurnRecord(ctx, lineage.TypeSteeringTurn, lineage.VersionTurn, "steering_turn", st); err != nil {
			return models.SubmitResult{}, err
		}
		s.emitter.SteeringInjected(msg)
	}

	result := models.SubmitResult{ThreadKey: s.config.ThreadKey}
	completedNaturally := false

	for round := 0; ; round++ {
		if s.aborted.Load() {
			s.transitionClosed()
			return result, nil
		}
		if round >= s.config.MaxToolRoundsPerInput {
			s.emitter.TurnLimit(s.config.MaxToolRoundsPerInput)
			obs.EmitSessionStuck(&obs.SessionStuckEvent{
				SessionID: s.id,
				Reason:    "max_tool_rounds",
				Limit:     s.config.MaxToolRoundsPerInput,
			})
			break
		}
		if s.config.MaxTurns > 0 && s.historyLen() >= s.config.MaxTurns {
			s.emitter.TurnLimit(s.config.MaxTurns)
			obs.EmitSessionStuck(&obs.SessionStuckEvent{
				SessionID: s.id,
				Reason:    "max_turns",
				Limit:     s.config.MaxTurns,
			})
			break
		}

		windowSize := s.contextWindowSize(opts)
		approx, pct, fire := contextUsageWarning(s.snapshotHistory(), windowSize)
		if fire {
			s.emitter.Warning("warning", "context_usage", map[string]any{
				"approx_tokens":       approx,
				"context_window_size": windowSize,
				"usage_percent":       pct,
			})
		}
		if s.deps.Metrics != nil {
			s.deps.Metrics.RecordContextWindow(resolveProvider(s.deps.Provider, opts), resolveModel(s.deps.Model, opts), approx)
		}
		s.maybeCompact(ctx, windowSize)

		req := buildRequest(s.snapshotHistory(), s.deps.Layers, s.deps.Registry.List(), opts, s.config, s.deps.Model)
		if loopMsg, ok := s.pendingLoopMessage(); ok {
			req.Messages = append(req.Messages, llm.WireMessage{Role: "user", Text: loopMsg})
		}
		s.emitter.AssistantTextStart()

		resp, err := s.raceLLM(ctx, opts, req)
		if err != nil {
			if err == errAborted {
				s.deps.Env.TerminateAll()
				s.transitionClosed()
				return result, nil
			}
			s.emitter.Error(err.Error())
			if s.deps.Metrics != nil {
				s.deps.Metrics.RecordError("session", "llm_request_failed")
			}
			s.transitionClosed()
			return result, models.Wrap(KindLLMRequestFailed, err)
		}

		calls := toModelCalls(resp.ToolCalls)
		assistantTurn := models.NewAssistantTurn(resp.Text, resp.Reasoning, calls,
			models.Usage{InputTokens: resp.InputTokens, OutputTokens: resp.OutputTokens}, resp.ResponseID)
		s.appendTurn(assistantTurn)
		if err := s.persistTurnRecord(ctx, lineage.TypeAssistantTurn, lineage.VersionTurn, "assistant_turn", assistantTurn); err != nil {
			return result, err
		}
		if resp.Text != "" {
			s.emitter.AssistantTextDelta(resp.Text)
		}
		s.emitter.AssistantTextEnd()

		result.AssistantText = resp.Text
		result.Usage.InputTokens += resp.InputTokens
		result.Usage.OutputTokens += resp.OutputTokens

		if len(calls) == 0 {
			if looksLikeQuestion(resp.Text) {
				s.mu.Lock()
				s.state = models.SessionAwaitingInput
				s.mu.Unlock()
			} else {
				completedNaturally = true
			}
			break
		}

		for _, c := range calls {
			if err := s.persistToolCallLifecycle(ctx, "started", c, "", false); err != nil {
				return result, err
			}
			result.ToolCallIDs = append(result.ToolCallIDs, c.ID)
		}

		opts2 := tooling.DispatchOptions{
			SessionID:                 s.id,
			SupportsParallelToolCalls: s.deps.LLMClient.Capabilities(resolveProvider(s.deps.Provider, opts), resolveModel(s.deps.Model, opts)).SupportsParallelToolCalls,
			PreHook:                   s.deps.PreHook,
			PostHook:                  s.deps.PostHook,
			HookStrict:                s.config.ToolHookStrict,
			DefaultCommandTimeoutMs:   int64(s.config.DefaultCommandTimeoutMs),
			MaxCommandTimeoutMs:       int64(s.config.MaxCommandTimeoutMs),
			ToolOutputLimits:          s.config.ToolOutputLimits,
			Logger:                    s.deps.Logger,
			AsyncPatterns:             s.deps.AsyncPatterns,
			AsyncJobStore:             s.deps.AsyncJobStore,
			Metrics:                   s.deps.Metrics,
			Tracer:                    s.deps.Tracer,
			AuditLogger:               s.deps.AuditLogger,
		}
		results := s.dispatchCalls(ctx, calls, opts2)

		result.ToolCallCount += len(calls)
		for _, r := range results {
			if r.IsError {
				result.ToolErrorCount++
			}
		}
		for i, c := range calls {
			if i < len(results) {
				if err := s.persistToolCallLifecycle(ctx, "ended", c, results[i].Content, results[i].IsError); err != nil {
					return result, err
				}
			}
		}

		toolResultsTurn := models.NewToolResultsTurn(results)
		s.appendTurn(toolResultsTurn)
		if err := s.persistTurnRecord(ctx, lineage.TypeToolResultsTurn, lineage.VersionTurn, "tool_results_turn", toolResultsTurn); err != nil {
			return result, err
		}

		for _, msg := range s.steering.DrainSteering() {
			st := models.NewSteeringTurn(msg)
			s.appendTurn(st)
			if err := s.persistTurnRecord(ctx, lineage.TypeSteeringTurn, lineage.VersionTurn, "steering_turn", st); err != nil {
				return result, err
			}
			s.emitter.SteeringInjected(msg)
		}

		s.runLoopDetection()
	}

	if completedNaturally {
		for {
			msg, ok := s.steering.PopFollowUp()
			if !ok {
				break
			}
			if _, err := s.submitSingle(ctx, msg, models.SubmitOptions{}); err != nil {
				return result, err
			}
		}
	}

	s.mu.Lock()
	wasProcessing := s.state == models.SessionProcessing
	if wasProcessing {
		s.state = models.SessionIdle
	}
	s.mu.Unlock()
	if wasProcessing {
		obs.EmitSessionState(&obs.SessionStateEvent{
			SessionID: s.id,
			PrevState: obs.SessionStateProcessing,
			State:     obs.SessionStateIdle,
		})
	}

	return result, nil
}

var errAborted = models.NewError(models.Kind("Session.Aborted"), "aborted")

// raceLLM races the LLM call against the session's abort channel.
func (s *Session) raceLLM(ctx context.Context, opts models.SubmitOptions, req llm.Request) (llm.Response, error) {
	type outcome struct {
		resp llm.Response
		err  error
	}
	ch := make(chan outcome, 1)
	provider := resolveProvider(s.deps.Provider, opts)
	model := resolveModel(s.deps.Model, opts)
	start := time.Now()

	spanCtx := ctx
	var span trace.Span
	if s.deps.Tracer != nil {
		spanCtx, span = s.deps.Tracer.TraceLLMRequest(ctx, provider, model)
	}

	go func() {
		resp, err := s.deps.LLMClient.Complete(spanCtx, provider, req)
		ch <- outcome{resp, err}
	}()
	select {
	case o := <-ch:
		s.recordLLMMetrics(provider, model, o.resp, o.err, time.Since(start))
		if span != nil {
			if o.err != nil {
				s.deps.Tracer.RecordError(span, o.err)
			}
			span.End()
		}
		return o.resp, o.err
	case <-s.abortCh:
		if span != nil {
			span.End()
		}
		return llm.Response{}, errAborted
	}
}

// recordLLMMetrics reports one Complete call's latency, status, and
// token counts against the shared Prometheus collectors, and emits a
// diagnostic model-usage event regardless of whether Metrics is wired.
func (s *Session) recordLLMMetrics(provider, model string, resp llm.Response, err error, elapsed time.Duration) {
	obs.EmitModelUsage(&obs.ModelUsageEvent{
		SessionID: s.id,
		Provider:  provider,
		Model:     model,
		Usage: obs.UsageDetails{
			Input:  int64(resp.InputTokens),
			Output: int64(resp.OutputTokens),
			Total:  int64(resp.InputTokens + resp.OutputTokens),
		},
		DurationMs: elapsed.Milliseconds(),
	})
	if s.deps.Metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	s.deps.Metrics.LLMRequestDuration.WithLabelValues(provider, model).Observe(elapsed.Seconds())
	s.deps.Metrics.LLMRequestCounter.WithLabelValues(provider, model, status).Inc()
	if resp.InputTokens > 0 {
		s.deps.Metrics.LLMTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(resp.InputTokens))
	}
	if resp.OutputTokens > 0 {
		s.deps.Metrics.LLMTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(resp.OutputTokens))
	}
}

func resolveProvider(def string, opts models.SubmitOptions) string {
	if opts.Provider != "" {
		return opts.Provider
	}
	return def
}

func resolveModel(def string, opts models.SubmitOptions) string {
	if opts.Model != "" {
		return opts.Model
	}
	return def
}

func (s *Session) transitionClosed() {
	s.mu.Lock()
	prev := s.state
	s.state = models.SessionClosed
	s.mu.Unlock()
	s.emitter.SessionEnd(string(models.SessionClosed))
	obs.EmitSessionState(&obs.SessionStateEvent{
		SessionID: s.id,
		PrevState: diagnosticState(prev),
		State:     obs.SessionStateClosed,
	})
}

// diagnosticState maps the session's internal state machine to the
// coarser vocabulary the diagnostic event bus tracks.
func diagnosticState(st models.SessionState) obs.DiagnosticSessionState {
	switch st {
	case models.SessionProcessing:
		return obs.SessionStateProcessing
	case models.SessionAwaitingInput:
		return obs.SessionStateWaiting
	case models.SessionClosed:
		return obs.SessionStateClosed
	default:
		return obs.SessionStateIdle
	}
}

func (s *Session) appendTurn(t models.Turn) {
	s.mu.Lock()
	s.history = append(s.history, t)
	s.mu.Unlock()
}

func (s *Session) historyLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

func (s *Session) snapshotHistory() []models.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Turn(nil), s.history...)
}

func (s *Session) contextWindowSize(opts models.SubmitOptions) int {
	return s.deps.LLMClient.Capabilities(resolveProvider(s.deps.Provider, opts), resolveModel(s.deps.Model, opts)).ContextWindowSize
}

// pendingLoopMessage reports the message to inject as a user-role prompt
// in the next LLM request when loop-detection last fired.
func (s *Session) pendingLoopMessage() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loopMessage == "" {
		return "", false
	}
	msg := s.loopMessage
	s.loopMessage = ""
	return msg, true
}

// runLoopDetection detects a repeating tool-call pattern, pushes a
// SteeringTurn and emits LOOP_DETECTION.
func (s *Session) runLoopDetection() {
	if s.config.LoopDetectionWindow <= 0 {
		return
	}
	sigs := flatToolCallSignatures(s.snapshotHistory())
	if !detectLoop(sigs, s.config.LoopDetectionWindow) {
		return
	}
	msg := "Loop detected: the same tool call(s) have repeated; try a different approach."
	st := models.NewSteeringTurn(msg)
	s.appendTurn(st)
	s.mu.Lock()
	s.loopMessage = msg
	s.mu.Unlock()
	s.emitter.LoopDetection(sigs[len(sigs)-1], s.config.LoopDetectionWindow)
}

func (s *Session) persistToolCallLifecycle(ctx context.Context, kind string, call models.ToolCall, output string, isError bool) error {
	seq := s.nextSeq()
	rec := lineage.ToolCallLifecycleRecord{
		Kind:       kind,
		SessionID:  s.id,
		Timestamp:  time.Now(),
		CallID:     call.ID,
		ToolName:   call.Name,
		Arguments:  string(call.EffectiveArguments()),
		Output:     output,
		IsError:    isError,
		SequenceNo: seq,
		ThreadKey:  s.config.ThreadKey,
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.appendLineage(ctx, lineage.TypeToolCallLifecycle, lineage.VersionToolCallLifecycle, "tool_call_lifecycle."+kind, seq, payload)
}

func mustJSONRaw(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return b
}

func toModelCalls(in []llm.ToolCallOut) []models.ToolCall {
	out := make([]models.ToolCall, 0, len(in))
	for _, c := range in {
		out = append(out, models.ToolCall{ID: c.ID, Name: c.Name, Arguments: c.Arguments, RawArguments: c.RawArguments})
	}
	return out
}
