package tooling

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/forgehq/forge/internal/audit"
	"github.com/forgehq/forge/internal/eventbus"
	"github.com/forgehq/forge/internal/models"
	"github.com/forgehq/forge/internal/obs"
)

// CheckJobTool is the name of the pseudo-tool an assistant calls to poll
// an AsyncJob started by a tool matched against DispatchOptions.AsyncPatterns.
const CheckJobTool = "check_job"

// DispatchOptions configures a single Dispatch call.
type DispatchOptions struct {
	SessionID                 string
	SupportsParallelToolCalls bool
	PreHook                   PreHook
	PostHook                  PostHook
	HookStrict                bool
	DefaultCommandTimeoutMs   int64
	MaxCommandTimeoutMs       int64
	ToolOutputLimits          map[string]int
	Logger                    *slog.Logger

	// AsyncPatterns lists tool-name patterns (exact or "prefix.*") that
	// run in the background instead of blocking the round. AsyncJobStore must be set when this
	// is non-empty.
	AsyncPatterns []string
	AsyncJobStore AsyncJobStore

	// Metrics records per-tool invocation counts and durations. Nil
	// disables metrics recording.
	Metrics *obs.Metrics

	// Tracer wraps each tool execution in a span. Nil disables tracing.
	Tracer *obs.Tracer

	// AuditLogger records each tool invocation, completion, and denial
	// with the privacy controls (input hashing, field truncation)
	// audit.Config configures. Nil skips these calls; the coarser
	// ToolCallStart/ToolCallEnd events still flow to emitter either way.
	AuditLogger *audit.SessionLogger
}

// Dispatcher validates and runs tool calls against a Registry.
type Dispatcher struct {
	registry *Registry
	emitter  *eventbus.SessionEmitter
}

// NewDispatcher builds a Dispatcher over registry, emitting lifecycle
// events through emitter.
func NewDispatcher(registry *Registry, emitter *eventbus.SessionEmitter) *Dispatcher {
	return &Dispatcher{registry: registry, emitter: emitter}
}

// Dispatch runs every call in calls and returns one ToolResultEntry
// per call, in input order regardless of completion order under
// parallel execution.
func (d *Dispatcher) Dispatch(ctx context.Context, calls []models.ToolCall, opts DispatchOptions) []models.ToolResultEntry {
	results := make([]models.ToolResultEntry, len(calls))

	if opts.SupportsParallelToolCalls && len(calls) > 1 {
		g, gctx := errgroup.WithContext(ctx)
		for i, call := range calls {
			i, call := i, call
			g.Go(func() error {
				results[i] = d.dispatchOne(gctx, call, opts)
				return nil
			})
		}
		_ = g.Wait()
		return results
	}

	for i, call := range calls {
		results[i] = d.dispatchOne(ctx, call, opts)
	}
	return results
}

func (d *Dispatcher) dispatchOne(ctx context.Context, call models.ToolCall, opts DispatchOptions) models.ToolResultEntry {
	if call.Name == CheckJobTool {
		return d.checkJob(ctx, call, opts)
	}

	args := call.EffectiveArguments()

	tool, ok := d.registry.Get(call.Name)
	if !ok {
		if opts.AuditLogger != nil {
			opts.AuditLogger.LogToolDenied(ctx, call.Name, call.ID, "unknown tool", "")
		}
		return models.ToolResultEntry{ToolCallID: call.ID, Content: "Unknown tool: " + call.Name, IsError: true}
	}

	if opts.AsyncJobStore != nil && matchesAny(opts.AsyncPatterns, call.Name) {
		return d.dispatchAsync(ctx, call, tool, args, opts)
	}

	if validator, err := CompileSchema(call.Name, tool.Schema()); err == nil {
		if verr := validator.Validate(args); verr != nil {
			return models.ToolResultEntry{
				ToolCallID: call.ID,
				Content:    "invalid arguments for " + call.Name + ": " + verr.Error(),
				IsError:    true,
			}
		}
	} else if opts.Logger != nil {
		opts.Logger.Warn("tool schema failed to compile", "tool", call.Name, "error", err)
	}

	if opts.PreHook != nil {
		outcome, err := opts.PreHook.Before(ctx, opts.SessionID, call)
		if err != nil {
			if opts.HookStrict {
				return models.ToolResultEntry{ToolCallID: call.ID, Content: "pre-hook error: " + err.Error(), IsError: true}
			}
			if opts.Logger != nil {
				opts.Logger.Warn("pre-hook failed, continuing", "tool", call.Name, "error", err)
			}
		} else {
			switch outcome.Action {
			case PreHookSkip:
				if opts.AuditLogger != nil {
					opts.AuditLogger.LogToolDenied(ctx, call.Name, call.ID, outcome.Message, "pre_hook_skip")
				}
				return models.ToolResultEntry{ToolCallID: call.ID, Content: outcome.Message, IsError: outcome.IsError}
			case PreHookFail:
				if opts.AuditLogger != nil {
					opts.AuditLogger.LogToolDenied(ctx, call.Name, call.ID, outcome.Message, "pre_hook_fail")
				}
				return models.ToolResultEntry{ToolCallID: call.ID, Content: outcome.Message, IsError: true}
			}
		}
	}

	if HasProperty(tool.Schema(), "timeout_ms") {
		args = injectClampedTimeout(args, opts.DefaultCommandTimeoutMs, opts.MaxCommandTimeoutMs)
	}

	argMap := map[string]any{}
	_ = json.Unmarshal(args, &argMap)
	if d.emitter != nil {
		d.emitter.ToolCallStart(call.ID, call.Name, argMap)
	}
	if opts.AuditLogger != nil {
		opts.AuditLogger.LogToolInvocation(ctx, call.Name, call.ID, args)
	}

	spanCtx := ctx
	var span trace.Span
	if opts.Tracer != nil {
		spanCtx, span = opts.Tracer.TraceToolExecution(ctx, call.Name)
	}

	start := time.Now()
	res, err := tool.Execute(spanCtx, args)
	durationMs := time.Since(start).Milliseconds()

	if err != nil {
		res = Result{Content: err.Error(), IsError: true}
	}
	if span != nil {
		if res.IsError {
			opts.Tracer.RecordError(span, fmt.Errorf("%s", res.Content))
		}
		span.End()
	}

	if d.emitter != nil {
		d.emitter.ToolCallEnd(call.ID, call.Name, res.Content, res.IsError, durationMs)
	}
	if opts.AuditLogger != nil {
		opts.AuditLogger.LogToolCompletion(ctx, call.Name, call.ID, !res.IsError, res.Content, time.Duration(durationMs)*time.Millisecond)
	}

	if opts.Metrics != nil {
		status := "success"
		if res.IsError {
			status = "error"
		}
		opts.Metrics.ToolExecutionCounter.WithLabelValues(call.Name, status).Inc()
		opts.Metrics.ToolExecutionDuration.WithLabelValues(call.Name).Observe(time.Since(start).Seconds())
	}

	if opts.PostHook != nil {
		if herr := opts.PostHook.After(ctx, opts.SessionID, call, durationMs, res); herr != nil {
			if opts.HookStrict {
				return models.ToolResultEntry{ToolCallID: call.ID, Content: "post-hook error: " + herr.Error(), IsError: true}
			}
			if opts.Logger != nil {
				opts.Logger.Warn("post-hook failed", "tool", call.Name, "error", herr)
			}
		}
	}

	limit := outputLimitFor(opts.ToolOutputLimits, call.Name)
	return models.ToolResultEntry{ToolCallID: call.ID, Content: truncate(res.Content, limit), IsError: res.IsError}
}

// dispatchAsync starts tool in the background and returns immediately
// with a synthesized result carrying the job id. The assistant polls
// completion with the check_job pseudo-tool.
func (d *Dispatcher) dispatchAsync(ctx context.Context, call models.ToolCall, tool Tool, args json.RawMessage, opts DispatchOptions) models.ToolResultEntry {
	job := &AsyncJob{
		ID:         uuid.NewString(),
		ToolCallID: call.ID,
		Status:     AsyncJobPending,
		StartedAt:  time.Now(),
	}
	if err := opts.AsyncJobStore.Create(ctx, job); err != nil {
		return models.ToolResultEntry{ToolCallID: call.ID, Content: "failed to start background job: " + err.Error(), IsError: true}
	}

	runCtx := context.WithoutCancel(ctx)
	go func() {
		job.Status = AsyncJobRunning
		_ = opts.AsyncJobStore.Update(runCtx, job)

		res, err := tool.Execute(runCtx, args)
		if err != nil {
			res = Result{Content: err.Error(), IsError: true}
		}

		job.Result = &res
		job.FinishedAt = time.Now()
		if res.IsError {
			job.Status = AsyncJobFailed
			job.Error = res.Content
		} else {
			job.Status = AsyncJobSucceeded
		}
		_ = opts.AsyncJobStore.Update(runCtx, job)
	}()

	payload, _ := json.Marshal(map[string]string{
		"job_id": job.ID,
		"status": string(AsyncJobPending),
	})
	return models.ToolResultEntry{ToolCallID: call.ID, Content: string(payload)}
}

// checkJob answers the check_job pseudo-tool by looking up a job id in
// the configured AsyncJobStore.
func (d *Dispatcher) checkJob(ctx context.Context, call models.ToolCall, opts DispatchOptions) models.ToolResultEntry {
	if opts.AsyncJobStore == nil {
		return models.ToolResultEntry{ToolCallID: call.ID, Content: "no background jobs are configured", IsError: true}
	}

	var params struct {
		JobID string `json:"job_id"`
	}
	if err := json.Unmarshal(call.EffectiveArguments(), &params); err != nil || params.JobID == "" {
		return models.ToolResultEntry{ToolCallID: call.ID, Content: "check_job requires a job_id argument", IsError: true}
	}

	job, err := opts.AsyncJobStore.Get(ctx, params.JobID)
	if err != nil {
		return models.ToolResultEntry{ToolCallID: call.ID, Content: err.Error(), IsError: true}
	}

	payload := map[string]any{"job_id": job.ID, "status": string(job.Status)}
	if job.Result != nil {
		payload["result"] = job.Result.Content
		payload["is_error"] = job.Result.IsError
	}
	if job.Error != "" {
		payload["error"] = job.Error
	}
	out, _ := json.Marshal(payload)
	return models.ToolResultEntry{ToolCallID: call.ID, Content: string(out)}
}

// NewCheckJobTool returns a registerable Tool advertising check_job to the
// model. Its Execute is never reached: Dispatcher.dispatchOne intercepts
// calls named CheckJobTool before the registry lookup and answers them
// from the configured AsyncJobStore directly.
func NewCheckJobTool() Tool {
	schema := json.RawMessage(`{
		"type": "object",
		"properties": {
			"job_id": {"type": "string", "description": "id returned by a background tool call"}
		},
		"required": ["job_id"]
	}`)
	return NewFuncTool(CheckJobTool, "Check the status of a background tool call by job id.", schema,
		func(ctx context.Context, args json.RawMessage) (Result, error) {
			return Result{Content: "check_job must be dispatched through Dispatcher", IsError: true}, nil
		})
}

// injectClampedTimeout sets args["timeout_ms"] to
// min(caller_or_default, max), floored at the default.
func injectClampedTimeout(args json.RawMessage, defaultMs, maxMs int64) json.RawMessage {
	m := map[string]any{}
	if len(args) > 0 {
		_ = json.Unmarshal(args, &m)
	}
	if defaultMs <= 0 {
		defaultMs = 30_000
	}
	if maxMs <= 0 {
		maxMs = defaultMs
	}
	requested := defaultMs
	if v, ok := m["timeout_ms"]; ok {
		if f, ok := v.(float64); ok && f > 0 {
			requested = int64(f)
		}
	}
	effective := requested
	if effective > maxMs {
		effective = maxMs
	}
	if effective < defaultMs {
		effective = defaultMs
	}
	m["timeout_ms"] = effective
	out, err := json.Marshal(m)
	if err != nil {
		return args
	}
	return out
}
