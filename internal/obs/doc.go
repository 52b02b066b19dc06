// Package obs wires the observability surface Forge's long-lived
// components report through: Prometheus metrics, redacting structured
// logging over slog, OpenTelemetry tracing, and a low-overhead
// diagnostic event channel with an in-memory timeline.
//
// Metrics (metrics.go) cover LLM request latency and token usage, tool
// execution, lineage store query latency, error rates, session counts,
// and Pipeline Runner stage attempts. NewMetrics registers every
// collector with the default Prometheus registry; the "serve" command
// exposes them on /metrics.
//
// Logging (logging.go) builds on log/slog. The Logger redacts secret
// shapes (provider API keys, JWTs, password-like key/value text)
// before a record is written, and folds the correlation ids stamped on
// the context (session_id, run_id, tool_call_id, subagent_id) into
// every record:
//
//	logger := obs.NewLogger(obs.LogConfig{Level: "info"})
//	ctx = obs.AddSessionID(ctx, sessionID)
//	logger.Info(ctx, "dispatching tool call", "tool_name", call.Name)
//
// Tracing (tracing.go) exports OTLP spans when an endpoint is
// configured and degrades to non-recording spans when not, so the
// Session Engine, Tool Dispatcher, and Pipeline Runner call
// TraceLLMRequest / TraceToolExecution / TraceStageExecution
// unconditionally. GetTraceID/GetSpanID feed the audit log's
// correlation fields.
//
// Diagnostics (diagnostic.go, events.go) are a process-wide,
// off-by-default emitter of small typed events (model usage, session
// state changes, stuck sessions, stage attempts). A Timeline keeps a
// bounded window of them and serves it on /debug/timeline.
package obs
