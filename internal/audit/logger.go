package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/forgehq/forge/internal/obs"
)

// Logger appends audit Events to one output, one line per event.
// Writes are synchronous under a mutex: Forge produces a handful of
// audit events per tool round, so a flush-on-write trail that survives
// a crash is worth more than write batching.
type Logger struct {
	cfg    Config
	mu     sync.Mutex
	out    io.Writer
	closer io.Closer // non-nil only for file outputs
	closed bool
}

// NewLogger opens cfg.Output and returns a ready Logger. A disabled
// config yields an inert logger whose methods are all no-ops.
func NewLogger(cfg Config) (*Logger, error) {
	if !cfg.Enabled {
		return &Logger{cfg: cfg}, nil
	}
	if cfg.Level == "" {
		cfg.Level = LevelInfo
	}
	if cfg.MaxFieldSize <= 0 {
		cfg.MaxFieldSize = 1024
	}

	l := &Logger{cfg: cfg}
	switch {
	case cfg.Output == "" || cfg.Output == "stdout":
		l.out = os.Stdout
	case cfg.Output == "stderr":
		l.out = os.Stderr
	case strings.HasPrefix(cfg.Output, "file:"):
		f, err := os.OpenFile(strings.TrimPrefix(cfg.Output, "file:"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		l.out = f
		l.closer = f
	default:
		return nil, fmt.Errorf("audit output: unsupported destination %q", cfg.Output)
	}
	return l, nil
}

// Close closes a file-backed output. Safe on a disabled logger and
// idempotent.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || l.closer == nil {
		l.closed = true
		return nil
	}
	l.closed = true
	return l.closer.Close()
}

// Log writes event if the logger is enabled and the event's level
// clears the configured floor. ID, timestamp, and trace correlation
// are filled in when absent.
func (l *Logger) Log(ctx context.Context, event *Event) {
	if !l.cfg.Enabled || event == nil {
		return
	}
	if levelRank[event.Level] < levelRank[l.cfg.Level] {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.TraceID == "" {
		event.TraceID = obs.GetTraceID(ctx)
	}
	if event.SpanID == "" {
		event.SpanID = obs.GetSpanID(ctx)
	}

	var line []byte
	if l.cfg.Format == FormatText {
		line = formatText(event)
	} else {
		line, _ = json.Marshal(event)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.out.Write(append(line, '\n'))
}

// formatText renders one grep-friendly line: timestamp, level, type,
// action, then the identifying fields and sorted details as key=value.
func formatText(e *Event) []byte {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s %s action=%s", e.Timestamp.Format(time.RFC3339), e.Level, e.Type, e.Action)
	for _, kv := range [][2]string{
		{"session_id", e.SessionID},
		{"subagent_id", e.SubagentID},
		{"tool_name", e.ToolName},
		{"tool_call_id", e.ToolCallID},
		{"error", e.Error},
	} {
		if kv[1] != "" {
			fmt.Fprintf(&sb, " %s=%q", kv[0], kv[1])
		}
	}
	if e.DurationMs > 0 {
		fmt.Fprintf(&sb, " duration_ms=%d", e.DurationMs)
	}
	keys := make([]string, 0, len(e.Details))
	for k := range e.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%v", k, e.Details[k])
	}
	return []byte(sb.String())
}

// retainPayload applies the privacy policy to one payload field:
// included and truncated when allowed, a short content hash otherwise.
func (l *Logger) retainPayload(details map[string]any, key string, payload string, include bool) {
	if payload == "" {
		return
	}
	if include {
		if len(payload) > l.cfg.MaxFieldSize {
			payload = payload[:l.cfg.MaxFieldSize] + "...(truncated)"
		}
		details[key] = payload
		return
	}
	sum := sha256.Sum256([]byte(payload))
	details[key+"_hash"] = hex.EncodeToString(sum[:])[:16]
}

// ForSession binds a session id, giving the Session Engine and Tool
// Dispatcher a logger they can call without threading the id through
// every site.
func (l *Logger) ForSession(sessionID string) *SessionLogger {
	return &SessionLogger{logger: l, sessionID: sessionID}
}

// SessionLogger is a Logger with the owning session's id pre-bound.
// A nil-deps caller never constructs one, so methods assume l is valid.
type SessionLogger struct {
	logger    *Logger
	sessionID string
}

// LogToolInvocation records a tool call being dispatched. Arguments
// are retained verbatim only when the config allows; otherwise a hash.
func (s *SessionLogger) LogToolInvocation(ctx context.Context, toolName, toolCallID string, args json.RawMessage) {
	details := map[string]any{}
	s.logger.retainPayload(details, "input", string(args), s.logger.cfg.IncludeToolInput)
	s.logger.Log(ctx, &Event{
		Type:       EventToolInvocation,
		Level:      LevelInfo,
		SessionID:  s.sessionID,
		ToolName:   toolName,
		ToolCallID: toolCallID,
		Action:     "tool_invoked",
		Details:    details,
	})
}

// LogToolCompletion records a finished tool call. Failures log at warn.
func (s *SessionLogger) LogToolCompletion(ctx context.Context, toolName, toolCallID string, success bool, output string, duration time.Duration) {
	level := LevelInfo
	if !success {
		level = LevelWarn
	}
	details := map[string]any{"success": success}
	if s.logger.cfg.IncludeToolOutput {
		s.logger.retainPayload(details, "output", output, true)
	} else if output != "" {
		details["output_size"] = len(output)
	}
	s.logger.Log(ctx, &Event{
		Type:       EventToolCompletion,
		Level:      level,
		SessionID:  s.sessionID,
		ToolName:   toolName,
		ToolCallID: toolCallID,
		Action:     "tool_completed",
		Details:    details,
		DurationMs: duration.Milliseconds(),
	})
}

// LogToolDenied records a call that never executed: unknown tool, or a
// pre-hook that skipped or failed it. rule names what stopped it.
func (s *SessionLogger) LogToolDenied(ctx context.Context, toolName, toolCallID, reason, rule string) {
	details := map[string]any{"reason": reason}
	if rule != "" {
		details["rule"] = rule
	}
	s.logger.Log(ctx, &Event{
		Type:       EventToolDenied,
		Level:      LevelWarn,
		SessionID:  s.sessionID,
		ToolName:   toolName,
		ToolCallID: toolCallID,
		Action:     "tool_denied",
		Details:    details,
	})
}

// LogSubagentSpawn records a child session being spawned at depth with
// the given task. Task text honors the tool-input privacy policy.
func (s *SessionLogger) LogSubagentSpawn(ctx context.Context, subagentID, task string, depth int) {
	details := map[string]any{"depth": depth}
	s.logger.retainPayload(details, "task", task, s.logger.cfg.IncludeToolInput)
	s.logger.Log(ctx, &Event{
		Type:       EventAgentSpawn,
		Level:      LevelInfo,
		SessionID:  s.sessionID,
		SubagentID: subagentID,
		Action:     "subagent_spawned",
		Details:    details,
	})
}

// LogSessionCompact records a history compaction pass.
func (s *SessionLogger) LogSessionCompact(ctx context.Context, sessionID string, before, after, tokensSaved int, strategy string) {
	details := map[string]any{
		"turns_before": before,
		"turns_after":  after,
		"strategy":     strategy,
	}
	if tokensSaved > 0 {
		details["tokens_saved"] = tokensSaved
	}
	s.logger.Log(ctx, &Event{
		Type:      EventSessionCompact,
		Level:     LevelInfo,
		SessionID: sessionID,
		Action:    "session_compacted",
		Details:   details,
	})
}

// LogError records a failure under the given event type.
func (s *SessionLogger) LogError(ctx context.Context, eventType EventType, action, errMsg string, details map[string]any) {
	s.logger.Log(ctx, &Event{
		Type:      eventType,
		Level:     LevelError,
		SessionID: s.sessionID,
		Action:    action,
		Error:     errMsg,
		Details:   details,
	})
}
