// Package audit writes an operator-facing trail of what a session did:
// tool invocations and completions, denied calls, sub-agent spawns,
// compactions, and errors. It is separate from the Event Bus (which
// feeds live subscribers) and from lineage (which is the durable
// record); the audit log is a flat line-per-event file an operator can
// grep, with privacy controls over what tool payloads it retains.
package audit

import "time"

// EventType categorizes audit events. The set is exactly what Forge
// emits; there is no reserved space for event types nothing produces.
type EventType string

const (
	EventToolInvocation EventType = "tool.invocation"
	EventToolCompletion EventType = "tool.completion"
	EventToolDenied     EventType = "tool.denied"

	EventAgentSpawn EventType = "agent.spawn"
	EventAgentError EventType = "agent.error"

	EventSessionStart   EventType = "session.start"
	EventSessionEnd     EventType = "session.end"
	EventSessionCompact EventType = "session.compact"

	// EventSessionEvent is the catch-all the Event Bus bridge uses for
	// bus kinds with no dedicated audit type (text deltas, steering,
	// limits).
	EventSessionEvent EventType = "session.event"
)

// Level is the audit severity.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

var levelRank = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// Event is one audit log line.
type Event struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Level      Level          `json:"level"`
	Timestamp  time.Time      `json:"timestamp"`
	SessionID  string         `json:"session_id,omitempty"`
	SubagentID string         `json:"subagent_id,omitempty"`
	ToolName   string         `json:"tool_name,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Action     string         `json:"action"`
	Details    map[string]any `json:"details,omitempty"`
	DurationMs int64          `json:"duration_ms,omitempty"`
	Error      string         `json:"error,omitempty"`
	TraceID    string         `json:"trace_id,omitempty"`
	SpanID     string         `json:"span_id,omitempty"`
}

// OutputFormat selects the on-disk encoding.
type OutputFormat string

const (
	FormatJSON OutputFormat = "json"
	FormatText OutputFormat = "text"
)

// Config configures the audit logger.
type Config struct {
	// Enabled turns the trail on; a disabled logger is inert.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Level is the minimum severity written.
	Level Level `json:"level" yaml:"level"`

	// Format is "json" (default) or "text".
	Format OutputFormat `json:"format" yaml:"format"`

	// Output is "stdout", "stderr", or "file:/path/to/file.log".
	Output string `json:"output" yaml:"output"`

	// IncludeToolInput writes tool arguments verbatim (truncated to
	// MaxFieldSize). Off, only a hash of the arguments is kept, so the
	// trail can still correlate identical calls without retaining
	// their content.
	IncludeToolInput bool `json:"include_tool_input" yaml:"include_tool_input"`

	// IncludeToolOutput writes tool output (truncated); off, only its
	// size.
	IncludeToolOutput bool `json:"include_tool_output" yaml:"include_tool_output"`

	// MaxFieldSize bounds any retained payload field, in bytes.
	MaxFieldSize int `json:"max_field_size" yaml:"max_field_size"`
}

// DefaultConfig returns the off-by-default, privacy-first configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:           false,
		Level:             LevelInfo,
		Format:            FormatJSON,
		Output:            "stdout",
		IncludeToolInput:  false,
		IncludeToolOutput: false,
		MaxFieldSize:      1024,
	}
}
