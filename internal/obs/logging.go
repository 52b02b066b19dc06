package obs

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// ContextKey is the type for the correlation ids obs carries through a
// context.Context.
type ContextKey string

const (
	// SessionIDKey correlates log records with a Session Engine session.
	SessionIDKey ContextKey = "session_id"

	// RunIDKey correlates log records with a Pipeline Runner run.
	RunIDKey ContextKey = "run_id"

	// ToolCallIDKey correlates log records with a single tool dispatch.
	ToolCallIDKey ContextKey = "tool_call_id"

	// SubagentIDKey correlates log records with a spawned sub-agent.
	SubagentIDKey ContextKey = "subagent_id"
)

// AddSessionID stamps a session id onto the context.
func AddSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, SessionIDKey, id)
}

// GetSessionID reads the session id stamped by AddSessionID, or "".
func GetSessionID(ctx context.Context) string { return ctxString(ctx, SessionIDKey) }

// AddRunID stamps a pipeline run id onto the context.
func AddRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RunIDKey, id)
}

// GetRunID reads the run id stamped by AddRunID, or "".
func GetRunID(ctx context.Context) string { return ctxString(ctx, RunIDKey) }

// AddToolCallID stamps a tool call id onto the context.
func AddToolCallID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ToolCallIDKey, id)
}

// GetToolCallID reads the tool call id stamped by AddToolCallID, or "".
func GetToolCallID(ctx context.Context) string { return ctxString(ctx, ToolCallIDKey) }

// AddSubagentID stamps a sub-agent id onto the context.
func AddSubagentID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, SubagentIDKey, id)
}

// GetSubagentID reads the sub-agent id stamped by AddSubagentID, or "".
func GetSubagentID(ctx context.Context) string { return ctxString(ctx, SubagentIDKey) }

// correlationKeys lists the ids log records pick up automatically.
var correlationKeys = []ContextKey{SessionIDKey, RunIDKey, ToolCallIDKey, SubagentIDKey}

func ctxString(ctx context.Context, key ContextKey) string {
	v, _ := ctx.Value(key).(string)
	return v
}

// LogConfig configures a Logger.
type LogConfig struct {
	// Level is the minimum level: "debug", "info", "warn", "error".
	// Unrecognized values fall back to "info".
	Level string

	// Format is "json" (default) or "text".
	Format string

	// Output defaults to os.Stdout.
	Output io.Writer

	// AddSource includes the file:line of the log call site.
	AddSource bool

	// RedactPatterns adds regexes on top of the built-in secret
	// patterns; invalid patterns are ignored.
	RedactPatterns []string
}

// Logger is a slog-backed structured logger that redacts secrets and
// folds the obs correlation ids out of the context into every record.
type Logger struct {
	logger  *slog.Logger
	redacts []*regexp.Regexp
}

// builtinRedactPatterns match the secret shapes Forge is likely to see
// in tool output and provider errors.
var builtinRedactPatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-ant-[a-zA-Z0-9_-]{95,}`),
	regexp.MustCompile(`sk-[a-zA-Z0-9]{48,}`),
	regexp.MustCompile(`eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`),
	regexp.MustCompile(`(?i)(api[_-]?key|apikey|bearer|token|secret|password|passwd)[\s:=]+["']?[^\s"']{8,}["']?`),
}

// sensitiveFieldNames are map keys whose values are always replaced,
// regardless of what the value looks like.
var sensitiveFieldNames = map[string]bool{
	"password": true, "passwd": true, "secret": true, "token": true,
	"api_key": true, "apikey": true, "private_key": true,
	"auth": true, "authorization": true,
}

const redactedPlaceholder = "[REDACTED]"

// NewLogger builds a Logger from cfg.
func NewLogger(cfg LogConfig) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level:     LogLevelFromString(cfg.Level),
		AddSource: cfg.AddSource,
	}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	redacts := make([]*regexp.Regexp, 0, len(builtinRedactPatterns)+len(cfg.RedactPatterns))
	redacts = append(redacts, builtinRedactPatterns...)
	for _, pattern := range cfg.RedactPatterns {
		if re, err := regexp.Compile(pattern); err == nil {
			redacts = append(redacts, re)
		}
	}

	return &Logger{logger: slog.New(handler), redacts: redacts}
}

// LogLevelFromString maps a level name to slog.Level, defaulting to info.
func LogLevelFromString(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Slog returns the underlying *slog.Logger, for components that take a
// plain slog.Logger dependency (internal/session.Deps.Logger,
// internal/attractor.Deps.Logger) rather than this wrapper.
func (l *Logger) Slog() *slog.Logger { return l.logger }

// WithFields returns a Logger with args attached to every record.
func (l *Logger) WithFields(args ...any) *Logger {
	return &Logger{logger: l.logger.With(args...), redacts: l.redacts}
}

// Debug logs at debug level.
func (l *Logger) Debug(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelDebug, msg, args...)
}

// Info logs at info level.
func (l *Logger) Info(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelInfo, msg, args...)
}

// Warn logs at warn level.
func (l *Logger) Warn(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelWarn, msg, args...)
}

// Error logs at error level.
func (l *Logger) Error(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelError, msg, args...)
}

func (l *Logger) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	attrs := make([]any, 0, len(args)+2*len(correlationKeys))
	for _, key := range correlationKeys {
		if v := ctxString(ctx, key); v != "" {
			attrs = append(attrs, string(key), v)
		}
	}
	for _, arg := range args {
		attrs = append(attrs, l.redactValue(arg))
	}
	l.logger.Log(ctx, level, l.redactString(msg), attrs...)
}

func (l *Logger) redactValue(v any) any {
	switch val := v.(type) {
	case string:
		return l.redactString(val)
	case error:
		return l.redactString(val.Error())
	case []byte:
		return l.redactString(string(val))
	case map[string]any:
		return l.redactMap(val)
	case map[string]string:
		m := make(map[string]any, len(val))
		for k, s := range val {
			m[k] = s
		}
		return l.redactMap(m)
	default:
		if b, err := json.Marshal(v); err == nil && strings.ContainsAny(string(b), "{[\"") {
			return l.redactString(string(b))
		}
		return v
	}
}

func (l *Logger) redactString(s string) string {
	for _, re := range l.redacts {
		s = re.ReplaceAllString(s, redactedPlaceholder)
	}
	return s
}

func (l *Logger) redactMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if sensitiveFieldNames[strings.ToLower(strings.ReplaceAll(k, "-", "_"))] {
			out[k] = redactedPlaceholder
			continue
		}
		out[k] = l.redactValue(v)
	}
	return out
}
