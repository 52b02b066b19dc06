package obs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func captureLogger(cfg LogConfig) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	cfg.Output = &buf
	return NewLogger(cfg), &buf
}

func lastRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var record map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &record); err != nil {
		t.Fatalf("parse log line %q: %v", lines[len(lines)-1], err)
	}
	return record
}

func TestLoggerLevelFiltering(t *testing.T) {
	logger, buf := captureLogger(LogConfig{Level: "warn"})
	ctx := context.Background()

	logger.Info(ctx, "dropped")
	logger.Warn(ctx, "kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Fatalf("info record leaked through warn level: %s", out)
	}
	if !strings.Contains(out, "kept") {
		t.Fatalf("warn record missing: %s", out)
	}
}

func TestLoggerTextFormat(t *testing.T) {
	logger, buf := captureLogger(LogConfig{Format: "text"})
	logger.Info(context.Background(), "hello", "k", "v")

	out := buf.String()
	if !strings.Contains(out, "msg=hello") || !strings.Contains(out, "k=v") {
		t.Fatalf("text output = %s", out)
	}
}

func TestLoggerIncludesCorrelationIDs(t *testing.T) {
	logger, buf := captureLogger(LogConfig{})
	ctx := AddSessionID(context.Background(), "sess-1")
	ctx = AddRunID(ctx, "run-1")
	ctx = AddToolCallID(ctx, "call-1")

	logger.Info(ctx, "round started")

	record := lastRecord(t, buf)
	if record["session_id"] != "sess-1" || record["run_id"] != "run-1" || record["tool_call_id"] != "call-1" {
		t.Fatalf("correlation ids missing: %v", record)
	}
}

func TestLoggerWithFields(t *testing.T) {
	logger, buf := captureLogger(LogConfig{})
	logger.WithFields("component", "session").Info(context.Background(), "x")

	record := lastRecord(t, buf)
	if record["component"] != "session" {
		t.Fatalf("component field missing: %v", record)
	}
}

func TestRedactsAnthropicKey(t *testing.T) {
	logger, buf := captureLogger(LogConfig{})
	key := "sk-ant-" + strings.Repeat("a", 96)

	logger.Info(context.Background(), "provider call failed", "detail", "key "+key+" rejected")

	if strings.Contains(buf.String(), key) {
		t.Fatalf("anthropic key leaked: %s", buf.String())
	}
	if !strings.Contains(buf.String(), redactedPlaceholder) {
		t.Fatalf("no redaction marker: %s", buf.String())
	}
}

func TestRedactsKeyValueSecrets(t *testing.T) {
	logger, buf := captureLogger(LogConfig{})
	logger.Info(context.Background(), "config loaded", "raw", `password = "hunter2-extra"`)
	if strings.Contains(buf.String(), "hunter2-extra") {
		t.Fatalf("password leaked: %s", buf.String())
	}
}

func TestRedactsJWT(t *testing.T) {
	logger, buf := captureLogger(LogConfig{})
	jwt := "eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiIxMjM0In0.abc123def"
	logger.Error(context.Background(), "auth failed", "error", errors.New("token "+jwt+" expired"))
	if strings.Contains(buf.String(), jwt) {
		t.Fatalf("jwt leaked: %s", buf.String())
	}
}

func TestRedactsSensitiveMapKeys(t *testing.T) {
	logger, buf := captureLogger(LogConfig{})
	logger.Info(context.Background(), "tool arguments", "args", map[string]any{
		"path":    "/tmp/x",
		"api_key": "super-secret-value",
	})

	out := buf.String()
	if strings.Contains(out, "super-secret-value") {
		t.Fatalf("api_key value leaked: %s", out)
	}
	if !strings.Contains(out, "/tmp/x") {
		t.Fatalf("benign value dropped: %s", out)
	}
}

func TestRedactsCustomPattern(t *testing.T) {
	logger, buf := captureLogger(LogConfig{RedactPatterns: []string{`forge-cred-\d+`}})
	logger.Info(context.Background(), "loaded forge-cred-12345")
	if strings.Contains(buf.String(), "forge-cred-12345") {
		t.Fatalf("custom pattern not applied: %s", buf.String())
	}
}

func TestLogLevelFromString(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := LogLevelFromString(tt.in); got != tt.want {
			t.Fatalf("LogLevelFromString(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestContextIDAccessors(t *testing.T) {
	ctx := context.Background()
	if GetSessionID(ctx) != "" || GetRunID(ctx) != "" || GetToolCallID(ctx) != "" || GetSubagentID(ctx) != "" {
		t.Fatal("empty context must yield empty ids")
	}

	ctx = AddSubagentID(AddSessionID(ctx, "s"), "sub")
	if GetSessionID(ctx) != "s" || GetSubagentID(ctx) != "sub" {
		t.Fatalf("accessors returned %q/%q", GetSessionID(ctx), GetSubagentID(ctx))
	}
}

func TestSlogExposesUnderlyingLogger(t *testing.T) {
	logger, buf := captureLogger(LogConfig{})
	logger.Slog().Info("direct")
	if !strings.Contains(buf.String(), "direct") {
		t.Fatalf("Slog() output missing: %s", buf.String())
	}
}

func TestRedactsStructuredArgument(t *testing.T) {
	logger, buf := captureLogger(LogConfig{})
	type payload struct {
		Token string `json:"token"`
	}
	logger.Info(context.Background(), "request", "payload", payload{Token: "bearer abcdefgh12345678"})
	if strings.Contains(buf.String(), "abcdefgh12345678") {
		t.Fatalf("struct token leaked: %s", buf.String())
	}
}

func TestNonStringScalarsPassThrough(t *testing.T) {
	logger, buf := captureLogger(LogConfig{})
	logger.Info(context.Background(), "usage", "tokens", 1234)

	record := lastRecord(t, buf)
	if record["tokens"] != float64(1234) {
		t.Fatalf("tokens = %v (%T), want number", record["tokens"], record["tokens"])
	}
}
