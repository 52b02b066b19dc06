package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// captureLogger returns an enabled logger writing into buf. cfg.Output
// is ignored; the buffer is swapped in directly.
func captureLogger(t *testing.T, cfg Config) (*Logger, *bytes.Buffer) {
	t.Helper()
	cfg.Enabled = true
	logger, err := NewLogger(cfg)
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	var buf bytes.Buffer
	logger.out = &buf
	return logger, &buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []Event {
	t.Helper()
	var out []Event
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var ev Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("parse audit line %q: %v", line, err)
		}
		out = append(out, ev)
	}
	return out
}

func TestDisabledLoggerIsInert(t *testing.T) {
	logger, err := NewLogger(Config{Enabled: false})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	defer logger.Close()

	// No output is configured; a write attempt would panic on nil out.
	logger.Log(context.Background(), &Event{Type: EventSessionStart, Level: LevelInfo, Action: "x"})
	logger.ForSession("s1").LogToolDenied(context.Background(), "rm", "c1", "nope", "")
}

func TestLogFillsIdentityAndWritesJSONLine(t *testing.T) {
	logger, buf := captureLogger(t, Config{})

	logger.Log(context.Background(), &Event{
		Type:      EventSessionStart,
		Level:     LevelInfo,
		SessionID: "sess-1",
		Action:    "session_started",
	})

	events := decodeLines(t, buf)
	if len(events) != 1 {
		t.Fatalf("wrote %d lines, want 1", len(events))
	}
	ev := events[0]
	if ev.ID == "" || ev.Timestamp.IsZero() {
		t.Fatalf("id/timestamp not filled: %+v", ev)
	}
	if ev.SessionID != "sess-1" || ev.Type != EventSessionStart {
		t.Fatalf("event = %+v", ev)
	}
}

func TestLogFiltersBelowConfiguredLevel(t *testing.T) {
	logger, buf := captureLogger(t, Config{Level: LevelWarn})

	logger.Log(context.Background(), &Event{Type: EventSessionEvent, Level: LevelInfo, Action: "dropped"})
	logger.Log(context.Background(), &Event{Type: EventAgentError, Level: LevelError, Action: "kept"})

	events := decodeLines(t, buf)
	if len(events) != 1 || events[0].Action != "kept" {
		t.Fatalf("level filter wrote %v", events)
	}
}

func TestToolInvocationHashesInputByDefault(t *testing.T) {
	logger, buf := captureLogger(t, Config{})
	args := json.RawMessage(`{"path":"/etc/passwd"}`)

	logger.ForSession("sess-1").LogToolInvocation(context.Background(), "read_file", "call-1", args)

	ev := decodeLines(t, buf)[0]
	if ev.Details["input"] != nil {
		t.Fatalf("raw input retained without opt-in: %v", ev.Details)
	}
	hash, _ := ev.Details["input_hash"].(string)
	if len(hash) != 16 {
		t.Fatalf("input_hash = %q, want 16 hex chars", hash)
	}
	if strings.Contains(buf.String(), "/etc/passwd") {
		t.Fatalf("input content leaked: %s", buf.String())
	}
}

func TestToolInvocationIncludesAndTruncatesInputWhenConfigured(t *testing.T) {
	logger, buf := captureLogger(t, Config{IncludeToolInput: true, MaxFieldSize: 10})

	logger.ForSession("s").LogToolInvocation(context.Background(), "exec", "c1", json.RawMessage(`{"cmd":"0123456789ABCDEF"}`))

	ev := decodeLines(t, buf)[0]
	input, _ := ev.Details["input"].(string)
	if !strings.HasSuffix(input, "...(truncated)") || len(input) != 10+len("...(truncated)") {
		t.Fatalf("input = %q, want 10 bytes plus truncation marker", input)
	}
}

func TestToolCompletionLevelsAndOutputPolicy(t *testing.T) {
	logger, buf := captureLogger(t, Config{})
	sl := logger.ForSession("sess-1")

	sl.LogToolCompletion(context.Background(), "grep", "c1", true, "twelve bytes", 1500*time.Millisecond)
	sl.LogToolCompletion(context.Background(), "grep", "c2", false, "boom", 10*time.Millisecond)

	events := decodeLines(t, buf)
	ok, failed := events[0], events[1]
	if ok.Level != LevelInfo || failed.Level != LevelWarn {
		t.Fatalf("levels = %s/%s, want info/warn", ok.Level, failed.Level)
	}
	if ok.DurationMs != 1500 {
		t.Fatalf("duration_ms = %d", ok.DurationMs)
	}
	if ok.Details["output"] != nil {
		t.Fatalf("output retained without opt-in: %v", ok.Details)
	}
	if size, _ := ok.Details["output_size"].(float64); int(size) != len("twelve bytes") {
		t.Fatalf("output_size = %v", ok.Details["output_size"])
	}
}

func TestToolCompletionIncludesOutputWhenConfigured(t *testing.T) {
	logger, buf := captureLogger(t, Config{IncludeToolOutput: true})

	logger.ForSession("s").LogToolCompletion(context.Background(), "ls", "c1", true, "a.txt b.txt", time.Millisecond)

	ev := decodeLines(t, buf)[0]
	if ev.Details["output"] != "a.txt b.txt" {
		t.Fatalf("output = %v", ev.Details["output"])
	}
}

func TestToolDenied(t *testing.T) {
	logger, buf := captureLogger(t, Config{})

	logger.ForSession("sess-1").LogToolDenied(context.Background(), "rm_rf", "c1", "not registered", "pre_hook_fail")

	ev := decodeLines(t, buf)[0]
	if ev.Type != EventToolDenied || ev.Level != LevelWarn {
		t.Fatalf("event = %+v", ev)
	}
	if ev.Details["reason"] != "not registered" || ev.Details["rule"] != "pre_hook_fail" {
		t.Fatalf("details = %v", ev.Details)
	}
}

func TestSubagentSpawn(t *testing.T) {
	logger, buf := captureLogger(t, Config{})

	logger.ForSession("parent-1").LogSubagentSpawn(context.Background(), "child-9", "summarize the diff", 2)

	ev := decodeLines(t, buf)[0]
	if ev.Type != EventAgentSpawn || ev.SessionID != "parent-1" || ev.SubagentID != "child-9" {
		t.Fatalf("event = %+v", ev)
	}
	if depth, _ := ev.Details["depth"].(float64); int(depth) != 2 {
		t.Fatalf("depth = %v", ev.Details["depth"])
	}
	if ev.Details["task"] != nil {
		t.Fatalf("task text retained without opt-in: %v", ev.Details)
	}
}

func TestSessionCompact(t *testing.T) {
	logger, buf := captureLogger(t, Config{})

	logger.ForSession("sess-1").LogSessionCompact(context.Background(), "sess-1", 40, 7, 0, "summarize_in_stages")

	ev := decodeLines(t, buf)[0]
	if ev.Type != EventSessionCompact {
		t.Fatalf("type = %s", ev.Type)
	}
	if before, _ := ev.Details["turns_before"].(float64); int(before) != 40 {
		t.Fatalf("turns_before = %v", ev.Details["turns_before"])
	}
	if _, present := ev.Details["tokens_saved"]; present {
		t.Fatalf("tokens_saved=0 should be omitted: %v", ev.Details)
	}
}

func TestLogError(t *testing.T) {
	logger, buf := captureLogger(t, Config{})

	logger.ForSession("sess-1").LogError(context.Background(), EventSessionCompact, "compaction_failed", "provider 500", nil)

	ev := decodeLines(t, buf)[0]
	if ev.Level != LevelError || ev.Error != "provider 500" || ev.Action != "compaction_failed" {
		t.Fatalf("event = %+v", ev)
	}
}

func TestTextFormat(t *testing.T) {
	logger, buf := captureLogger(t, Config{Format: FormatText})

	logger.ForSession("sess-1").LogToolDenied(context.Background(), "rm", "c1", "blocked", "")

	line := strings.TrimSpace(buf.String())
	if strings.Count(line, "\n") != 0 {
		t.Fatalf("text format wrote multiple lines: %q", line)
	}
	for _, want := range []string{string(EventToolDenied), "action=tool_denied", `session_id="sess-1"`, "reason=blocked"} {
		if !strings.Contains(line, want) {
			t.Fatalf("text line missing %q: %s", want, line)
		}
	}
}

func TestFileOutputAndClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trail.log")
	logger, err := NewLogger(Config{Enabled: true, Output: "file:" + path})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	logger.ForSession("s").LogToolDenied(context.Background(), "x", "c", "r", "")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	// A write after Close is dropped, not a panic on a closed file.
	logger.ForSession("s").LogToolDenied(context.Background(), "y", "c2", "r", "")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read trail: %v", err)
	}
	if n := strings.Count(strings.TrimSpace(string(data)), "\n") + 1; n != 1 {
		t.Fatalf("trail has %d lines, want 1", n)
	}
}

func TestUnsupportedOutputRejected(t *testing.T) {
	if _, err := NewLogger(Config{Enabled: true, Output: "syslog:"}); err == nil {
		t.Fatal("unsupported output accepted")
	}
}
