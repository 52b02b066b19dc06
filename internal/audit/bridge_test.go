package audit

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/forgehq/forge/internal/eventbus"
)

func TestBridgeFromBusForwardsEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	logger, err := NewLogger(Config{Enabled: true, Level: LevelInfo, Format: FormatJSON, Output: "file:" + path})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	defer logger.Close()

	bus := eventbus.NewBufferedEmitter(16)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		BridgeFromBus(ctx, logger, bus)
		close(done)
	}()

	emitter := eventbus.NewSessionEmitter("sess-1", bus)
	emitter.ToolCallStart("call-1", "read_file", map[string]any{"path": "a.txt"})
	emitter.ToolCallEnd("call-1", "read_file", "ok", false, 5)

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("BridgeFromBus did not return after cancel")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read audit log: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, string(EventToolInvocation)) || !strings.Contains(out, string(EventToolCompletion)) {
		t.Fatalf("bridge did not translate bus events: %s", out)
	}
	if !strings.Contains(out, `"session_id":"sess-1"`) {
		t.Fatalf("session id missing from bridged events: %s", out)
	}
}

func TestTranslateBusEventLevels(t *testing.T) {
	failedToolEnd := eventbus.Event{
		Kind: eventbus.ToolCallEnd,
		Data: map[string]any{"is_error": true, "tool_name": "grep", "call_id": "c9"},
	}
	ev := translateBusEvent(failedToolEnd)
	if ev.Level != LevelError {
		t.Fatalf("failed tool end level = %s, want error", ev.Level)
	}
	if ev.ToolName != "grep" || ev.ToolCallID != "c9" {
		t.Fatalf("tool fields not lifted: %+v", ev)
	}

	errEvent := translateBusEvent(eventbus.Event{
		Kind: eventbus.Error,
		Data: map[string]any{"message": "provider down"},
	})
	if errEvent.Type != EventAgentError || errEvent.Error != "provider down" {
		t.Fatalf("error event = %+v", errEvent)
	}

	other := translateBusEvent(eventbus.Event{Kind: eventbus.SteeringInjected, Data: map[string]any{}})
	if other.Type != EventSessionEvent {
		t.Fatalf("fallback type = %s, want %s", other.Type, EventSessionEvent)
	}
}
