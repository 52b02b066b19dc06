package audit

import (
	"context"

	"github.com/forgehq/forge/internal/eventbus"
)

// BridgeFromBus subscribes to bus and forwards every Event Bus event
// to logger as an audit Event, translating the closed Event Bus kind
// alphabet into the audit package's own EventType/Level
// vocabulary. It runs until ctx is cancelled, at which point it
// unsubscribes and returns. Call it in its own goroutine.
func BridgeFromBus(ctx context.Context, logger *Logger, bus eventbus.Emitter) {
	if logger == nil || bus == nil {
		return
	}
	events, cancel := bus.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			logger.Log(ctx, translateBusEvent(ev))
		}
	}
}

func translateBusEvent(ev eventbus.Event) *Event {
	out := &Event{
		Type:      busKindToEventType(ev.Kind),
		Level:     busKindToLevel(ev.Kind, ev.Data),
		Timestamp: ev.Timestamp,
		SessionID: ev.SessionID,
		Action:    ev.Kind.String(),
		Details:   ev.Data,
	}

	if toolName, ok := ev.Data["tool_name"].(string); ok {
		out.ToolName = toolName
	}
	if callID, ok := ev.Data["call_id"].(string); ok {
		out.ToolCallID = callID
	}
	if msg, ok := ev.Data["message"].(string); ok && ev.Kind == eventbus.Error {
		out.Error = msg
	}
	return out
}

func busKindToEventType(kind eventbus.Kind) EventType {
	switch kind {
	case eventbus.ToolCallStart:
		return EventToolInvocation
	case eventbus.ToolCallEnd:
		return EventToolCompletion
	case eventbus.Error:
		return EventAgentError
	case eventbus.SessionStart:
		return EventSessionStart
	case eventbus.SessionEnd:
		return EventSessionEnd
	default:
		return EventSessionEvent
	}
}

func busKindToLevel(kind eventbus.Kind, data map[string]any) Level {
	switch kind {
	case eventbus.Error:
		return LevelError
	case eventbus.Warning:
		return LevelWarn
	case eventbus.ToolCallEnd:
		if isError, ok := data["is_error"].(bool); ok && isError {
			return LevelError
		}
	}
	return LevelInfo
}
