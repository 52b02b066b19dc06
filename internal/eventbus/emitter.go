package eventbus

import "time"

// SessionEmitter wraps an Emitter with the session_id already bound
// and exposes one typed method per event kind.
type SessionEmitter struct {
	sessionID string
	bus       Emitter
}

// NewSessionEmitter binds sessionID to bus. If bus is nil, events are
// discarded via NoopEmitter.
func NewSessionEmitter(sessionID string, bus Emitter) *SessionEmitter {
	if bus == nil {
		bus = NoopEmitter{}
	}
	return &SessionEmitter{sessionID: sessionID, bus: bus}
}

func (e *SessionEmitter) emit(kind Kind, data map[string]any) Event {
	ev := newEvent(e.sessionID, kind, data)
	e.bus.Emit(ev)
	return ev
}

func (e *SessionEmitter) SessionStart() Event { return e.emit(SessionStart, nil) }

func (e *SessionEmitter) SessionEnd(finalState string) Event {
	return e.emit(SessionEnd, map[string]any{"final_state": finalState})
}

func (e *SessionEmitter) UserInput(content string) Event {
	return e.emit(UserInput, map[string]any{"content": content})
}

func (e *SessionEmitter) AssistantTextStart() Event { return e.emit(AssistantTextStart, nil) }

func (e *SessionEmitter) AssistantTextDelta(delta string) Event {
	return e.emit(AssistantTextDelta, map[string]any{"delta": delta})
}

func (e *SessionEmitter) AssistantTextEnd() Event { return e.emit(AssistantTextEnd, nil) }

func (e *SessionEmitter) ToolCallStart(callID, toolName string, arguments map[string]any) Event {
	return e.emit(ToolCallStart, map[string]any{
		"call_id": callID, "tool_name": toolName, "arguments": arguments,
	})
}

func (e *SessionEmitter) ToolCallOutputDelta(callID, toolName, chunk string) Event {
	return e.emit(ToolCallOutputDelta, map[string]any{
		"call_id": callID, "tool_name": toolName, "chunk": chunk,
	})
}

func (e *SessionEmitter) ToolCallEnd(callID, toolName, output string, isError bool, durationMs int64) Event {
	data := map[string]any{
		"call_id": callID, "tool_name": toolName, "duration_ms": durationMs, "is_error": isError,
	}
	if isError {
		data["error"] = output
	} else {
		data["output"] = output
	}
	return e.emit(ToolCallEnd, data)
}

func (e *SessionEmitter) SteeringInjected(content string) Event {
	return e.emit(SteeringInjected, map[string]any{"content": content})
}

func (e *SessionEmitter) TurnLimit(limit int) Event {
	return e.emit(TurnLimit, map[string]any{"limit": limit})
}

func (e *SessionEmitter) LoopDetection(signature string, windowSize int) Event {
	return e.emit(LoopDetection, map[string]any{"signature": signature, "window_size": windowSize})
}

func (e *SessionEmitter) Warning(severity, category string, fields map[string]any) Event {
	data := map[string]any{"severity": severity, "category": category}
	for k, v := range fields {
		data[k] = v
	}
	return e.emit(Warning, data)
}

func (e *SessionEmitter) Error(message string) Event {
	return e.emit(Error, map[string]any{"message": message, "timestamp": time.Now()})
}
