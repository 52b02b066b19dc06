// Package models defines the core data types shared across the session
// engine, pipeline runner, and lineage store: transcript turns, tool
// calls, session configuration, and checkpoints.
package models

import (
	"encoding/json"
	"time"
)

// TurnKind discriminates the variants of a transcript Turn.
type TurnKind string

const (
	TurnUser        TurnKind = "user"
	TurnAssistant   TurnKind = "assistant"
	TurnToolResults TurnKind = "tool_results"
	TurnSystem      TurnKind = "system"
	TurnSteering    TurnKind = "steering"
)

// ToolCall is one tool invocation requested by the assistant.
//
// RawArguments, if present, is the source-of-truth JSON text for
// Arguments and must be parsed by consumers; Arguments is used verbatim
// only when RawArguments is empty.
type ToolCall struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Arguments    json.RawMessage `json:"arguments"`
	RawArguments string          `json:"raw_arguments,omitempty"`
}

// EffectiveArguments returns RawArguments as raw JSON bytes when
// present (the text is not parsed or validated here), falling back to
// Arguments verbatim.
func (c ToolCall) EffectiveArguments() json.RawMessage {
	if c.RawArguments != "" {
		return json.RawMessage(c.RawArguments)
	}
	return c.Arguments
}

// ToolResultEntry is one answer within a ToolResults turn.
type ToolResultEntry struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error"`
}

// Usage carries provider-reported token accounting for an Assistant turn.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Turn is one transcript entry. Only the fields relevant to Kind are
// populated: one struct with optional payloads stands in for the sum
// type Go doesn't have.
type Turn struct {
	Kind      TurnKind  `json:"kind"`
	Timestamp time.Time `json:"timestamp"`

	// User, System, Steering content.
	Text string `json:"text,omitempty"`

	// Assistant fields.
	Reasoning  string     `json:"reasoning,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	Usage      Usage      `json:"usage,omitempty"`
	ResponseID string     `json:"response_id,omitempty"`

	// ToolResults fields.
	Results []ToolResultEntry `json:"results,omitempty"`
}

// HasToolCalls reports whether an Assistant turn issued any tool calls.
func (t Turn) HasToolCalls() bool {
	return t.Kind == TurnAssistant && len(t.ToolCalls) > 0
}

// NewUserTurn builds a User turn with the given text.
func NewUserTurn(text string) Turn {
	return Turn{Kind: TurnUser, Timestamp: time.Now(), Text: text}
}

// NewSteeringTurn builds a Steering turn with the given text.
func NewSteeringTurn(text string) Turn {
	return Turn{Kind: TurnSteering, Timestamp: time.Now(), Text: text}
}

// NewSystemTurn builds a System turn with the given text.
func NewSystemTurn(text string) Turn {
	return Turn{Kind: TurnSystem, Timestamp: time.Now(), Text: text}
}

// NewAssistantTurn builds an Assistant turn.
func NewAssistantTurn(text, reasoning string, calls []ToolCall, usage Usage, responseID string) Turn {
	return Turn{
		Kind:       TurnAssistant,
		Timestamp:  time.Now(),
		Text:       text,
		Reasoning:  reasoning,
		ToolCalls:  calls,
		Usage:      usage,
		ResponseID: responseID,
	}
}

// NewToolResultsTurn builds a ToolResults turn.
func NewToolResultsTurn(results []ToolResultEntry) Turn {
	return Turn{Kind: TurnToolResults, Timestamp: time.Now(), Results: results}
}

// ValidateAlignment checks the Turn(3) invariant: every ToolResults turn
// at position i answers the ToolCalls emitted by the immediately
// preceding Assistant turn, one-to-one by tool_call_id, in order.
func ValidateAlignment(history []Turn) error {
	for i, t := range history {
		if t.Kind != TurnToolResults {
			continue
		}
		if i == 0 || history[i-1].Kind != TurnAssistant {
			return &AlignmentError{Index: i, Reason: "tool_results without preceding assistant turn"}
		}
		prev := history[i-1]
		if len(prev.ToolCalls) != len(t.Results) {
			return &AlignmentError{Index: i, Reason: "tool_results count mismatch"}
		}
		for j, call := range prev.ToolCalls {
			if t.Results[j].ToolCallID != call.ID {
				return &AlignmentError{Index: i, Reason: "tool_call_id order mismatch"}
			}
		}
	}
	return nil
}

// AlignmentError reports a Turn(3) invariant violation.
type AlignmentError struct {
	Index  int
	Reason string
}

func (e *AlignmentError) Error() string {
	return "turn alignment violated at index " + itoa(e.Index) + ": " + e.Reason
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
