// Package llm defines the LLM Client contract the Session Engine
// depends on: the request/response shape, capability resolution, and
// concrete adapters for Anthropic, OpenAI, and Bedrock. The core never
// assumes a particular provider; everything routes through Client.
package llm

import (
	"context"
)

// MessagePart is one piece of an Assistant wire message (text,
// thinking, or a tool call).
type MessagePart struct {
	Type      string `json:"type"` // "text" | "thinking" | "tool_call"
	Text      string `json:"text,omitempty"`
	ToolID    string `json:"tool_id,omitempty"`
	ToolName  string `json:"tool_name,omitempty"`
	ToolInput []byte `json:"tool_input,omitempty"`
}

// WireMessage is one entry in the request's message sequence.
type WireMessage struct {
	Role       string        `json:"role"` // "system" | "user" | "assistant" | "tool_result"
	Text       string        `json:"text,omitempty"`
	Parts      []MessagePart `json:"parts,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
	IsError    bool          `json:"is_error,omitempty"`
}

// Capabilities describes what a resolved provider profile supports.
type Capabilities struct {
	SupportsReasoning          bool
	SupportsStreaming          bool
	SupportsParallelToolCalls  bool
	ContextWindowSize          int
}

// ToolDef is a tool advertised to the LLM as callable.
type ToolDef struct {
	Name        string
	Description string
	Parameters  []byte // json-schema
}

// Request is a fully-built LLM request.
type Request struct {
	Model           string
	ReasoningEffort string
	Messages        []WireMessage
	Tools           []ToolDef
	ProviderOptions map[string]any
	Metadata        map[string]any
}

// ToolCallOut is a tool call the model asked to make.
type ToolCallOut struct {
	ID           string
	Name         string
	Arguments    []byte
	RawArguments string
}

// Response is the assistant's reply to a Request.
type Response struct {
	Text          string
	Reasoning     string
	ToolCalls     []ToolCallOut
	ResponseID    string
	InputTokens   int
	OutputTokens  int
}

// Client is the contract the Session Engine drives; concrete providers
// (Anthropic/OpenAI/Bedrock adapters in this package) implement it.
type Client interface {
	Capabilities(provider, model string) Capabilities
	Complete(ctx context.Context, provider string, req Request) (Response, error)
}
