package session

import (
	"strings"

	"github.com/forgehq/forge/internal/llm"
	"github.com/forgehq/forge/internal/models"
	"github.com/forgehq/forge/internal/tooling"
)

// PromptLayers supplies the pieces a system message is composed from.
type PromptLayers struct {
	BaseInstructions string
	EnvironmentBlock string
	ProjectDocs      []string
}

func buildSystemMessage(layers PromptLayers, tools []tooling.Tool, override string) string {
	var sb strings.Builder
	sb.WriteString(layers.BaseInstructions)
	if layers.EnvironmentBlock != "" {
		sb.WriteString("\n\n")
		sb.WriteString(layers.EnvironmentBlock)
	}
	if len(tools) > 0 {
		sb.WriteString("\n\n## Tools\n")
		for _, t := range tools {
			sb.WriteString("- " + t.Name() + ": " + t.Description() + "\n")
		}
	}
	for _, doc := range layers.ProjectDocs {
		if doc == "" {
			continue
		}
		sb.WriteString("\n\n")
		sb.WriteString(doc)
	}
	if override != "" {
		sb.WriteString("\n\n")
		sb.WriteString(override)
	}
	return sb.String()
}

// buildRequest turns transcript history into the wire message sequence
// the LLM Client expects.
func buildRequest(history []models.Turn, layers PromptLayers, tools []tooling.Tool, opts models.SubmitOptions, cfg models.SessionConfig, profileModel string) llm.Request {
	model := opts.Model
	if model == "" {
		model = profileModel
	}
	reasoningEffort := opts.ReasoningEffort
	if reasoningEffort == "" {
		reasoningEffort = string(cfg.ReasoningEffort)
	}

	messages := []llm.WireMessage{{Role: "system", Text: buildSystemMessage(layers, tools, opts.SystemPromptOverride)}}
	for _, t := range history {
		messages = append(messages, turnToWireMessages(t)...)
	}

	toolDefs := make([]llm.ToolDef, 0, len(tools))
	for _, t := range tools {
		toolDefs = append(toolDefs, llm.ToolDef{Name: t.Name(), Description: t.Description(), Parameters: t.Schema()})
	}

	providerOptions := opts.ProviderOptions

	return llm.Request{
		Model:           model,
		ReasoningEffort: reasoningEffort,
		Messages:        messages,
		Tools:           toolDefs,
		ProviderOptions: providerOptions,
		Metadata:        opts.Metadata,
	}
}

func turnToWireMessages(t models.Turn) []llm.WireMessage {
	switch t.Kind {
	case models.TurnUser:
		return []llm.WireMessage{{Role: "user", Text: t.Text}}
	case models.TurnSteering:
		return []llm.WireMessage{{Role: "user", Text: t.Text}}
	case models.TurnSystem:
		return []llm.WireMessage{{Role: "system", Text: t.Text}}
	case models.TurnAssistant:
		parts := []llm.MessagePart{}
		if t.Reasoning != "" {
			parts = append(parts, llm.MessagePart{Type: "thinking", Text: t.Reasoning})
		}
		if t.Text != "" || len(t.ToolCalls) == 0 {
			parts = append(parts, llm.MessagePart{Type: "text", Text: t.Text})
		}
		for _, c := range t.ToolCalls {
			parts = append(parts, llm.MessagePart{Type: "tool_call", ToolID: c.ID, ToolName: c.Name, ToolInput: c.EffectiveArguments()})
		}
		return []llm.WireMessage{{Role: "assistant", Text: t.Text, Parts: parts}}
	case models.TurnToolResults:
		out := make([]llm.WireMessage, 0, len(t.Results))
		for _, r := range t.Results {
			out = append(out, llm.WireMessage{Role: "tool_result", ToolCallID: r.ToolCallID, Text: r.Content, IsError: r.IsError})
		}
		return out
	}
	return nil
}
