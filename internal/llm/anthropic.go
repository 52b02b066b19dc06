package llm

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	ctxwindow "github.com/forgehq/forge/internal/context"
)

// AnthropicAdapter implements Client against the Anthropic Messages API.
type AnthropicAdapter struct {
	client anthropic.Client
}

// NewAnthropicAdapter builds an adapter from an API key.
func NewAnthropicAdapter(apiKey string) *AnthropicAdapter {
	return &AnthropicAdapter{client: anthropic.NewClient(option.WithAPIKey(apiKey))}
}

func (a *AnthropicAdapter) Capabilities(provider, model string) Capabilities {
	window, ok := ctxwindow.GetModelContextWindow(model)
	if !ok {
		window = 200_000
	}
	return Capabilities{
		SupportsReasoning:         true,
		SupportsStreaming:         true,
		SupportsParallelToolCalls: true,
		ContextWindowSize:         window,
	}
}

func (a *AnthropicAdapter) Complete(ctx context.Context, provider string, req Request) (Response, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: 4096,
		Messages:  toAnthropicMessages(req.Messages),
	}
	for _, m := range req.Messages {
		if m.Role == "system" && m.Text != "" {
			params.System = []anthropic.TextBlockParam{{Text: m.Text}}
		}
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return Response{}, fmt.Errorf("anthropic complete: %w", err)
	}

	resp := Response{ResponseID: msg.ID}
	if msg.Usage.InputTokens > 0 || msg.Usage.OutputTokens > 0 {
		resp.InputTokens = int(msg.Usage.InputTokens)
		resp.OutputTokens = int(msg.Usage.OutputTokens)
	}
	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			resp.Text += variant.Text
		case anthropic.ToolUseBlock:
			resp.ToolCalls = append(resp.ToolCalls, ToolCallOut{
				ID:        variant.ID,
				Name:      variant.Name,
				Arguments: variant.Input,
			})
		}
	}
	return resp, nil
}

func toAnthropicMessages(msgs []WireMessage) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case "user", "tool_result":
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Text)))
		case "assistant":
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Text)))
		}
	}
	return out
}
