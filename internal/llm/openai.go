package llm

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	ctxwindow "github.com/forgehq/forge/internal/context"
)

// OpenAIAdapter implements Client against the OpenAI chat-completions API.
type OpenAIAdapter struct {
	client *openai.Client
}

// NewOpenAIAdapter builds an adapter from an API key.
func NewOpenAIAdapter(apiKey string) *OpenAIAdapter {
	return &OpenAIAdapter{client: openai.NewClient(apiKey)}
}

func (a *OpenAIAdapter) Capabilities(provider, model string) Capabilities {
	window, ok := ctxwindow.GetModelContextWindow(model)
	if !ok {
		window = 128_000
	}
	return Capabilities{
		SupportsReasoning:         false,
		SupportsStreaming:         true,
		SupportsParallelToolCalls: true,
		ContextWindowSize:         window,
	}
}

func (a *OpenAIAdapter) Complete(ctx context.Context, provider string, req Request) (Response, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case "system":
			role = openai.ChatMessageRoleSystem
		case "assistant":
			role = openai.ChatMessageRoleAssistant
		case "tool_result":
			role = openai.ChatMessageRoleTool
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Text, ToolCallID: m.ToolCallID})
	}

	tools := make([]openai.Tool, 0, len(req.Tools))
	for _, t := range req.Tools {
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: messages,
		Tools:    tools,
	})
	if err != nil {
		return Response{}, fmt.Errorf("openai complete: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, fmt.Errorf("openai complete: no choices returned")
	}

	choice := resp.Choices[0]
	out := Response{
		Text:         choice.Message.Content,
		ResponseID:   resp.ID,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCallOut{
			ID:           tc.ID,
			Name:         tc.Function.Name,
			RawArguments: tc.Function.Arguments,
		})
	}
	return out, nil
}
