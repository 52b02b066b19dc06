package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	ctxwindow "github.com/forgehq/forge/internal/context"
)

// BedrockAdapter implements Client against Bedrock's Converse API, the
// way internal/modelcatalog talks to AWS for model discovery — this
// adapter instead drives inference.
type BedrockAdapter struct {
	client *bedrockruntime.Client
}

// NewBedrockAdapter builds an adapter over an AWS config.
func NewBedrockAdapter(cfg aws.Config) *BedrockAdapter {
	return &BedrockAdapter{client: bedrockruntime.NewFromConfig(cfg)}
}

func (a *BedrockAdapter) Capabilities(provider, model string) Capabilities {
	window, ok := ctxwindow.GetModelContextWindow(model)
	if !ok {
		window = 200_000
	}
	return Capabilities{
		SupportsReasoning:         true,
		SupportsStreaming:         true,
		SupportsParallelToolCalls: false,
		ContextWindowSize:         window,
	}
}

func (a *BedrockAdapter) Complete(ctx context.Context, provider string, req Request) (Response, error) {
	messages := make([]types.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == "system" {
			continue
		}
		role := types.ConversationRoleUser
		if m.Role == "assistant" {
			role = types.ConversationRoleAssistant
		}
		messages = append(messages, types.Message{
			Role:    role,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: m.Text}},
		})
	}

	var system []types.SystemContentBlock
	for _, m := range req.Messages {
		if m.Role == "system" && m.Text != "" {
			system = append(system, &types.SystemContentBlockMemberText{Value: m.Text})
		}
	}

	out, err := a.client.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId:  aws.String(req.Model),
		Messages: messages,
		System:   system,
	})
	if err != nil {
		return Response{}, fmt.Errorf("bedrock converse: %w", err)
	}

	resp := Response{}
	if msg, ok := out.Output.(*types.ConverseOutputMemberMessage); ok {
		for _, block := range msg.Value.Content {
			if text, ok := block.(*types.ContentBlockMemberText); ok {
				resp.Text += text.Value
			}
			if use, ok := block.(*types.ContentBlockMemberToolUse); ok {
				args, _ := json.Marshal(use.Value.Input)
				resp.ToolCalls = append(resp.ToolCalls, ToolCallOut{
					ID:        aws.ToString(use.Value.ToolUseId),
					Name:      aws.ToString(use.Value.Name),
					Arguments: args,
				})
			}
		}
	}
	if out.Usage != nil {
		resp.InputTokens = int(aws.ToInt32(out.Usage.InputTokens))
		resp.OutputTokens = int(aws.ToInt32(out.Usage.OutputTokens))
	}
	return resp, nil
}
