package llm

import (
	"context"
	"testing"

	modelcatalog "github.com/forgehq/forge/internal/modelcatalog"
)

type fixedClient struct {
	caps Capabilities
}

func (f *fixedClient) Capabilities(provider, model string) Capabilities { return f.caps }

func (f *fixedClient) Complete(ctx context.Context, provider string, req Request) (Response, error) {
	return Response{Text: "fixed"}, nil
}

func TestCatalogClientOverridesKnownModel(t *testing.T) {
	inner := &fixedClient{caps: Capabilities{ContextWindowSize: 1}}
	client := NewCatalogClient(inner, modelcatalog.DefaultCatalog)

	caps := client.Capabilities("anthropic", "claude-opus-4")
	if caps.ContextWindowSize != 200000 {
		t.Fatalf("ContextWindowSize = %d, want 200000", caps.ContextWindowSize)
	}
	if !caps.SupportsStreaming {
		t.Fatalf("SupportsStreaming = false, want true for claude-opus-4")
	}
}

func TestCatalogClientFallsBackForUnknownModel(t *testing.T) {
	inner := &fixedClient{caps: Capabilities{ContextWindowSize: 42}}
	client := NewCatalogClient(inner, modelcatalog.DefaultCatalog)

	caps := client.Capabilities("anthropic", "some-unreleased-model")
	if caps.ContextWindowSize != 42 {
		t.Fatalf("ContextWindowSize = %d, want inner adapter's 42", caps.ContextWindowSize)
	}
}
