package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/forgehq/forge/internal/forgebackoff"
)

type flakyClient struct {
	failures int
	calls    int
}

func (f *flakyClient) Capabilities(provider, model string) Capabilities { return Capabilities{} }

func (f *flakyClient) Complete(ctx context.Context, provider string, req Request) (Response, error) {
	f.calls++
	if f.calls <= f.failures {
		return Response{}, errors.New("temporary failure")
	}
	return Response{Text: "ok"}, nil
}

func TestRetryingClientRetriesUntilSuccess(t *testing.T) {
	inner := &flakyClient{failures: 2}
	client := NewRetryingClient(inner, forgebackoff.Policy{InitialMs: 1, MaxMs: 2, Factor: 1, Jitter: 0}, 3)

	resp, err := client.Complete(context.Background(), "anthropic", Request{})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Text != "ok" {
		t.Fatalf("Text = %q, want %q", resp.Text, "ok")
	}
	if inner.calls != 3 {
		t.Fatalf("calls = %d, want 3", inner.calls)
	}
}

func TestRetryingClientReturnsLastErrorAfterExhausting(t *testing.T) {
	inner := &flakyClient{failures: 5}
	client := NewRetryingClient(inner, forgebackoff.Policy{InitialMs: 1, MaxMs: 2, Factor: 1, Jitter: 0}, 2)

	_, err := client.Complete(context.Background(), "anthropic", Request{})
	if err == nil {
		t.Fatalf("expected an error after exhausting retries")
	}
	if inner.calls != 2 {
		t.Fatalf("calls = %d, want 2", inner.calls)
	}
}
