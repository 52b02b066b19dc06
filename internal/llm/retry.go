package llm

import (
	"context"
	"time"

	"github.com/forgehq/forge/internal/forgebackoff"
)

// RetryingClient wraps a Client and retries a failed Complete call using
// the same exponential-with-jitter delay sequence as the Pipeline
// Runner's per-node retries (internal/forgebackoff), so a transient
// provider error (rate limit, timeout, connection reset) doesn't fail a
// whole session round on the first try.
type RetryingClient struct {
	Client      Client
	Policy      forgebackoff.Policy
	MaxAttempts int
}

// NewRetryingClient wraps client with policy, retrying up to maxAttempts
// times (including the first). maxAttempts <= 0 defaults to 3.
func NewRetryingClient(client Client, policy forgebackoff.Policy, maxAttempts int) *RetryingClient {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &RetryingClient{Client: client, Policy: policy, MaxAttempts: maxAttempts}
}

func (r *RetryingClient) Capabilities(provider, model string) Capabilities {
	return r.Client.Capabilities(provider, model)
}

func (r *RetryingClient) Complete(ctx context.Context, provider string, req Request) (Response, error) {
	var lastErr error
	for attempt := 1; attempt <= r.MaxAttempts; attempt++ {
		resp, err := r.Client.Complete(ctx, provider, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if attempt == r.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case <-time.After(forgebackoff.NextDelay(r.Policy, attempt)):
		}
	}
	return Response{}, lastErr
}
