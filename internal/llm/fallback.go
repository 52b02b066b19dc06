package llm

import (
	"context"
	"fmt"

	modelcatalog "github.com/forgehq/forge/internal/modelcatalog"
)

// FallbackClient tries a primary provider/model and, on a retryable
// provider error (rate limit, server error, timeout, auth, billing, or
// model-unavailable), fails over to the configured alternates in order,
// using modelcatalog's generic RunWithModelFallback runner and error
// classification so a single provider's outage doesn't fail a round
// that another configured provider could have served.
type FallbackClient struct {
	Clients map[string]Client // provider name -> adapter
	Config  modelcatalog.FallbackConfig
}

// NewFallbackClient builds a FallbackClient over clients (keyed by
// provider name), using cfg.Fallbacks as the ordered "provider/model"
// alternates tried after the request's own provider/model.
func NewFallbackClient(clients map[string]Client, cfg modelcatalog.FallbackConfig) *FallbackClient {
	return &FallbackClient{Clients: clients, Config: cfg}
}

func (f *FallbackClient) Capabilities(provider, model string) Capabilities {
	if client, ok := f.Clients[provider]; ok {
		return client.Capabilities(provider, model)
	}
	return Capabilities{}
}

func (f *FallbackClient) Complete(ctx context.Context, provider string, req Request) (Response, error) {
	cfg := f.Config
	cfg.PrimaryProvider = provider
	cfg.PrimaryModel = req.Model

	result, err := modelcatalog.RunWithModelFallback(ctx, &cfg, func(ctx context.Context, p, m string) (Response, error) {
		client, ok := f.Clients[p]
		if !ok {
			return Response{}, modelcatalog.NewFailoverError(fmt.Errorf("no client configured for provider %q", p), p, m, modelcatalog.ReasonUnavailable)
		}
		candidate := req
		candidate.Model = m
		resp, err := client.Complete(ctx, p, candidate)
		if err != nil {
			return Response{}, modelcatalog.CoerceToFailoverError(err, p, m)
		}
		return resp, nil
	}, nil)
	if err != nil {
		return Response{}, err
	}
	return result.Result, nil
}
