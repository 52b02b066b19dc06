package llm

import (
	"context"

	modelcatalog "github.com/forgehq/forge/internal/modelcatalog"
)

// CatalogClient wraps a Client and resolves Capabilities from the shared
// model catalog when it knows the model, falling back to the wrapped
// adapter's own hardcoded Capabilities otherwise. This lets an operator
// register a new or fine-tuned model in the catalog (internal/modelcatalog)
// and have Capabilities/ContextWindowSize resolution pick it up without
// an adapter code change.
type CatalogClient struct {
	Client  Client
	Catalog *modelcatalog.Catalog
}

// NewCatalogClient wraps client, consulting catalog (or the package
// DefaultCatalog if nil) before falling back to client's own Capabilities.
func NewCatalogClient(client Client, catalog *modelcatalog.Catalog) *CatalogClient {
	if catalog == nil {
		catalog = modelcatalog.DefaultCatalog
	}
	return &CatalogClient{Client: client, Catalog: catalog}
}

func (c *CatalogClient) Capabilities(provider, model string) Capabilities {
	entry, ok := c.Catalog.Get(model)
	if !ok {
		return c.Client.Capabilities(provider, model)
	}

	caps := c.Client.Capabilities(provider, model)
	if entry.ContextWindow > 0 {
		caps.ContextWindowSize = entry.ContextWindow
	}
	caps.SupportsReasoning = entry.HasCapability(modelcatalog.CapReasoning)
	caps.SupportsStreaming = entry.HasCapability(modelcatalog.CapStreaming)
	caps.SupportsParallelToolCalls = entry.HasCapability(modelcatalog.CapTools)
	return caps
}

func (c *CatalogClient) Complete(ctx context.Context, provider string, req Request) (Response, error) {
	return c.Client.Complete(ctx, provider, req)
}
