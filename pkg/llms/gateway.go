package llms

import "context"

// The Registry doubles as the gateway: each call routes by model name and
// delegates to the matching provider.

func (r *Registry) GenerateText(ctx context.Context, req TextRequest) (*Completion, error) {
	provider, err := r.ProviderFor(req.Model)
	if err != nil {
		return nil, err
	}
	return provider.GenerateText(ctx, req)
}

func (r *Registry) GenerateChat(ctx context.Context, req ChatRequest) (*Completion, error) {
	provider, err := r.ProviderFor(req.Model)
	if err != nil {
		return nil, err
	}
	return provider.GenerateChat(ctx, req)
}

func (r *Registry) GenerateJSON(ctx context.Context, req JSONRequest) (*JSONCompletion, error) {
	provider, err := r.ProviderFor(req.Model)
	if err != nil {
		return nil, err
	}
	return provider.GenerateJSON(ctx, req)
}

func (r *Registry) GenerateEmbedding(ctx context.Context, model string, inputs []string) ([][]float32, error) {
	provider, err := r.ProviderFor(model)
	if err != nil {
		return nil, err
	}
	return provider.GenerateEmbedding(ctx, model, inputs)
}
