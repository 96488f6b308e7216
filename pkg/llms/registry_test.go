package llms

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketdocs/rocketdocs/pkg/config"
)

type stubProvider struct {
	name   string
	closed bool
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) GenerateText(ctx context.Context, req TextRequest) (*Completion, error) {
	return &Completion{Text: p.name}, nil
}

func (p *stubProvider) GenerateChat(ctx context.Context, req ChatRequest) (*Completion, error) {
	return &Completion{Text: p.name}, nil
}

func (p *stubProvider) GenerateJSON(ctx context.Context, req JSONRequest) (*JSONCompletion, error) {
	return &JSONCompletion{Object: map[string]any{"provider": p.name}}, nil
}

func (p *stubProvider) GenerateEmbedding(ctx context.Context, model string, inputs []string) ([][]float32, error) {
	return make([][]float32, len(inputs)), nil
}

func (p *stubProvider) Close() error {
	p.closed = true
	return nil
}

func TestRegistryRoutesByPrefix(t *testing.T) {
	r := NewRegistry()
	openai := &stubProvider{name: "openai"}
	anyscale := &stubProvider{name: "anyscale"}

	require.NoError(t, r.Register("openai", []string{"gpt-"}, openai))
	require.NoError(t, r.Register("anyscale", []string{"mistralai/", "BAAI/"}, anyscale))

	p, err := r.ProviderFor("gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())

	p, err = r.ProviderFor(ModelMixtral)
	require.NoError(t, err)
	assert.Equal(t, "anyscale", p.Name())

	p, err = r.ProviderFor(EmbeddingModelBGELarge)
	require.NoError(t, err)
	assert.Equal(t, "anyscale", p.Name())
}

func TestRegistryLongestPrefixWins(t *testing.T) {
	r := NewRegistry()
	generic := &stubProvider{name: "generic"}
	specific := &stubProvider{name: "specific"}

	require.NoError(t, r.Register("generic", []string{"gpt-"}, generic))
	require.NoError(t, r.Register("specific", []string{"gpt-4o"}, specific))

	p, err := r.ProviderFor("gpt-4o-mini")
	require.NoError(t, err)
	assert.Equal(t, "specific", p.Name())

	p, err = r.ProviderFor("gpt-3.5-turbo")
	require.NoError(t, err)
	assert.Equal(t, "generic", p.Name())
}

func TestRegistryUnknownModel(t *testing.T) {
	r := NewRegistry()
	_, err := r.ProviderFor("gemini-pro")
	assert.ErrorIs(t, err, ErrNoProvider)
}

func TestRegistryRejectsInvalidRegistrations(t *testing.T) {
	r := NewRegistry()
	p := &stubProvider{name: "p"}

	assert.Error(t, r.Register("", []string{"x-"}, p))
	assert.Error(t, r.Register("p", nil, p))
	assert.Error(t, r.Register("p", []string{"x-"}, nil))

	require.NoError(t, r.Register("p", []string{"x-"}, p))
	assert.Error(t, r.Register("p", []string{"y-"}, p))
}

func TestRegistryGatewayDelegation(t *testing.T) {
	r := NewRegistry()
	anyscale := &stubProvider{name: "anyscale"}
	require.NoError(t, r.Register("anyscale", []string{"mistralai/"}, anyscale))

	ctx := context.Background()

	completion, err := r.GenerateText(ctx, TextRequest{Model: ModelMixtral, Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "anyscale", completion.Text)

	chat, err := r.GenerateChat(ctx, ChatRequest{Model: ModelMixtral})
	require.NoError(t, err)
	assert.Equal(t, "anyscale", chat.Text)

	obj, err := r.GenerateJSON(ctx, JSONRequest{Model: ModelMixtral})
	require.NoError(t, err)
	assert.Equal(t, "anyscale", obj.Object["provider"])

	embeddings, err := r.GenerateEmbedding(ctx, ModelMixtral, []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, embeddings, 2)

	_, err = r.GenerateText(ctx, TextRequest{Model: "unknown"})
	assert.ErrorIs(t, err, ErrNoProvider)
}

func TestRegistryClose(t *testing.T) {
	r := NewRegistry()
	p := &stubProvider{name: "p"}
	require.NoError(t, r.Register("p", []string{"x-"}, p))

	require.NoError(t, r.Close())
	assert.True(t, p.closed)
}

func TestNewRegistryFromConfig(t *testing.T) {
	cfg := &config.LLMConfig{Providers: map[string]config.LLMProviderConfig{
		"anyscale": {Type: config.LLMProviderAnyscale, APIKey: "secret"},
	}}
	cfg.SetDefaults()

	r, err := NewRegistryFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"anyscale"}, r.List())

	_, err = r.ProviderFor(ModelMixtral)
	assert.NoError(t, err)
}

func TestNewRegistryFromConfigUnknownType(t *testing.T) {
	cfg := &config.LLMConfig{Providers: map[string]config.LLMProviderConfig{
		"weird": {Type: "weird", APIKey: "k", ModelPrefixes: []string{"w-"}},
	}}

	_, err := NewRegistryFromConfig(cfg)
	assert.Error(t, err)
}
