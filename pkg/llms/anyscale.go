package llms

import (
	"fmt"

	"github.com/rocketdocs/rocketdocs/pkg/config"
)

const anyscaleDefaultBaseURL = "https://api.endpoints.anyscale.com/v1"

// NewAnyscaleProviderFromConfig builds the Anyscale-backed provider.
// Anyscale exposes an OpenAI-compatible endpoint and additionally accepts
// a JSON schema inside response_format, so structured output needs no
// prompt-level emulation.
func NewAnyscaleProviderFromConfig(cfg *config.LLMProviderConfig) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for Anyscale provider")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = anyscaleDefaultBaseURL
	}

	return &openAICompatProvider{
		name:         "anyscale",
		baseURL:      baseURL,
		apiKey:       cfg.APIKey,
		client:       newRetryingClient(cfg),
		maxRetries:   cfg.MaxRetries,
		nativeSchema: true,
	}, nil
}
