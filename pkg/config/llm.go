package config

import (
	"fmt"
	"os"
)

// LLMProviderType identifies an LLM provider implementation.
type LLMProviderType string

const (
	LLMProviderOpenAI   LLMProviderType = "openai"
	LLMProviderAnyscale LLMProviderType = "anyscale"
)

// LLMProviderConfig configures one provider. Providers are selected per
// request by matching the requested model name against ModelPrefixes.
type LLMProviderConfig struct {
	Type LLMProviderType `yaml:"type,omitempty"`

	// APIKey for authentication. Supports ${VAR} expansion.
	APIKey string `yaml:"api_key,omitempty"`

	// BaseURL overrides the default API endpoint.
	BaseURL string `yaml:"base_url,omitempty"`

	// ModelPrefixes route model names to this provider
	// (e.g. "gpt-" for OpenAI, "mistralai/" for Anyscale).
	ModelPrefixes []string `yaml:"model_prefixes,omitempty"`

	// Timeout in seconds for a single completion call.
	Timeout int `yaml:"timeout,omitempty"`

	// MaxRetries for transient upstream failures.
	MaxRetries int `yaml:"max_retries,omitempty"`
}

// LLMConfig configures the LLM gateway.
type LLMConfig struct {
	Providers map[string]LLMProviderConfig `yaml:"providers,omitempty"`
}

func (c *LLMConfig) SetDefaults() {
	if c.Providers == nil {
		c.Providers = map[string]LLMProviderConfig{}
	}

	if _, ok := c.Providers["openai"]; !ok {
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			c.Providers["openai"] = LLMProviderConfig{Type: LLMProviderOpenAI, APIKey: key}
		}
	}
	if _, ok := c.Providers["anyscale"]; !ok {
		if key := os.Getenv("ANYSCALE_API_KEY"); key != "" {
			c.Providers["anyscale"] = LLMProviderConfig{Type: LLMProviderAnyscale, APIKey: key}
		}
	}

	for name, p := range c.Providers {
		if p.Type == "" {
			p.Type = LLMProviderType(name)
		}
		if len(p.ModelPrefixes) == 0 {
			switch p.Type {
			case LLMProviderOpenAI:
				p.ModelPrefixes = []string{"gpt-", "text-embedding-"}
			case LLMProviderAnyscale:
				p.ModelPrefixes = []string{"mistralai/", "meta-llama/", "Open-Orca/", "BAAI/", "thenlper/"}
			}
		}
		if p.Timeout == 0 {
			p.Timeout = 120
		}
		if p.MaxRetries == 0 {
			p.MaxRetries = 3
		}
		c.Providers[name] = p
	}
}

func (c *LLMConfig) Validate() error {
	for name, p := range c.Providers {
		switch p.Type {
		case LLMProviderOpenAI, LLMProviderAnyscale:
		default:
			return fmt.Errorf("llm: provider %q has unknown type %q (valid: openai, anyscale)", name, p.Type)
		}
		if p.APIKey == "" {
			return fmt.Errorf("llm: provider %q has no api_key", name)
		}
	}
	return nil
}
