package config

import "fmt"

// GenerationConfig configures the per-document generator and the repo
// scheduler.
type GenerationConfig struct {
	// Model used for documentation completions.
	Model string `yaml:"model,omitempty"`

	// MaxInputTokens is the effective prompt budget; file contents are
	// trimmed to fit under it.
	MaxInputTokens int `yaml:"max_input_tokens,omitempty"`

	// MaxCompletionTokens bounds a single completion.
	MaxCompletionTokens int `yaml:"max_completion_tokens,omitempty"`

	// Temperature for documentation completions.
	Temperature float64 `yaml:"temperature,omitempty"`

	// BatchSize caps in-flight generations per repository run.
	BatchSize int `yaml:"batch_size,omitempty"`

	// JSONMaxRetries bounds schema-validation retries for structured output.
	JSONMaxRetries int `yaml:"json_max_retries,omitempty"`
}

func (c *GenerationConfig) SetDefaults() {
	if c.Model == "" {
		c.Model = "mistralai/Mixtral-8x7B-Instruct-v0.1"
	}
	if c.MaxInputTokens == 0 {
		c.MaxInputTokens = 28000
	}
	if c.MaxCompletionTokens == 0 {
		c.MaxCompletionTokens = 2048
	}
	if c.Temperature == 0 {
		c.Temperature = 0.4
	}
	if c.BatchSize == 0 {
		c.BatchSize = 30
	}
	if c.JSONMaxRetries == 0 {
		c.JSONMaxRetries = 2
	}
}

func (c *GenerationConfig) Validate() error {
	if c.BatchSize < 1 {
		return fmt.Errorf("generation: batch_size must be positive, got %d", c.BatchSize)
	}
	if c.MaxInputTokens < c.MaxCompletionTokens {
		return fmt.Errorf("generation: max_input_tokens (%d) must be at least max_completion_tokens (%d)",
			c.MaxInputTokens, c.MaxCompletionTokens)
	}
	return nil
}

// EmbeddingConfig configures the embedding pipeline and the chunker.
type EmbeddingConfig struct {
	// Model used for embeddings.
	Model string `yaml:"model,omitempty"`

	// ChunkSize is the max tokens per chunk.
	ChunkSize int `yaml:"chunk_size,omitempty"`

	// ChunkMinimum is the merge threshold in tokens.
	ChunkMinimum int `yaml:"chunk_minimum,omitempty"`

	// EmbedBatchSize caps inputs per embedding call.
	EmbedBatchSize int `yaml:"embed_batch_size,omitempty"`

	// UpsertBatchSize caps vectors per index upsert.
	UpsertBatchSize int `yaml:"upsert_batch_size,omitempty"`
}

func (c *EmbeddingConfig) SetDefaults() {
	if c.Model == "" {
		c.Model = "BAAI/bge-large-en-v1.5"
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = 250
	}
	if c.ChunkMinimum == 0 {
		c.ChunkMinimum = 50
	}
	if c.EmbedBatchSize == 0 {
		c.EmbedBatchSize = 2048
	}
	if c.UpsertBatchSize == 0 {
		c.UpsertBatchSize = 100
	}
}

func (c *EmbeddingConfig) Validate() error {
	if c.EmbedBatchSize > 2048 {
		return fmt.Errorf("embedding: embed_batch_size must not exceed 2048, got %d", c.EmbedBatchSize)
	}
	if c.UpsertBatchSize > 100 {
		return fmt.Errorf("embedding: upsert_batch_size must not exceed 100, got %d", c.UpsertBatchSize)
	}
	if c.ChunkMinimum > c.ChunkSize {
		return fmt.Errorf("embedding: chunk_minimum (%d) must not exceed chunk_size (%d)",
			c.ChunkMinimum, c.ChunkSize)
	}
	return nil
}

// AgentConfig configures the chat agent and semantic search.
type AgentConfig struct {
	// Model used for agent completions.
	Model string `yaml:"model,omitempty"`

	// MaxSteps bounds the reasoning loop.
	MaxSteps int `yaml:"max_steps,omitempty"`

	// TopK results per search.
	TopK int `yaml:"top_k,omitempty"`

	// ScoreThreshold filters weak matches out of agent observations.
	ScoreThreshold float64 `yaml:"score_threshold,omitempty"`
}

func (c *AgentConfig) SetDefaults() {
	if c.Model == "" {
		c.Model = "mistralai/Mixtral-8x7B-Instruct-v0.1"
	}
	if c.MaxSteps == 0 {
		c.MaxSteps = 4
	}
	if c.TopK == 0 {
		c.TopK = 4
	}
	if c.ScoreThreshold == 0 {
		c.ScoreThreshold = 0.6
	}
}
