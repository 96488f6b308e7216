// Package llms is the gateway to text-completion, structured-JSON and
// embedding backends. Providers are selected per request by model name, so
// the rest of the system never knows which vendor serves a call.
package llms

import (
	"context"
	"errors"

	"github.com/invopop/jsonschema"
)

// Well-known model names. The Anyscale endpoint serves the open-weight
// models; OpenAI serves the gpt family.
const (
	ModelMixtral     = "mistralai/Mixtral-8x7B-Instruct-v0.1"
	ModelMistral     = "mistralai/Mistral-7B-Instruct-v0.1"
	ModelMistralOrca = "Open-Orca/Mistral-7B-OpenOrca"
	ModelLlama7B     = "meta-llama/Llama-2-7b-chat-hf"
	ModelGPT4o       = "gpt-4o"

	EmbeddingModelBGELarge = "BAAI/bge-large-en-v1.5"
)

// MaxEmbeddingInputs is the hard cap on inputs per embedding call.
// Larger batches are caller-split.
const MaxEmbeddingInputs = 2048

var (
	// ErrTruncated indicates the completion stopped on the token limit.
	ErrTruncated = errors.New("llm completion truncated")

	// ErrParse indicates structured output failed schema validation after
	// all retries.
	ErrParse = errors.New("llm output failed schema validation")

	// ErrEmptyCompletion indicates the provider returned no content.
	ErrEmptyCompletion = errors.New("llm returned empty completion")

	// ErrTooManyInputs indicates an embedding batch above MaxEmbeddingInputs.
	ErrTooManyInputs = errors.New("too many embedding inputs in one call")

	// ErrNoProvider indicates no registered provider serves the model.
	ErrNoProvider = errors.New("no provider registered for model")
)

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage counts tokens across one or more completions.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens" firestore:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens" firestore:"completion_tokens"`
	TotalTokens      int `json:"total_tokens" firestore:"total_tokens"`
}

// Add accumulates another usage record.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// Completion is one plain-text response.
type Completion struct {
	Text         string
	Usage        Usage
	FinishReason string
}

// JSONCompletion is one schema-conforming response.
type JSONCompletion struct {
	Object       map[string]any
	Usage        Usage
	FinishReason string
}

// TextRequest asks for a single system+user completion.
type TextRequest struct {
	Model       string
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// ChatRequest asks for a completion over a full transcript.
type ChatRequest struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// JSONRequest asks for a completion conforming to Schema. Providers without
// native structured output emulate it with validation retries; MaxRetries
// bounds those retries.
type JSONRequest struct {
	Model       string
	System      string
	Prompt      string
	Schema      *jsonschema.Schema
	Temperature float64
	MaxRetries  int
	MaxTokens   int
}

// Provider is one LLM backend.
type Provider interface {
	Name() string

	GenerateText(ctx context.Context, req TextRequest) (*Completion, error)

	GenerateChat(ctx context.Context, req ChatRequest) (*Completion, error)

	GenerateJSON(ctx context.Context, req JSONRequest) (*JSONCompletion, error)

	// GenerateEmbedding embeds up to MaxEmbeddingInputs inputs, preserving
	// input order.
	GenerateEmbedding(ctx context.Context, model string, inputs []string) ([][]float32, error)

	Close() error
}
