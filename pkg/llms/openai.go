package llms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rocketdocs/rocketdocs/pkg/config"
	"github.com/rocketdocs/rocketdocs/pkg/httpclient"
)

const openAIDefaultBaseURL = "https://api.openai.com/v1"

// openAICompatProvider speaks the OpenAI chat-completions and embeddings
// wire format. Both the OpenAI and Anyscale endpoints are served by this
// one implementation; they differ only in base URL and in whether the
// endpoint accepts a schema inside response_format.
type openAICompatProvider struct {
	name         string
	baseURL      string
	apiKey       string
	client       *httpclient.Client
	maxRetries   int
	nativeSchema bool
}

// NewOpenAIProviderFromConfig builds the OpenAI-backed provider.
func NewOpenAIProviderFromConfig(cfg *config.LLMProviderConfig) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for OpenAI provider")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = openAIDefaultBaseURL
	}

	return &openAICompatProvider{
		name:       "openai",
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		client:     newRetryingClient(cfg),
		maxRetries: cfg.MaxRetries,
	}, nil
}

func newRetryingClient(cfg *config.LLMProviderConfig) *httpclient.Client {
	timeout := 120 * time.Second
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}
	return httpclient.New(
		httpclient.WithHTTPClient(&http.Client{Timeout: timeout}),
		httpclient.WithMaxRetries(maxRetries),
		httpclient.WithHeaderParser(httpclient.ParseOpenAIHeaders),
	)
}

func (p *openAICompatProvider) Name() string {
	return p.name
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type   string          `json:"type"`
	Schema json.RawMessage `json:"schema,omitempty"`
}

type chatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    *float64        `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type apiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (p *openAICompatProvider) GenerateText(ctx context.Context, req TextRequest) (*Completion, error) {
	return p.GenerateChat(ctx, ChatRequest{
		Model: req.Model,
		Messages: []Message{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.Prompt},
		},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
}

func (p *openAICompatProvider) GenerateChat(ctx context.Context, req ChatRequest) (*Completion, error) {
	return p.chat(ctx, req, nil)
}

func (p *openAICompatProvider) chat(ctx context.Context, req ChatRequest, format *responseFormat) (*Completion, error) {
	messages := make([]chatMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, chatMessage{Role: m.Role, Content: m.Content})
	}

	payload := chatCompletionRequest{
		Model:          req.Model,
		Messages:       messages,
		MaxTokens:      req.MaxTokens,
		ResponseFormat: format,
	}
	if req.Temperature > 0 {
		payload.Temperature = &req.Temperature
	}

	var resp chatCompletionResponse
	if err := p.post(ctx, "/chat/completions", payload, &resp); err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 {
		return nil, ErrEmptyCompletion
	}

	choice := resp.Choices[0]

	// Some completion endpoints prefix the first token with a space.
	text := strings.TrimPrefix(choice.Message.Content, " ")

	return &Completion{
		Text: text,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		FinishReason: choice.FinishReason,
	}, nil
}

func (p *openAICompatProvider) GenerateJSON(ctx context.Context, req JSONRequest) (*JSONCompletion, error) {
	schemaJSON, err := marshalSchema(req.Schema)
	if err != nil {
		return nil, err
	}

	format := &responseFormat{Type: "json_object"}
	system := req.System
	if p.nativeSchema {
		format.Schema = json.RawMessage(schemaJSON)
	} else {
		system += "\n\nRespond with a single JSON object conforming to this JSON Schema:\n" + schemaJSON
	}

	var total Usage
	prompt := req.Prompt
	var lastErr error

	for attempt := 0; attempt <= req.MaxRetries; attempt++ {
		completion, err := p.chat(ctx, ChatRequest{
			Model: req.Model,
			Messages: []Message{
				{Role: "system", Content: system},
				{Role: "user", Content: prompt},
			},
			Temperature: req.Temperature,
			MaxTokens:   req.MaxTokens,
		}, format)
		if err != nil {
			return nil, err
		}
		total.Add(completion.Usage)

		if completion.FinishReason == "length" {
			return nil, fmt.Errorf("%w: finish_reason=length after %d tokens",
				ErrTruncated, completion.Usage.CompletionTokens)
		}

		obj := map[string]any{}
		if err := json.Unmarshal([]byte(completion.Text), &obj); err == nil {
			err = validateAgainstSchema(obj, req.Schema)
			if err == nil {
				return &JSONCompletion{
					Object:       obj,
					Usage:        total,
					FinishReason: completion.FinishReason,
				}, nil
			}
			lastErr = err
		} else {
			lastErr = err
		}

		// Feed the validation failure back so the model can correct itself.
		prompt = req.Prompt + "\n\nYour previous reply was rejected: " + lastErr.Error()
	}

	return nil, fmt.Errorf("%w: %v", ErrParse, lastErr)
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func (p *openAICompatProvider) GenerateEmbedding(ctx context.Context, model string, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	if len(inputs) > MaxEmbeddingInputs {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyInputs, len(inputs), MaxEmbeddingInputs)
	}

	var resp embeddingResponse
	if err := p.post(ctx, "/embeddings", embeddingRequest{Model: model, Input: inputs}, &resp); err != nil {
		return nil, err
	}

	if len(resp.Data) != len(inputs) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d, got %d", len(inputs), len(resp.Data))
	}

	// Order by index to match input order.
	embeddings := make([][]float32, len(inputs))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(embeddings) {
			return nil, fmt.Errorf("embedding index %d out of range", item.Index)
		}
		embeddings[item.Index] = item.Embedding
	}

	return embeddings, nil
}

func (p *openAICompatProvider) post(ctx context.Context, path string, payload any, out any) error {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	// The retrying client returns both a response and an error for
	// non-2xx statuses, so inspect the body before the error.
	if resp == nil {
		return fmt.Errorf("%s request failed: %w", p.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr apiErrorResponse
		if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("%s API error: %s (type: %s)", p.name, apiErr.Error.Message, apiErr.Error.Type)
		}
		return fmt.Errorf("%s API returned status %d: %s", p.name, resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", p.name, err)
	}

	return nil
}

func (p *openAICompatProvider) Close() error {
	return nil
}
