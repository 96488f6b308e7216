// Package search answers semantic queries against one repository's
// embedded documentation.
package search

import (
	"context"
	"fmt"

	"github.com/rocketdocs/rocketdocs/pkg/config"
	"github.com/rocketdocs/rocketdocs/pkg/observability"
	"github.com/rocketdocs/rocketdocs/pkg/vector"
)

// Result is one retrieved chunk.
type Result struct {
	DocID        string  `json:"doc_id"`
	Score        float32 `json:"score"`
	ChunkContent string  `json:"chunk_content"`
}

// Embedder is the slice of the LLM gateway the service needs.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, model string, inputs []string) ([][]float32, error)
}

// Service embeds the query and runs a top-k lookup scoped to the repo's
// namespace.
type Service struct {
	index    vector.Index
	embedder Embedder
	model    string
	topK     int
}

func New(idx vector.Index, embedder Embedder, embeddingCfg *config.EmbeddingConfig, agentCfg *config.AgentConfig) *Service {
	return &Service{
		index:    idx,
		embedder: embedder,
		model:    embeddingCfg.Model,
		topK:     agentCfg.TopK,
	}
}

func (s *Service) Search(ctx context.Context, repoID, query string) ([]Result, error) {
	observability.Searches.Inc()

	embeddings, err := s.embedder.GenerateEmbedding(ctx, s.model, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("embedding provider returned no vector for query")
	}

	matches, err := s.index.Query(ctx, repoID, embeddings[0], s.topK)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(matches))
	for _, match := range matches {
		results = append(results, Result{
			DocID:        match.DocID(),
			Score:        match.Score,
			ChunkContent: match.ChunkContent(),
		})
	}
	return results, nil
}
