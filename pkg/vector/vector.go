// Package vector stores and queries embedding vectors, partitioned into
// one namespace per repository.
package vector

import (
	"context"
	"fmt"

	"github.com/rocketdocs/rocketdocs/pkg/config"
)

// Vector is one embedding with its payload.
type Vector struct {
	ID       string
	Values   []float32
	Metadata map[string]any
}

// Match is one query result.
type Match struct {
	ID       string
	Score    float32
	Metadata map[string]any
}

// ChunkContent returns the stored chunk text from the match payload.
func (m Match) ChunkContent() string {
	s, _ := m.Metadata["chunk_content"].(string)
	return s
}

// DocID returns the owning document id from the match payload.
func (m Match) DocID() string {
	s, _ := m.Metadata["doc_id"].(string)
	return s
}

// Index is a vector store partitioned by namespace. One namespace holds
// all chunks of one repository and is only ever written once.
type Index interface {
	// Upsert writes vectors into a namespace.
	Upsert(ctx context.Context, namespace string, vectors []Vector) error

	// Query returns the topK nearest vectors in a namespace.
	Query(ctx context.Context, namespace string, vector []float32, topK int) ([]Match, error)

	// HasNamespace reports whether a namespace holds any vectors.
	HasNamespace(ctx context.Context, namespace string) (bool, error)

	// DeleteNamespace removes a namespace and all of its vectors.
	DeleteNamespace(ctx context.Context, namespace string) error

	Close() error
}

// NewIndexFromConfig builds the configured index backend.
func NewIndexFromConfig(cfg *config.VectorConfig) (Index, error) {
	switch cfg.Provider {
	case config.VectorProviderPinecone:
		return NewPineconeIndex(cfg)
	case config.VectorProviderChromem:
		return NewChromemIndex(cfg)
	default:
		return nil, fmt.Errorf("unsupported vector provider: %s", cfg.Provider)
	}
}
