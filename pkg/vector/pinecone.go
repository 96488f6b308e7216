package vector

import (
	"context"
	"fmt"

	"github.com/pinecone-io/go-pinecone/pinecone"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rocketdocs/rocketdocs/pkg/config"
)

// PineconeIndex stores vectors in a single Pinecone index, one namespace
// per repository.
type PineconeIndex struct {
	client    *pinecone.Client
	indexName string

	// host caches the index host resolved by DescribeIndex.
	host string
}

func NewPineconeIndex(cfg *config.VectorConfig) (*PineconeIndex, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for Pinecone")
	}

	client, err := pinecone.NewClient(pinecone.NewClientParams{
		ApiKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Pinecone client: %w", err)
	}

	return &PineconeIndex{
		client:    client,
		indexName: cfg.IndexName,
	}, nil
}

// connect opens a connection bound to one namespace.
func (p *PineconeIndex) connect(ctx context.Context, namespace string) (*pinecone.IndexConnection, error) {
	if p.host == "" {
		index, err := p.client.DescribeIndex(ctx, p.indexName)
		if err != nil {
			return nil, fmt.Errorf("failed to describe index %s: %w", p.indexName, err)
		}
		p.host = index.Host
	}

	indexConn, err := p.client.Index(pinecone.NewIndexConnParams{
		Host:      p.host,
		Namespace: namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create index connection: %w", err)
	}
	return indexConn, nil
}

func (p *PineconeIndex) Upsert(ctx context.Context, namespace string, vectors []Vector) error {
	indexConn, err := p.connect(ctx, namespace)
	if err != nil {
		return err
	}
	defer indexConn.Close()

	pineconeVectors := make([]*pinecone.Vector, 0, len(vectors))
	for _, v := range vectors {
		var metadata *pinecone.Metadata
		if len(v.Metadata) > 0 {
			metadata, err = structpb.NewStruct(v.Metadata)
			if err != nil {
				return fmt.Errorf("failed to convert metadata for %s: %w", v.ID, err)
			}
		}
		pineconeVectors = append(pineconeVectors, &pinecone.Vector{
			Id:       v.ID,
			Values:   v.Values,
			Metadata: metadata,
		})
	}

	if _, err := indexConn.UpsertVectors(ctx, pineconeVectors); err != nil {
		return fmt.Errorf("failed to upsert vectors: %w", err)
	}
	return nil
}

func (p *PineconeIndex) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]Match, error) {
	indexConn, err := p.connect(ctx, namespace)
	if err != nil {
		return nil, err
	}
	defer indexConn.Close()

	response, err := indexConn.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          vector,
		TopK:            uint32(topK),
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query Pinecone: %w", err)
	}

	matches := make([]Match, 0, len(response.Matches))
	for _, scored := range response.Matches {
		if scored.Vector == nil {
			continue
		}
		metadata := make(map[string]any)
		if scored.Vector.Metadata != nil {
			for k, v := range scored.Vector.Metadata.AsMap() {
				metadata[k] = v
			}
		}
		matches = append(matches, Match{
			ID:       scored.Vector.Id,
			Score:    scored.Score,
			Metadata: metadata,
		})
	}
	return matches, nil
}

func (p *PineconeIndex) HasNamespace(ctx context.Context, namespace string) (bool, error) {
	indexConn, err := p.connect(ctx, "")
	if err != nil {
		return false, err
	}
	defer indexConn.Close()

	stats, err := indexConn.DescribeIndexStats(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to describe index stats: %w", err)
	}

	_, ok := stats.Namespaces[namespace]
	return ok, nil
}

func (p *PineconeIndex) DeleteNamespace(ctx context.Context, namespace string) error {
	indexConn, err := p.connect(ctx, namespace)
	if err != nil {
		return err
	}
	defer indexConn.Close()

	if err := indexConn.DeleteAllVectorsInNamespace(ctx); err != nil {
		return fmt.Errorf("failed to delete namespace %s: %w", namespace, err)
	}
	return nil
}

func (p *PineconeIndex) Close() error {
	return nil
}

var _ Index = (*PineconeIndex)(nil)
