package vector

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"

	"github.com/philippgille/chromem-go"

	"github.com/rocketdocs/rocketdocs/pkg/config"
)

// ChromemIndex is an embedded vector index backed by chromem-go, with one
// collection per namespace. It needs no external service, which makes it
// the default for local development; all vectors live in RAM with
// optional file persistence.
type ChromemIndex struct {
	db          *chromem.DB
	persistPath string
	mu          sync.RWMutex

	collections map[string]*chromem.Collection

	// Embeddings are always pre-computed; chromem's own embedding hook
	// must never run.
	embeddingFunc chromem.EmbeddingFunc
}

func NewChromemIndex(cfg *config.VectorConfig) (*ChromemIndex, error) {
	var db *chromem.DB

	if cfg.Path != "" {
		if err := os.MkdirAll(cfg.Path, 0755); err != nil {
			return nil, fmt.Errorf("failed to create persist directory: %w", err)
		}
		dbPath := cfg.Path + "/vectors.gob"
		if _, statErr := os.Stat(dbPath); statErr == nil {
			loaded, err := chromem.NewPersistentDB(dbPath, false)
			if err != nil {
				slog.Warn("Failed to load existing vector database, creating new",
					"path", dbPath,
					"error", err)
				db = chromem.NewDB()
			} else {
				db = loaded
			}
		} else {
			db = chromem.NewDB()
		}
	} else {
		db = chromem.NewDB()
	}

	identityEmbed := func(ctx context.Context, text string) ([]float32, error) {
		return nil, fmt.Errorf("embedding function called but vectors should be pre-computed")
	}

	return &ChromemIndex{
		db:            db,
		persistPath:   cfg.Path,
		collections:   make(map[string]*chromem.Collection),
		embeddingFunc: identityEmbed,
	}, nil
}

// getOrCreateCollection is the write path. Reads must go through
// db.GetCollection instead: creating a collection on a read would make
// HasNamespace report vectors that were never written.
func (p *ChromemIndex) getOrCreateCollection(namespace string) (*chromem.Collection, error) {
	p.mu.RLock()
	if col, ok := p.collections[namespace]; ok {
		p.mu.RUnlock()
		return col, nil
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	if col, ok := p.collections[namespace]; ok {
		return col, nil
	}

	col, err := p.db.GetOrCreateCollection(namespace, nil, p.embeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("failed to get/create collection %q: %w", namespace, err)
	}
	p.collections[namespace] = col
	return col, nil
}

func (p *ChromemIndex) Upsert(ctx context.Context, namespace string, vectors []Vector) error {
	col, err := p.getOrCreateCollection(namespace)
	if err != nil {
		return err
	}

	docs := make([]chromem.Document, 0, len(vectors))
	for _, v := range vectors {
		metadata := make(map[string]string, len(v.Metadata))
		for k, val := range v.Metadata {
			metadata[k] = fmt.Sprint(val)
		}
		content, _ := v.Metadata["chunk_content"].(string)
		docs = append(docs, chromem.Document{
			ID:        v.ID,
			Content:   content,
			Metadata:  metadata,
			Embedding: v.Values,
		})
	}

	if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to upsert documents: %w", err)
	}

	if err := p.persist(); err != nil {
		slog.Warn("Failed to persist after upsert", "error", err)
	}
	return nil
}

func (p *ChromemIndex) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]Match, error) {
	col := p.db.GetCollection(namespace, p.embeddingFunc)
	if col == nil {
		return nil, nil
	}

	// chromem rejects queries asking for more results than stored.
	if count := col.Count(); topK > count {
		topK = count
	}
	if topK == 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, vector, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		metadata := make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			metadata[k] = v
		}
		matches = append(matches, Match{
			ID:       r.ID,
			Score:    r.Similarity,
			Metadata: metadata,
		})
	}
	return matches, nil
}

// HasNamespace reports whether the namespace holds any vectors. An
// existing but empty collection does not count.
func (p *ChromemIndex) HasNamespace(ctx context.Context, namespace string) (bool, error) {
	col := p.db.GetCollection(namespace, p.embeddingFunc)
	return col != nil && col.Count() > 0, nil
}

func (p *ChromemIndex) DeleteNamespace(ctx context.Context, namespace string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.db.DeleteCollection(namespace); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	delete(p.collections, namespace)

	if err := p.persist(); err != nil {
		slog.Warn("Failed to persist after namespace delete", "error", err)
	}
	return nil
}

func (p *ChromemIndex) Close() error {
	return p.persist()
}

func (p *ChromemIndex) persist() error {
	if p.persistPath == "" {
		return nil
	}
	dbPath := p.persistPath + "/vectors.gob"

	//nolint:staticcheck // Using deprecated function for compatibility
	if err := p.db.Export(dbPath, false, ""); err != nil {
		return fmt.Errorf("failed to persist database: %w", err)
	}
	return nil
}

var _ Index = (*ChromemIndex)(nil)
