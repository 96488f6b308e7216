// Package embedding chunks completed documentation and loads it into the
// vector index, one namespace per repository.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rocketdocs/rocketdocs/pkg/chunker"
	"github.com/rocketdocs/rocketdocs/pkg/config"
	"github.com/rocketdocs/rocketdocs/pkg/observability"
	"github.com/rocketdocs/rocketdocs/pkg/store"
	"github.com/rocketdocs/rocketdocs/pkg/vector"
)

// ErrNamespaceExists indicates the repository is already embedded.
// Re-embedding requires an explicit namespace purge first.
var ErrNamespaceExists = errors.New("repository already exists in the vector index")

// Embedder is the slice of the LLM gateway the pipeline needs.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, model string, inputs []string) ([][]float32, error)
}

// Pipeline embeds every completed document of a repository.
type Pipeline struct {
	store    store.Store
	index    vector.Index
	embedder Embedder
	chunker  *chunker.Chunker
	cfg      *config.EmbeddingConfig
}

func New(st store.Store, idx vector.Index, embedder Embedder, ch *chunker.Chunker, cfg *config.EmbeddingConfig) *Pipeline {
	return &Pipeline{
		store:    st,
		index:    idx,
		embedder: embedder,
		chunker:  ch,
		cfg:      cfg,
	}
}

// EmbedRepo walks the repository tree from the root and embeds each
// COMPLETED document's markdown. Vector ids are doc_id + "-" + ordinal,
// monotonically increasing per document.
func (p *Pipeline) EmbedRepo(ctx context.Context, userID, repoID string) error {
	exists, err := p.index.HasNamespace(ctx, repoID)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrNamespaceExists, repoID)
	}

	repo, err := p.store.GetUserRepo(ctx, userID, repoID)
	if err != nil {
		return err
	}
	children := repo.Children()

	queue := []string{repo.RootDocID}
	for len(queue) > 0 {
		docID := queue[0]
		queue = queue[1:]

		doc, err := p.store.GetUserDoc(ctx, userID, docID)
		if err != nil {
			return err
		}
		if doc.Status == store.StatusCompleted {
			if err := p.embedDoc(ctx, doc, repoID); err != nil {
				return err
			}
		}

		for _, childID := range children[docID] {
			if child, ok := repo.Docs[childID]; ok && child.Status == store.StatusCompleted {
				queue = append(queue, childID)
			}
		}
	}

	slog.Info("Repository embedded", "repo_id", repoID)
	return nil
}

func (p *Pipeline) embedDoc(ctx context.Context, doc *store.Document, repoID string) error {
	chunks := p.chunker.Chunk(doc.Markdown, chunker.MarkdownSeparators())
	if len(chunks) == 0 {
		return nil
	}

	ordinal := 0
	for start := 0; start < len(chunks); start += p.cfg.EmbedBatchSize {
		end := start + p.cfg.EmbedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		group := chunks[start:end]

		embeddings, err := p.embedder.GenerateEmbedding(ctx, p.cfg.Model, group)
		if err != nil {
			return fmt.Errorf("failed to embed chunks of %s: %w", doc.ID, err)
		}

		// One embedding call can return far more vectors than the index
		// accepts per upsert, so flush in sub-batches.
		vectors := make([]vector.Vector, 0, p.cfg.UpsertBatchSize)
		for i, embedded := range embeddings {
			vectors = append(vectors, vector.Vector{
				ID:     fmt.Sprintf("%s-%d", doc.ID, ordinal),
				Values: embedded,
				Metadata: map[string]any{
					"chunk_content": group[i],
					"doc_id":        doc.ID,
				},
			})
			ordinal++

			if len(vectors) == p.cfg.UpsertBatchSize || i == len(embeddings)-1 {
				if err := p.index.Upsert(ctx, repoID, vectors); err != nil {
					return fmt.Errorf("failed to upsert vectors of %s: %w", doc.ID, err)
				}
				observability.VectorsUpserted.Add(float64(len(vectors)))
				vectors = make([]vector.Vector, 0, p.cfg.UpsertBatchSize)
			}
		}
	}
	return nil
}
