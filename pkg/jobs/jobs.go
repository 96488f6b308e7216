// Package jobs owns the background work started from request handlers:
// repository generation runs, embedding and single-file documentation.
// Every job is held by a handle with its own cancel function; nothing is
// fired and forgotten.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/rocketdocs/rocketdocs/pkg/config"
	"github.com/rocketdocs/rocketdocs/pkg/github"
	"github.com/rocketdocs/rocketdocs/pkg/identifier"
	"github.com/rocketdocs/rocketdocs/pkg/store"
)

// RepoIdentifier identifies a repository into a persisted DAG.
type RepoIdentifier interface {
	Identify(ctx context.Context, userID, repoURL string) (*store.Repo, error)
}

// RepoRunner generates every document of an identified repository.
type RepoRunner interface {
	Run(ctx context.Context, repoID string) error
}

// RepoEmbedder loads a generated repository into the vector index.
type RepoEmbedder interface {
	EmbedRepo(ctx context.Context, userID, repoID string) error
}

// DocGenerator generates one document.
type DocGenerator interface {
	Generate(ctx context.Context, docID, model string, childIDs []string) error
}

// FileStat resolves a blob URL to entry metadata.
type FileStat interface {
	StatFileURL(ctx context.Context, fileURL string) (*github.Entry, error)
}

// Controller runs and tracks background jobs, keyed by the repo or doc
// id they operate on.
type Controller struct {
	store      store.Store
	identifier RepoIdentifier
	runner     RepoRunner
	embedder   RepoEmbedder
	generator  DocGenerator
	source     FileStat
	cfg        *config.GenerationConfig

	mu      sync.Mutex
	running map[string]context.CancelFunc
	wg      sync.WaitGroup
}

func New(st store.Store, ident RepoIdentifier, runner RepoRunner, embedder RepoEmbedder, gen DocGenerator, source FileStat, cfg *config.GenerationConfig) *Controller {
	return &Controller{
		store:      st,
		identifier: ident,
		runner:     runner,
		embedder:   embedder,
		generator:  gen,
		source:     source,
		cfg:        cfg,
		running:    make(map[string]context.CancelFunc),
	}
}

// SubmitRepo identifies the repository synchronously, then generates and
// embeds it in the background. The returned repo carries the id the
// caller polls.
func (c *Controller) SubmitRepo(ctx context.Context, userID, repoURL string) (*store.Repo, error) {
	repo, err := c.identifier.Identify(ctx, userID, repoURL)
	if err != nil {
		return nil, err
	}

	if err := c.start(repo.ID, func(jobCtx context.Context) {
		c.generateAndEmbed(jobCtx, userID, repo.ID)
	}); err != nil {
		return nil, err
	}
	return repo, nil
}

// SubmitRepoGeneration re-runs generation for an already identified
// repository. Refused while a run is in flight.
func (c *Controller) SubmitRepoGeneration(ctx context.Context, userID, repoID string) error {
	repo, err := c.store.GetUserRepo(ctx, userID, repoID)
	if err != nil {
		return err
	}
	if repo.Status == store.StatusInProgress {
		return fmt.Errorf("%w: repo %s", store.ErrBusy, repoID)
	}

	return c.start(repoID, func(jobCtx context.Context) {
		c.generateAndEmbed(jobCtx, userID, repoID)
	})
}

func (c *Controller) generateAndEmbed(ctx context.Context, userID, repoID string) {
	if err := c.runner.Run(ctx, repoID); err != nil {
		slog.Error("Repository generation job failed", "repo_id", repoID, "error", err)
		return
	}
	if err := c.embedder.EmbedRepo(ctx, userID, repoID); err != nil {
		slog.Error("Repository embedding job failed", "repo_id", repoID, "error", err)
	}
}

// SubmitFileDoc creates a standalone document for one file and generates
// it in the background.
func (c *Controller) SubmitFileDoc(ctx context.Context, userID, fileURL string) (*store.Document, error) {
	entry, err := c.source.StatFileURL(ctx, fileURL)
	if err != nil {
		return nil, err
	}
	if entry.Size > identifier.MaxFileSize {
		return nil, fmt.Errorf("%w: %s exceeds the size limit", github.ErrInvalidURL, entry.Path)
	}

	doc := &store.Document{
		ID:           uuid.NewString(),
		OwnerID:      userID,
		SourceURL:    fileURL,
		RelativePath: entry.Path,
		Kind:         store.KindFile,
		Size:         entry.Size,
		Status:       store.StatusNotStarted,
	}
	if err := c.store.CreateDoc(ctx, doc); err != nil {
		return nil, err
	}

	if err := c.startGenerate(doc.ID); err != nil {
		return nil, err
	}
	return doc, nil
}

// RegenerateFileDoc re-runs generation for a standalone document.
// Refused unless the document is in a terminal state.
func (c *Controller) RegenerateFileDoc(ctx context.Context, userID, docID string) error {
	doc, err := c.store.GetUserDoc(ctx, userID, docID)
	if err != nil {
		return err
	}
	if !doc.Status.Terminal() && doc.Status != store.StatusNotStarted {
		return fmt.Errorf("%w: doc %s", store.ErrBusy, docID)
	}
	return c.startGenerate(docID)
}

func (c *Controller) startGenerate(docID string) error {
	return c.start(docID, func(jobCtx context.Context) {
		if err := c.generator.Generate(jobCtx, docID, c.cfg.Model, nil); err != nil {
			slog.Error("File documentation job failed", "doc_id", docID, "error", err)
		}
	})
}

func (c *Controller) start(id string, fn func(context.Context)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.running[id]; exists {
		return fmt.Errorf("%w: job %s already running", store.ErrBusy, id)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.running[id] = cancel
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()
		defer func() {
			c.mu.Lock()
			delete(c.running, id)
			c.mu.Unlock()
			cancel()
		}()
		fn(ctx)
	}()
	return nil
}

// Cancel aborts the job for the given id, if one is running.
func (c *Controller) Cancel(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	cancel, ok := c.running[id]
	if ok {
		cancel()
	}
	return ok
}

// Running reports whether a job holds the given id.
func (c *Controller) Running(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.running[id]
	return ok
}

// Shutdown cancels every job and waits for them to drain, or for ctx.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	for _, cancel := range c.running {
		cancel()
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
