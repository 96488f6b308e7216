// Package scheduler drives whole-repository generation in topological
// rounds: children before parents, bounded concurrency, fail-fast.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/rocketdocs/rocketdocs/pkg/config"
	"github.com/rocketdocs/rocketdocs/pkg/store"
)

// DocGenerator generates one document. Implemented by generator.Generator.
type DocGenerator interface {
	Generate(ctx context.Context, docID, model string, childIDs []string) error
}

// Scheduler runs the generation DAG of one repository at a time. All
// bookkeeping (children map, in-degrees) is in-memory and exclusive to a
// single run.
type Scheduler struct {
	store     store.Store
	generator DocGenerator
	cfg       *config.GenerationConfig
}

func New(st store.Store, gen DocGenerator, cfg *config.GenerationConfig) *Scheduler {
	return &Scheduler{
		store:     st,
		generator: gen,
		cfg:       cfg,
	}
}

// Run generates every document of the repository. Leaves go first; a
// directory is only scheduled once all of its children completed. The
// first failure aborts the run and marks the repository FAILED.
// Documents already generating refuse the run with ErrBusy.
func (s *Scheduler) Run(ctx context.Context, repoID string) error {
	repo, err := s.store.GetRepo(ctx, repoID)
	if err != nil {
		return err
	}
	for _, doc := range repo.Docs {
		if doc.Status == store.StatusInProgress {
			return fmt.Errorf("%w: document %s", store.ErrBusy, doc.ID)
		}
	}

	children := repo.Children()
	indegree := make(map[string]int, len(repo.Docs))
	for id := range repo.Docs {
		indegree[id] = len(children[id])
	}

	if err := s.store.SetRepoStatus(ctx, repoID, store.StatusInProgress); err != nil {
		return err
	}

	slog.Info("Starting repository generation",
		"repo_id", repoID,
		"docs", len(repo.Docs),
		"batch_size", s.cfg.BatchSize)

	remaining := len(repo.Docs)
	for remaining > 0 {
		if err := ctx.Err(); err != nil {
			return s.fail(repoID, err)
		}

		leaves := s.leaves(repo, indegree)
		if len(leaves) == 0 {
			return s.fail(repoID, fmt.Errorf("dependency map of repo %s is not a rooted tree", repoID))
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.cfg.BatchSize)
		for _, leaf := range leaves {
			leaf := leaf
			g.Go(func() error {
				return s.generator.Generate(gctx, leaf, s.cfg.Model, children[leaf])
			})
		}
		if err := g.Wait(); err != nil {
			return s.fail(repoID, err)
		}

		for _, leaf := range leaves {
			delete(indegree, leaf)
			if parent := repo.Dependencies[leaf]; parent != "" {
				indegree[parent]--
			}
			remaining--
		}
	}

	slog.Info("Repository generation completed", "repo_id", repoID)
	return s.store.SetRepoStatus(context.WithoutCancel(ctx), repoID, store.StatusCompleted)
}

// leaves returns the unprocessed nodes with no unprocessed children,
// ordered by relative path for stable scheduling.
func (s *Scheduler) leaves(repo *store.Repo, indegree map[string]int) []string {
	var leaves []string
	for id, degree := range indegree {
		if degree == 0 {
			leaves = append(leaves, id)
		}
	}
	sort.Slice(leaves, func(i, j int) bool {
		return repo.Docs[leaves[i]].RelativePath < repo.Docs[leaves[j]].RelativePath
	})
	return leaves
}

func (s *Scheduler) fail(repoID string, cause error) error {
	slog.Error("Repository generation failed", "repo_id", repoID, "error", cause)

	// The run may be aborting on a canceled context; the status write
	// must still land.
	if err := s.store.SetRepoStatus(context.Background(), repoID, store.StatusFailed); err != nil {
		slog.Error("Failed to record FAILED repo status", "repo_id", repoID, "error", err)
	}
	return cause
}
