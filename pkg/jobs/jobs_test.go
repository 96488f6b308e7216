package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketdocs/rocketdocs/pkg/config"
	"github.com/rocketdocs/rocketdocs/pkg/github"
	"github.com/rocketdocs/rocketdocs/pkg/store"
)

type fakeIdentifier struct {
	st *store.MemoryStore
}

func (f *fakeIdentifier) Identify(ctx context.Context, userID, repoURL string) (*store.Repo, error) {
	repo := &store.Repo{
		ID:        "repo-1",
		OwnerID:   userID,
		Name:      "acme/widget",
		RootDocID: "root",
		Docs: map[string]*store.Document{
			"root": {ID: "root", RepoID: "repo-1", OwnerID: userID, Kind: store.KindDir, Status: store.StatusNotStarted},
		},
		Dependencies: map[string]string{"root": ""},
		Status:       store.StatusNotStarted,
	}
	return repo, f.st.BatchCreateRepo(ctx, repo)
}

type fakeRunner struct {
	mu     sync.Mutex
	runs   []string
	block  chan struct{}
	notify chan struct{}
}

func (f *fakeRunner) Run(ctx context.Context, repoID string) error {
	f.mu.Lock()
	f.runs = append(f.runs, repoID)
	f.mu.Unlock()
	if f.notify != nil {
		f.notify <- struct{}{}
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

type fakeEmbedder struct {
	mu    sync.Mutex
	repos []string
	done  chan struct{}
}

func (f *fakeEmbedder) EmbedRepo(ctx context.Context, userID, repoID string) error {
	f.mu.Lock()
	f.repos = append(f.repos, repoID)
	f.mu.Unlock()
	if f.done != nil {
		close(f.done)
	}
	return nil
}

type fakeGenerator struct {
	mu   sync.Mutex
	docs []string
	done chan struct{}
}

func (f *fakeGenerator) Generate(ctx context.Context, docID, model string, childIDs []string) error {
	f.mu.Lock()
	f.docs = append(f.docs, docID)
	f.mu.Unlock()
	if f.done != nil {
		close(f.done)
	}
	return nil
}

type fakeStat struct {
	size int64
}

func (f *fakeStat) StatFileURL(ctx context.Context, fileURL string) (*github.Entry, error) {
	return &github.Entry{Name: "storage.go", Path: "chat/storage.go", Type: github.EntryTypeFile, Size: f.size}, nil
}

func newController(st *store.MemoryStore, runner *fakeRunner, embedder *fakeEmbedder, gen *fakeGenerator, stat *fakeStat) *Controller {
	cfg := &config.GenerationConfig{}
	cfg.SetDefaults()
	return New(st, &fakeIdentifier{st: st}, runner, embedder, gen, stat, cfg)
}

func TestSubmitRepoRunsAndEmbeds(t *testing.T) {
	st := store.NewMemoryStore()
	embedder := &fakeEmbedder{done: make(chan struct{})}
	runner := &fakeRunner{}
	c := newController(st, runner, embedder, &fakeGenerator{}, &fakeStat{})

	repo, err := c.SubmitRepo(context.Background(), "user-1", "https://github.com/acme/widget")
	require.NoError(t, err)
	assert.Equal(t, "repo-1", repo.ID)

	select {
	case <-embedder.done:
	case <-time.After(2 * time.Second):
		t.Fatal("embedding never ran")
	}
	assert.Equal(t, []string{"repo-1"}, runner.runs)
	assert.Equal(t, []string{"repo-1"}, embedder.repos)

	require.NoError(t, c.Shutdown(context.Background()))
}

func TestSubmitRepoGenerationRefusesConcurrentRun(t *testing.T) {
	st := store.NewMemoryStore()
	runner := &fakeRunner{block: make(chan struct{}), notify: make(chan struct{}, 1)}
	c := newController(st, runner, &fakeEmbedder{}, &fakeGenerator{}, &fakeStat{})

	_, err := c.SubmitRepo(context.Background(), "user-1", "https://github.com/acme/widget")
	require.NoError(t, err)
	<-runner.notify

	err = c.SubmitRepoGeneration(context.Background(), "user-1", "repo-1")
	require.ErrorIs(t, err, store.ErrBusy)

	close(runner.block)
	require.NoError(t, c.Shutdown(context.Background()))
}

func TestSubmitRepoGenerationRefusesBusyStatus(t *testing.T) {
	st := store.NewMemoryStore()
	c := newController(st, &fakeRunner{}, &fakeEmbedder{}, &fakeGenerator{}, &fakeStat{})

	_, err := (&fakeIdentifier{st: st}).Identify(context.Background(), "user-1", "")
	require.NoError(t, err)
	require.NoError(t, st.SetRepoStatus(context.Background(), "repo-1", store.StatusInProgress))

	err = c.SubmitRepoGeneration(context.Background(), "user-1", "repo-1")
	require.ErrorIs(t, err, store.ErrBusy)
}

func TestSubmitFileDoc(t *testing.T) {
	st := store.NewMemoryStore()
	gen := &fakeGenerator{done: make(chan struct{})}
	c := newController(st, &fakeRunner{}, &fakeEmbedder{}, gen, &fakeStat{size: 1200})

	doc, err := c.SubmitFileDoc(context.Background(), "user-1", "https://github.com/acme/widget/blob/main/chat/storage.go")
	require.NoError(t, err)
	assert.Equal(t, "chat/storage.go", doc.RelativePath)
	assert.Equal(t, store.StatusNotStarted, doc.Status)

	select {
	case <-gen.done:
	case <-time.After(2 * time.Second):
		t.Fatal("generation never ran")
	}
	assert.Equal(t, []string{doc.ID}, gen.docs)

	require.NoError(t, c.Shutdown(context.Background()))
}

func TestSubmitFileDocRejectsOversized(t *testing.T) {
	st := store.NewMemoryStore()
	c := newController(st, &fakeRunner{}, &fakeEmbedder{}, &fakeGenerator{}, &fakeStat{size: 500000})

	_, err := c.SubmitFileDoc(context.Background(), "user-1", "https://github.com/acme/widget/blob/main/big.go")
	require.ErrorIs(t, err, github.ErrInvalidURL)
}

func TestRegenerateFileDocBusy(t *testing.T) {
	st := store.NewMemoryStore()
	c := newController(st, &fakeRunner{}, &fakeEmbedder{}, &fakeGenerator{}, &fakeStat{})

	doc := &store.Document{ID: "doc-1", OwnerID: "user-1", Kind: store.KindFile, Status: store.StatusInProgress}
	require.NoError(t, st.CreateDoc(context.Background(), doc))

	err := c.RegenerateFileDoc(context.Background(), "user-1", "doc-1")
	require.ErrorIs(t, err, store.ErrBusy)
}

func TestCancelAndShutdown(t *testing.T) {
	st := store.NewMemoryStore()
	runner := &fakeRunner{block: make(chan struct{}), notify: make(chan struct{}, 1)}
	c := newController(st, runner, &fakeEmbedder{}, &fakeGenerator{}, &fakeStat{})

	_, err := c.SubmitRepo(context.Background(), "user-1", "https://github.com/acme/widget")
	require.NoError(t, err)
	<-runner.notify
	assert.True(t, c.Running("repo-1"))

	assert.True(t, c.Cancel("repo-1"))
	require.NoError(t, c.Shutdown(context.Background()))
	assert.False(t, c.Running("repo-1"))
	assert.False(t, c.Cancel("repo-1"))
}
