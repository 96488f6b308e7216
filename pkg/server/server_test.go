package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketdocs/rocketdocs/pkg/agent"
	"github.com/rocketdocs/rocketdocs/pkg/auth"
	"github.com/rocketdocs/rocketdocs/pkg/config"
	"github.com/rocketdocs/rocketdocs/pkg/github"
	"github.com/rocketdocs/rocketdocs/pkg/search"
	"github.com/rocketdocs/rocketdocs/pkg/store"
)

type fakeJobs struct {
	submitRepoErr error
	generateErr   error
	fileDocErr    error
	regenErr      error

	submittedURL string
}

func (f *fakeJobs) SubmitRepo(ctx context.Context, userID, repoURL string) (*store.Repo, error) {
	if f.submitRepoErr != nil {
		return nil, f.submitRepoErr
	}
	f.submittedURL = repoURL
	return &store.Repo{ID: "repo-1", OwnerID: userID}, nil
}

func (f *fakeJobs) SubmitRepoGeneration(ctx context.Context, userID, repoID string) error {
	return f.generateErr
}

func (f *fakeJobs) SubmitFileDoc(ctx context.Context, userID, fileURL string) (*store.Document, error) {
	if f.fileDocErr != nil {
		return nil, f.fileDocErr
	}
	return &store.Document{ID: "doc-9", OwnerID: userID, SourceURL: fileURL}, nil
}

func (f *fakeJobs) RegenerateFileDoc(ctx context.Context, userID, docID string) error {
	return f.regenErr
}

type fakeIdentifier struct {
	repo *store.Repo
	err  error
}

func (f *fakeIdentifier) Identify(ctx context.Context, userID, repoURL string) (*store.Repo, error) {
	return f.repo, f.err
}

type fakeSearcher struct {
	results []search.Result
	err     error
	query   string
}

func (f *fakeSearcher) Search(ctx context.Context, repoID, query string) ([]search.Result, error) {
	f.query = query
	return f.results, f.err
}

type fakeChatter struct {
	events []agent.Event
}

func (f *fakeChatter) Chat(ctx context.Context, userID, repoID, query, model string) <-chan agent.Event {
	out := make(chan agent.Event)
	go func() {
		defer close(out)
		for _, event := range f.events {
			out <- event
		}
	}()
	return out
}

type fakePurger struct {
	purged []string
	err    error
}

func (f *fakePurger) DeleteNamespace(ctx context.Context, namespace string) error {
	f.purged = append(f.purged, namespace)
	return f.err
}

type harness struct {
	server   *httptest.Server
	store    *store.MemoryStore
	jobs     *fakeJobs
	ident    *fakeIdentifier
	searcher *fakeSearcher
	chatter  *fakeChatter
	purger   *fakePurger
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	serverCfg := &config.ServerConfig{}
	serverCfg.SetDefaults()
	agentCfg := &config.AgentConfig{}
	agentCfg.SetDefaults()

	h := &harness{
		store:    store.NewMemoryStore(),
		jobs:     &fakeJobs{},
		ident:    &fakeIdentifier{},
		searcher: &fakeSearcher{},
		chatter:  &fakeChatter{},
		purger:   &fakePurger{},
	}
	verifier := auth.NewStaticVerifier(map[string]string{
		"alice-token": "alice",
		"bob-token":   "bob",
	})

	s := New(serverCfg, agentCfg, verifier, h.store, h.jobs, h.ident, h.searcher, h.chatter, h.purger)
	h.server = httptest.NewServer(s.Handler())
	t.Cleanup(h.server.Close)
	return h
}

func (h *harness) request(t *testing.T, method, path, token, body string) *http.Response {
	t.Helper()

	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req, err := http.NewRequest(method, h.server.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func seedRepo(t *testing.T, st *store.MemoryStore, owner string) *store.Repo {
	t.Helper()

	docs := map[string]*store.Document{
		"root": {ID: "root", RepoID: "repo-1", OwnerID: owner, RelativePath: "", Kind: store.KindDir, Status: store.StatusCompleted},
		"pkg":  {ID: "pkg", RepoID: "repo-1", OwnerID: owner, RelativePath: "pkg", Kind: store.KindDir, Status: store.StatusCompleted},
		"main": {ID: "main", RepoID: "repo-1", OwnerID: owner, RelativePath: "main.py", Kind: store.KindFile, Status: store.StatusCompleted, Markdown: "# main"},
		"util": {ID: "util", RepoID: "repo-1", OwnerID: owner, RelativePath: "pkg/util.py", Kind: store.KindFile, Status: store.StatusCompleted},
	}
	repo := &store.Repo{
		ID:        "repo-1",
		OwnerID:   owner,
		Name:      "octo/demo",
		RootDocID: "root",
		Dependencies: map[string]string{
			"root": "",
			"pkg":  "root",
			"main": "root",
			"util": "pkg",
		},
		Docs:   docs,
		Status: store.StatusCompleted,
	}
	require.NoError(t, st.BatchCreateRepo(context.Background(), repo))
	return repo
}

func TestHealthIsPublic(t *testing.T) {
	h := newHarness(t)

	resp := h.request(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[map[string]string](t, resp)
	assert.Equal(t, "ok", body["status"])
}

func TestAuthRequired(t *testing.T) {
	h := newHarness(t)

	resp := h.request(t, http.MethodGet, "/repos", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = h.request(t, http.MethodGet, "/repos", "wrong-token", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSubmitRepo(t *testing.T) {
	h := newHarness(t)

	resp := h.request(t, http.MethodPost, "/repos", "alice-token",
		`{"github_url": "https://github.com/octo/demo"}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	body := decodeBody[acceptedResponse](t, resp)
	assert.Equal(t, "repo-1", body.ID)
	assert.NotEmpty(t, body.Message)
	assert.Equal(t, "https://github.com/octo/demo", h.jobs.submittedURL)
}

func TestSubmitRepoInvalidURL(t *testing.T) {
	h := newHarness(t)
	h.jobs.submitRepoErr = fmt.Errorf("%w: %q", github.ErrInvalidURL, "nope")

	resp := h.request(t, http.MethodPost, "/repos", "alice-token", `{"github_url": "nope"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSubmitRepoMissingURL(t *testing.T) {
	h := newHarness(t)

	resp := h.request(t, http.MethodPost, "/repos", "alice-token", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestIdentifyRepo(t *testing.T) {
	h := newHarness(t)
	h.ident.repo = &store.Repo{
		ID: "repo-2",
		Docs: map[string]*store.Document{
			"b": {ID: "b", RelativePath: "src", Kind: store.KindDir},
			"a": {ID: "a", RelativePath: "a.py", Kind: store.KindFile},
		},
	}

	resp := h.request(t, http.MethodPost, "/repos/identify", "alice-token",
		`{"github_url": "https://github.com/octo/demo"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[identifyResponse](t, resp)
	assert.Equal(t, "repo-2", body.ID)
	require.Len(t, body.Items, 2)
	assert.Equal(t, "a.py", body.Items[0].Path)
	assert.Equal(t, store.KindFile, body.Items[0].Type)
	assert.Equal(t, "src", body.Items[1].Path)
}

func TestListRepos(t *testing.T) {
	h := newHarness(t)
	seedRepo(t, h.store, "alice")

	resp := h.request(t, http.MethodGet, "/repos", "alice-token", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[map[string][]repoSummary](t, resp)
	require.Len(t, body["repos"], 1)
	summary := body["repos"][0]
	assert.Equal(t, "octo/demo", summary.Name)
	assert.Equal(t, store.StatusCompleted, summary.Status)
	assert.Len(t, summary.DocsStatus, 4)

	// Another user sees nothing.
	resp = h.request(t, http.MethodGet, "/repos", "bob-token", "")
	body = decodeBody[map[string][]repoSummary](t, resp)
	assert.Empty(t, body["repos"])
}

func TestGetRepoTree(t *testing.T) {
	h := newHarness(t)
	seedRepo(t, h.store, "alice")

	resp := h.request(t, http.MethodGet, "/repos/repo-1", "alice-token", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[map[string]repoView](t, resp)
	view := body["repo"]
	assert.Equal(t, "octo/demo", view.Name)
	assert.Equal(t, "alice", view.OwnerID)

	require.NotNil(t, view.Tree)
	assert.Equal(t, "root", view.Tree.ID)
	require.Len(t, view.Tree.Children, 2)
	assert.Equal(t, "main.py", view.Tree.Children[0].Path)
	assert.Equal(t, "pkg", view.Tree.Children[1].Path)
	require.Len(t, view.Tree.Children[1].Children, 1)
	assert.Equal(t, "pkg/util.py", view.Tree.Children[1].Children[0].Path)
}

func TestGetRepoNotOwner(t *testing.T) {
	h := newHarness(t)
	seedRepo(t, h.store, "alice")

	resp := h.request(t, http.MethodGet, "/repos/repo-1", "bob-token", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGetRepoNotFound(t *testing.T) {
	h := newHarness(t)

	resp := h.request(t, http.MethodGet, "/repos/missing", "alice-token", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetRepoDoc(t *testing.T) {
	h := newHarness(t)
	seedRepo(t, h.store, "alice")

	resp := h.request(t, http.MethodGet, "/repos/repo-1/main", "alice-token", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[docView](t, resp)
	assert.Equal(t, "main", body.ID)
	assert.Equal(t, "main.py", body.RelativePath)
	assert.Equal(t, "# main", body.Markdown)
}

func TestGetRepoDocMismatch(t *testing.T) {
	h := newHarness(t)
	seedRepo(t, h.store, "alice")
	require.NoError(t, h.store.CreateDoc(context.Background(), &store.Document{
		ID: "stray", OwnerID: "alice", RepoID: "other-repo",
	}))

	resp := h.request(t, http.MethodGet, "/repos/repo-1/stray", "alice-token", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDeleteRepoPurgesNamespace(t *testing.T) {
	h := newHarness(t)
	seedRepo(t, h.store, "alice")

	resp := h.request(t, http.MethodDelete, "/repos/repo-1", "alice-token", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"repo-1"}, h.purger.purged)

	_, err := h.store.GetRepo(context.Background(), "repo-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteRepoBusy(t *testing.T) {
	h := newHarness(t)
	repo := seedRepo(t, h.store, "alice")
	require.NoError(t, h.store.SetRepoStatus(context.Background(), repo.ID, store.StatusInProgress))

	resp := h.request(t, http.MethodDelete, "/repos/repo-1", "alice-token", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, h.purger.purged)
}

func TestSearchRepo(t *testing.T) {
	h := newHarness(t)
	seedRepo(t, h.store, "alice")
	h.searcher.results = []search.Result{
		{DocID: "main", Score: 0.91, ChunkContent: "the game board"},
	}

	resp := h.request(t, http.MethodGet, "/repos/repo-1/search?query=game+board", "alice-token", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[[]search.Result](t, resp)
	require.Len(t, body, 1)
	assert.Equal(t, "main", body[0].DocID)
	assert.Equal(t, "game board", h.searcher.query)
}

func TestSearchRepoMissingQuery(t *testing.T) {
	h := newHarness(t)
	seedRepo(t, h.store, "alice")

	resp := h.request(t, http.MethodGet, "/repos/repo-1/search", "alice-token", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSearchRepoNotOwner(t *testing.T) {
	h := newHarness(t)
	seedRepo(t, h.store, "alice")

	resp := h.request(t, http.MethodGet, "/repos/repo-1/search?query=x", "bob-token", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestChatStreamsEvents(t *testing.T) {
	h := newHarness(t)
	seedRepo(t, h.store, "alice")
	h.chatter.events = []agent.Event{
		{Action: agent.ActionSearch, Output: "board creation"},
		{Action: agent.ActionFinish, Output: "Use the new_board helper."},
	}

	resp := h.request(t, http.MethodPost, "/repos/repo-1/chat", "alice-token",
		`{"query": "how do I create a board?"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/x-ndjson", resp.Header.Get("Content-Type"))

	var events []agent.Event
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		var event agent.Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &event))
		events = append(events, event)
	}
	require.NoError(t, scanner.Err())

	require.Len(t, events, 2)
	assert.Equal(t, agent.ActionSearch, events[0].Action)
	assert.Equal(t, agent.ActionFinish, events[1].Action)
	assert.Equal(t, "Use the new_board helper.", events[1].Output)
}

func TestChatMissingQuery(t *testing.T) {
	h := newHarness(t)
	seedRepo(t, h.store, "alice")

	resp := h.request(t, http.MethodPost, "/repos/repo-1/chat", "alice-token", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGenerateRepoBusy(t *testing.T) {
	h := newHarness(t)
	h.jobs.generateErr = fmt.Errorf("%w: repo repo-1", store.ErrBusy)

	resp := h.request(t, http.MethodPost, "/repos/repo-1/generate", "alice-token", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGenerateRepo(t *testing.T) {
	h := newHarness(t)

	resp := h.request(t, http.MethodPost, "/repos/repo-1/generate", "alice-token", "")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	body := decodeBody[acceptedResponse](t, resp)
	assert.Equal(t, "repo-1", body.ID)
}

func TestFileDocLifecycle(t *testing.T) {
	h := newHarness(t)

	resp := h.request(t, http.MethodPost, "/file-docs", "alice-token",
		`{"github_url": "https://github.com/octo/demo/blob/main/a.py"}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	accepted := decodeBody[acceptedResponse](t, resp)
	assert.Equal(t, "doc-9", accepted.ID)

	require.NoError(t, h.store.CreateDoc(context.Background(), &store.Document{
		ID: "doc-9", OwnerID: "alice", RelativePath: "a.py", Status: store.StatusCompleted,
	}))

	resp = h.request(t, http.MethodGet, "/file-docs/doc-9", "alice-token", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	doc := decodeBody[store.Document](t, resp)
	assert.Equal(t, "a.py", doc.RelativePath)

	resp = h.request(t, http.MethodPut, "/file-docs/doc-9", "alice-token", "")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp = h.request(t, http.MethodDelete, "/file-docs/doc-9", "alice-token", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	_, err := h.store.GetDoc(context.Background(), "doc-9")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRegenerateFileDocBusy(t *testing.T) {
	h := newHarness(t)
	h.jobs.regenErr = fmt.Errorf("%w: doc doc-9", store.ErrBusy)

	resp := h.request(t, http.MethodPut, "/file-docs/doc-9", "alice-token", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDeleteFileDocBusy(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.CreateDoc(context.Background(), &store.Document{
		ID: "doc-9", OwnerID: "alice", Status: store.StatusInProgress,
	}))

	resp := h.request(t, http.MethodDelete, "/file-docs/doc-9", "alice-token", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	h := newHarness(t)

	req, err := http.NewRequest(http.MethodOptions, h.server.URL+"/repos", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.example.com")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestCORSAllowList(t *testing.T) {
	serverCfg := &config.ServerConfig{AllowedOrigins: []string{"https://app.example.com"}}
	serverCfg.SetDefaults()
	agentCfg := &config.AgentConfig{}
	agentCfg.SetDefaults()

	verifier := auth.NewStaticVerifier(nil)
	s := New(serverCfg, agentCfg, verifier, store.NewMemoryStore(),
		&fakeJobs{}, &fakeIdentifier{}, &fakeSearcher{}, &fakeChatter{}, &fakePurger{})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/repos", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.example.com")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "https://app.example.com", resp.Header.Get("Access-Control-Allow-Origin"))

	req, err = http.NewRequest(http.MethodOptions, ts.URL+"/repos", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://evil.example.com")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}
