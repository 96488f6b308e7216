package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocOwnership(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, st.CreateDoc(ctx, &Document{ID: "d1", OwnerID: "alice"}))

	doc, err := st.GetUserDoc(ctx, "alice", "d1")
	require.NoError(t, err)
	assert.Equal(t, "d1", doc.ID)

	_, err = st.GetUserDoc(ctx, "bob", "d1")
	assert.ErrorIs(t, err, ErrNotOwner)

	_, err = st.GetUserDoc(ctx, "alice", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateDocMirrorsIntoRepo(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	repo := &Repo{
		ID:           "r1",
		OwnerID:      "alice",
		RootDocID:    "d1",
		Dependencies: map[string]string{"d1": ""},
		Docs: map[string]*Document{
			"d1": {ID: "d1", RepoID: "r1", OwnerID: "alice", Status: StatusNotStarted},
		},
	}
	require.NoError(t, st.BatchCreateRepo(ctx, repo))

	doc, err := st.GetDoc(ctx, "d1")
	require.NoError(t, err)
	doc.Status = StatusCompleted
	doc.Markdown = "# done"
	require.NoError(t, st.UpdateDoc(ctx, doc))

	stored, err := st.GetRepo(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, stored.Docs["d1"].Status)
	assert.Equal(t, "# done", stored.Docs["d1"].Markdown)
}

func TestUpdateDocUnknown(t *testing.T) {
	st := NewMemoryStore()
	err := st.UpdateDoc(context.Background(), &Document{ID: "ghost"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteDocBusy(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, st.CreateDoc(ctx, &Document{ID: "d1", OwnerID: "alice", Status: StatusInProgress}))
	assert.ErrorIs(t, st.DeleteDoc(ctx, "alice", "d1"), ErrBusy)

	doc, _ := st.GetDoc(ctx, "d1")
	doc.Status = StatusCompleted
	require.NoError(t, st.UpdateDoc(ctx, doc))
	require.NoError(t, st.DeleteDoc(ctx, "alice", "d1"))

	_, err := st.GetDoc(ctx, "d1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteRepoRemovesDocs(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	repo := &Repo{
		ID:      "r1",
		OwnerID: "alice",
		Docs: map[string]*Document{
			"d1": {ID: "d1", RepoID: "r1", OwnerID: "alice", Status: StatusCompleted},
			"d2": {ID: "d2", RepoID: "r1", OwnerID: "alice", Status: StatusCompleted},
		},
		Status: StatusCompleted,
	}
	require.NoError(t, st.BatchCreateRepo(ctx, repo))

	assert.ErrorIs(t, st.DeleteRepo(ctx, "bob", "r1"), ErrNotOwner)
	require.NoError(t, st.DeleteRepo(ctx, "alice", "r1"))

	_, err := st.GetDoc(ctx, "d1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = st.GetRepo(ctx, "r1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteRepoBusy(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, st.BatchCreateRepo(ctx, &Repo{ID: "r1", OwnerID: "alice", Status: StatusInProgress}))
	assert.ErrorIs(t, st.DeleteRepo(ctx, "alice", "r1"), ErrBusy)
}

func TestListUserRepos(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, st.BatchCreateRepo(ctx, &Repo{ID: "r1", OwnerID: "alice"}))
	require.NoError(t, st.BatchCreateRepo(ctx, &Repo{ID: "r2", OwnerID: "bob"}))

	repos, err := st.ListUserRepos(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, repos, 1)
	assert.Equal(t, "r1", repos[0].ID)
}

func TestCopiesAreIsolated(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, st.CreateDoc(ctx, &Document{ID: "d1", OwnerID: "alice", Extracted: map[string]any{"description": "x"}}))

	doc, _ := st.GetDoc(ctx, "d1")
	doc.Extracted["description"] = "mutated"
	doc.Status = StatusFailed

	fresh, _ := st.GetDoc(ctx, "d1")
	assert.Equal(t, "x", fresh.Extracted["description"])
	assert.NotEqual(t, StatusFailed, fresh.Status)
}

func TestChildrenInversion(t *testing.T) {
	repo := &Repo{
		Dependencies: map[string]string{
			"root": "",
			"a":    "root",
			"b":    "root",
			"c":    "b",
		},
	}

	children := repo.Children()
	assert.ElementsMatch(t, []string{"a", "b"}, children["root"])
	assert.Equal(t, []string{"c"}, children["b"])
	assert.Empty(t, children["a"])
}

func TestAggregateStatus(t *testing.T) {
	repo := &Repo{Docs: map[string]*Document{
		"a": {Status: StatusCompleted},
		"b": {Status: StatusCompleted},
	}}
	assert.Equal(t, StatusCompleted, repo.AggregateStatus())

	repo.Docs["b"].Status = StatusInProgress
	assert.Equal(t, StatusInProgress, repo.AggregateStatus())

	repo.Docs["b"].Status = StatusFailed
	assert.Equal(t, StatusFailed, repo.AggregateStatus())

	repo.Docs = map[string]*Document{"a": {Status: StatusNotStarted}}
	assert.Equal(t, StatusNotStarted, repo.AggregateStatus())
}
