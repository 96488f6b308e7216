package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound indicates the record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrNotOwner indicates the record belongs to a different user.
	ErrNotOwner = errors.New("record not owned by user")

	// ErrBusy indicates the record is mid-generation and cannot be
	// mutated or deleted.
	ErrBusy = errors.New("record is still being generated")
)

// Collection names. Both are keyed by UUID.
const (
	CollectionDocumentation = "documentation"
	CollectionRepos         = "repos"
)

// Store is the durable document store. All writes are scoped updates keyed
// by document or repository id; ownership is partitioned by owner id.
type Store interface {
	// CreateDoc persists a new document record. The id must be set.
	CreateDoc(ctx context.Context, doc *Document) error

	// GetDoc fetches a document by id.
	GetDoc(ctx context.Context, docID string) (*Document, error)

	// GetUserDoc fetches a document and verifies ownership.
	GetUserDoc(ctx context.Context, userID, docID string) (*Document, error)

	// UpdateDoc overwrites a document record and, for repository-bound
	// documents, mirrors the change into the repo's embedded projection.
	UpdateDoc(ctx context.Context, doc *Document) error

	// DeleteDoc removes a document. Fails with ErrBusy while the document
	// is IN_PROGRESS.
	DeleteDoc(ctx context.Context, userID, docID string) error

	// BatchCreateRepo atomically persists a repository record and all of
	// its documents; no partial repository ever becomes visible.
	BatchCreateRepo(ctx context.Context, repo *Repo) error

	// GetRepo fetches a repository by id.
	GetRepo(ctx context.Context, repoID string) (*Repo, error)

	// GetUserRepo fetches a repository and verifies ownership.
	GetUserRepo(ctx context.Context, userID, repoID string) (*Repo, error)

	// ListUserRepos returns every repository owned by the user.
	ListUserRepos(ctx context.Context, userID string) ([]*Repo, error)

	// SetRepoStatus updates only the repository-level status.
	SetRepoStatus(ctx context.Context, repoID string, status Status) error

	// DeleteRepo removes a repository and its documents. Fails with
	// ErrBusy while the repository is IN_PROGRESS.
	DeleteRepo(ctx context.Context, userID, repoID string) error

	Close() error
}
