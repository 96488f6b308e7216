package store

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store used for development and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	docs  map[string]*Document
	repos map[string]*Repo
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:  make(map[string]*Document),
		repos: make(map[string]*Repo),
	}
}

func copyDoc(doc *Document) *Document {
	clone := *doc
	if doc.Extracted != nil {
		clone.Extracted = make(map[string]any, len(doc.Extracted))
		for k, v := range doc.Extracted {
			clone.Extracted[k] = v
		}
	}
	return &clone
}

func copyRepo(repo *Repo) *Repo {
	clone := *repo
	clone.Dependencies = make(map[string]string, len(repo.Dependencies))
	for k, v := range repo.Dependencies {
		clone.Dependencies[k] = v
	}
	clone.Docs = make(map[string]*Document, len(repo.Docs))
	for k, v := range repo.Docs {
		clone.Docs[k] = copyDoc(v)
	}
	return &clone
}

func (s *MemoryStore) CreateDoc(ctx context.Context, doc *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.ID] = copyDoc(doc)
	return nil
}

func (s *MemoryStore) GetDoc(ctx context.Context, docID string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[docID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyDoc(doc), nil
}

func (s *MemoryStore) GetUserDoc(ctx context.Context, userID, docID string) (*Document, error) {
	doc, err := s.GetDoc(ctx, docID)
	if err != nil {
		return nil, err
	}
	if doc.OwnerID != userID {
		return nil, ErrNotOwner
	}
	return doc, nil
}

func (s *MemoryStore) UpdateDoc(ctx context.Context, doc *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[doc.ID]; !ok {
		return ErrNotFound
	}
	s.docs[doc.ID] = copyDoc(doc)

	if doc.RepoID != "" {
		if repo, ok := s.repos[doc.RepoID]; ok {
			repo.Docs[doc.ID] = copyDoc(doc)
		}
	}
	return nil
}

func (s *MemoryStore) DeleteDoc(ctx context.Context, userID, docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[docID]
	if !ok {
		return ErrNotFound
	}
	if doc.OwnerID != userID {
		return ErrNotOwner
	}
	if doc.Status == StatusInProgress {
		return ErrBusy
	}
	delete(s.docs, docID)
	return nil
}

func (s *MemoryStore) BatchCreateRepo(ctx context.Context, repo *Repo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.repos[repo.ID] = copyRepo(repo)
	for id, doc := range repo.Docs {
		s.docs[id] = copyDoc(doc)
	}
	return nil
}

func (s *MemoryStore) GetRepo(ctx context.Context, repoID string) (*Repo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	repo, ok := s.repos[repoID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyRepo(repo), nil
}

func (s *MemoryStore) GetUserRepo(ctx context.Context, userID, repoID string) (*Repo, error) {
	repo, err := s.GetRepo(ctx, repoID)
	if err != nil {
		return nil, err
	}
	if repo.OwnerID != userID {
		return nil, ErrNotOwner
	}
	return repo, nil
}

func (s *MemoryStore) ListUserRepos(ctx context.Context, userID string) ([]*Repo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	repos := make([]*Repo, 0)
	for _, repo := range s.repos {
		if repo.OwnerID == userID {
			repos = append(repos, copyRepo(repo))
		}
	}
	return repos, nil
}

func (s *MemoryStore) SetRepoStatus(ctx context.Context, repoID string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	repo, ok := s.repos[repoID]
	if !ok {
		return ErrNotFound
	}
	repo.Status = status
	return nil
}

func (s *MemoryStore) DeleteRepo(ctx context.Context, userID, repoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	repo, ok := s.repos[repoID]
	if !ok {
		return ErrNotFound
	}
	if repo.OwnerID != userID {
		return ErrNotOwner
	}
	if repo.Status == StatusInProgress {
		return ErrBusy
	}
	for id := range repo.Docs {
		delete(s.docs, id)
	}
	delete(s.repos, repoID)
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
