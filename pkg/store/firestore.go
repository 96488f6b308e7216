package store

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rocketdocs/rocketdocs/pkg/config"
)

// FirestoreStore is the production Store backed by Cloud Firestore.
type FirestoreStore struct {
	client *firestore.Client
}

func NewFirestoreStoreFromConfig(ctx context.Context, cfg *config.StoreConfig) (*FirestoreStore, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := firestore.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	return &FirestoreStore{client: client}, nil
}

func (s *FirestoreStore) docRef(docID string) *firestore.DocumentRef {
	return s.client.Collection(CollectionDocumentation).Doc(docID)
}

func (s *FirestoreStore) repoRef(repoID string) *firestore.DocumentRef {
	return s.client.Collection(CollectionRepos).Doc(repoID)
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func (s *FirestoreStore) CreateDoc(ctx context.Context, doc *Document) error {
	if _, err := s.docRef(doc.ID).Set(ctx, doc); err != nil {
		return fmt.Errorf("failed to create document %s: %w", doc.ID, err)
	}
	return nil
}

func (s *FirestoreStore) GetDoc(ctx context.Context, docID string) (*Document, error) {
	snapshot, err := s.docRef(docID).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get document %s: %w", docID, err)
	}

	var doc Document
	if err := snapshot.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode document %s: %w", docID, err)
	}
	return &doc, nil
}

func (s *FirestoreStore) GetUserDoc(ctx context.Context, userID, docID string) (*Document, error) {
	doc, err := s.GetDoc(ctx, docID)
	if err != nil {
		return nil, err
	}
	if doc.OwnerID != userID {
		return nil, ErrNotOwner
	}
	return doc, nil
}

func (s *FirestoreStore) UpdateDoc(ctx context.Context, doc *Document) error {
	if _, err := s.docRef(doc.ID).Set(ctx, doc); err != nil {
		return fmt.Errorf("failed to update document %s: %w", doc.ID, err)
	}

	if doc.RepoID != "" {
		_, err := s.repoRef(doc.RepoID).Update(ctx, []firestore.Update{
			{FieldPath: firestore.FieldPath{"docs", doc.ID}, Value: doc},
		})
		if err != nil && !isNotFound(err) {
			return fmt.Errorf("failed to mirror document %s into repo %s: %w", doc.ID, doc.RepoID, err)
		}
	}
	return nil
}

func (s *FirestoreStore) DeleteDoc(ctx context.Context, userID, docID string) error {
	doc, err := s.GetUserDoc(ctx, userID, docID)
	if err != nil {
		return err
	}
	if doc.Status == StatusInProgress {
		return ErrBusy
	}
	if _, err := s.docRef(docID).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", docID, err)
	}
	return nil
}

func (s *FirestoreStore) BatchCreateRepo(ctx context.Context, repo *Repo) error {
	// A transaction keeps the repository and its documents atomic; no
	// partial repository ever becomes visible.
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if err := tx.Set(s.repoRef(repo.ID), repo); err != nil {
			return err
		}
		for id, doc := range repo.Docs {
			if err := tx.Set(s.docRef(id), doc); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to batch create repo %s: %w", repo.ID, err)
	}
	return nil
}

func (s *FirestoreStore) GetRepo(ctx context.Context, repoID string) (*Repo, error) {
	snapshot, err := s.repoRef(repoID).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get repo %s: %w", repoID, err)
	}

	var repo Repo
	if err := snapshot.DataTo(&repo); err != nil {
		return nil, fmt.Errorf("failed to decode repo %s: %w", repoID, err)
	}
	return &repo, nil
}

func (s *FirestoreStore) GetUserRepo(ctx context.Context, userID, repoID string) (*Repo, error) {
	repo, err := s.GetRepo(ctx, repoID)
	if err != nil {
		return nil, err
	}
	if repo.OwnerID != userID {
		return nil, ErrNotOwner
	}
	return repo, nil
}

func (s *FirestoreStore) ListUserRepos(ctx context.Context, userID string) ([]*Repo, error) {
	iter := s.client.Collection(CollectionRepos).Where("owner", "==", userID).Documents(ctx)
	defer iter.Stop()

	repos := make([]*Repo, 0)
	for {
		snapshot, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list repos: %w", err)
		}

		var repo Repo
		if err := snapshot.DataTo(&repo); err != nil {
			return nil, fmt.Errorf("failed to decode repo %s: %w", snapshot.Ref.ID, err)
		}
		repos = append(repos, &repo)
	}
	return repos, nil
}

func (s *FirestoreStore) SetRepoStatus(ctx context.Context, repoID string, repoStatus Status) error {
	_, err := s.repoRef(repoID).Update(ctx, []firestore.Update{
		{Path: "status", Value: repoStatus},
	})
	if err != nil {
		if isNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to update repo %s status: %w", repoID, err)
	}
	return nil
}

func (s *FirestoreStore) DeleteRepo(ctx context.Context, userID, repoID string) error {
	repo, err := s.GetUserRepo(ctx, userID, repoID)
	if err != nil {
		return err
	}
	if repo.Status == StatusInProgress {
		return ErrBusy
	}

	err = s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		for id := range repo.Docs {
			if err := tx.Delete(s.docRef(id)); err != nil {
				return err
			}
		}
		return tx.Delete(s.repoRef(repoID))
	})
	if err != nil {
		return fmt.Errorf("failed to delete repo %s: %w", repoID, err)
	}
	return nil
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}
