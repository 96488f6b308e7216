// Package store persists documentation records and repository trees.
package store

import (
	"github.com/rocketdocs/rocketdocs/pkg/llms"
)

// Status is the lifecycle state of a document or repository.
type Status string

const (
	StatusNotStarted Status = "NOT_STARTED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Terminal reports whether a status permits regeneration.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Kind discriminates documents.
type Kind string

const (
	KindFile Kind = "file"
	KindDir  Kind = "dir"
)

// Document is one unit of generated documentation for a file or directory.
// Extracted and Markdown are non-empty iff Status is COMPLETED.
type Document struct {
	ID           string         `firestore:"id" json:"id"`
	RepoID       string         `firestore:"repo,omitempty" json:"repo,omitempty"`
	OwnerID      string         `firestore:"owner" json:"owner"`
	SourceURL    string         `firestore:"github_url" json:"github_url"`
	RelativePath string         `firestore:"relative_path" json:"relative_path"`
	Kind         Kind           `firestore:"type" json:"type"`
	Size         int64          `firestore:"size,omitempty" json:"size,omitempty"`
	Status       Status         `firestore:"status" json:"status"`
	Extracted    map[string]any `firestore:"extracted,omitempty" json:"extracted,omitempty"`
	Markdown     string         `firestore:"markdown_content,omitempty" json:"markdown_content,omitempty"`
	Usage        llms.Usage     `firestore:"usage,omitempty" json:"usage,omitempty"`
}

// Description returns the stable cross-kind extracted field.
func (d *Document) Description() string {
	if d.Extracted == nil {
		return ""
	}
	if desc, ok := d.Extracted["description"].(string); ok {
		return desc
	}
	return ""
}

// Repo is a repository and its documentation dependency tree.
// Dependencies maps every child document id to its parent id; the root maps
// to the empty string. Docs embeds a projection of every document.
type Repo struct {
	ID           string               `firestore:"id" json:"id"`
	OwnerID      string               `firestore:"owner" json:"owner"`
	Name         string               `firestore:"repo_name" json:"repo_name"`
	RootDocID    string               `firestore:"root_doc" json:"root_doc"`
	Dependencies map[string]string    `firestore:"dependencies" json:"dependencies"`
	Docs         map[string]*Document `firestore:"docs" json:"docs"`
	Version      string               `firestore:"version,omitempty" json:"version,omitempty"`
	Status       Status               `firestore:"status" json:"status"`
}

// Children inverts the dependencies map. Child lists are not persisted;
// they are always reconstructed from Dependencies.
func (r *Repo) Children() map[string][]string {
	children := make(map[string][]string, len(r.Docs))
	for child, parent := range r.Dependencies {
		if parent == "" {
			continue
		}
		children[parent] = append(children[parent], child)
	}
	return children
}

// AggregateStatus derives the repository status from its documents:
// FAILED if any document failed, COMPLETED only when every document
// completed, IN_PROGRESS if any work has started.
func (r *Repo) AggregateStatus() Status {
	completed := 0
	started := false
	for _, doc := range r.Docs {
		switch doc.Status {
		case StatusFailed:
			return StatusFailed
		case StatusCompleted:
			completed++
			started = true
		case StatusInProgress:
			started = true
		}
	}
	if completed == len(r.Docs) && len(r.Docs) > 0 {
		return StatusCompleted
	}
	if started {
		return StatusInProgress
	}
	return StatusNotStarted
}
