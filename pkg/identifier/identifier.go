// Package identifier walks a repository tree and decides which files and
// directories deserve documentation, producing the repo's dependency DAG.
package identifier

import (
	"context"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/rocketdocs/rocketdocs/pkg/github"
	"github.com/rocketdocs/rocketdocs/pkg/store"
)

// MaxFileSize is the largest file the generator will accept. Roughly
// 50k tokens at 4 characters per token, safely above the trim budget.
const MaxFileSize = 247500

// skipSuffixes excludes binary, asset, generated and lockfile names that
// never carry documentable source.
var skipSuffixes = []string{
	".png", ".jpg", ".jpeg", ".gif", ".svg", ".ico", ".webp", ".bmp",
	".woff", ".woff2", ".ttf", ".eot", ".otf",
	".mp3", ".mp4", ".wav", ".avi", ".mov",
	".zip", ".tar", ".gz", ".tgz", ".rar", ".7z",
	".exe", ".dll", ".so", ".dylib", ".bin", ".o", ".a", ".class",
	".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx",
	".pyc", ".pyo", ".db", ".sqlite",
	".min.js", ".min.css", ".map",
	".d.ts", ".d.js",
	".lock", "-lock.json", "-lock.yaml", ".sum",
}

// Classifier decides whether a file is code worth documenting. The zero
// ruleset is replaced by DefaultClassifier.
type Classifier interface {
	IsCode(name string) bool
}

// ExtensionClassifier classifies by file extension against an allow list.
type ExtensionClassifier struct {
	extensions map[string]bool
}

// DefaultClassifier accepts the common source languages.
func DefaultClassifier() *ExtensionClassifier {
	exts := []string{
		".py", ".js", ".jsx", ".ts", ".tsx", ".go", ".rb", ".java",
		".c", ".h", ".cpp", ".hpp", ".cc", ".cs", ".rs", ".php",
		".swift", ".kt", ".scala", ".sh", ".sql",
	}
	m := make(map[string]bool, len(exts))
	for _, e := range exts {
		m[e] = true
	}
	return &ExtensionClassifier{extensions: m}
}

func (c *ExtensionClassifier) IsCode(name string) bool {
	return c.extensions[strings.ToLower(path.Ext(name))]
}

// SourceHost is the slice of the source host adapter the identifier
// needs.
type SourceHost interface {
	GetRepository(ctx context.Context, repoURL string) (*github.Repository, error)
	ListContents(ctx context.Context, fullName, path string) ([]github.Entry, error)
}

// Identifier builds the documentation DAG for a repository.
type Identifier struct {
	host       SourceHost
	store      store.Store
	classifier Classifier

	// excludeDirs is the operator-configured directory exclusion list.
	excludeDirs map[string]bool
}

type Option func(*Identifier)

func WithClassifier(c Classifier) Option {
	return func(i *Identifier) { i.classifier = c }
}

func WithExcludedDirs(names []string) Option {
	return func(i *Identifier) {
		for _, name := range names {
			i.excludeDirs[name] = true
		}
	}
}

func New(host SourceHost, st store.Store, opts ...Option) *Identifier {
	i := &Identifier{
		host:        host,
		store:       st,
		classifier:  DefaultClassifier(),
		excludeDirs: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Identify walks the repository breadth-first, prunes undocumentable
// subtrees and atomically persists the resulting repo DAG. Every
// document starts NOT_STARTED.
func (i *Identifier) Identify(ctx context.Context, userID, repoURL string) (*store.Repo, error) {
	repository, err := i.host.GetRepository(ctx, repoURL)
	if err != nil {
		return nil, err
	}

	repoID := uuid.NewString()
	root := &store.Document{
		ID:           uuid.NewString(),
		RepoID:       repoID,
		OwnerID:      userID,
		SourceURL:    repository.HTMLURL,
		RelativePath: "",
		Kind:         store.KindDir,
		Status:       store.StatusNotStarted,
	}

	docs := map[string]*store.Document{root.ID: root}
	dependencies := map[string]string{root.ID: ""}

	queue := []*store.Document{root}
	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]

		entries, err := i.host.ListContents(ctx, repository.FullName, parent.RelativePath)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if i.skip(entry) {
				continue
			}
			doc := &store.Document{
				ID:           uuid.NewString(),
				RepoID:       repoID,
				OwnerID:      userID,
				SourceURL:    entry.HTMLURL,
				RelativePath: entry.Path,
				Kind:         store.Kind(entry.Type),
				Size:         entry.Size,
				Status:       store.StatusNotStarted,
			}
			docs[doc.ID] = doc
			dependencies[doc.ID] = parent.ID
			if entry.Type == github.EntryTypeDir {
				queue = append(queue, doc)
			}
		}
	}

	pruneEmptyDirs(docs, dependencies, root.ID)

	repo := &store.Repo{
		ID:           repoID,
		OwnerID:      userID,
		Name:         repository.FullName,
		RootDocID:    root.ID,
		Dependencies: dependencies,
		Docs:         docs,
		Version:      repository.Version,
		Status:       store.StatusNotStarted,
	}

	if err := i.store.BatchCreateRepo(ctx, repo); err != nil {
		return nil, err
	}
	return repo, nil
}

func (i *Identifier) skip(entry github.Entry) bool {
	name := entry.Name
	if entry.Type == github.EntryTypeDir {
		return strings.HasPrefix(name, ".") ||
			strings.HasPrefix(name, "_") ||
			name == "node_modules" ||
			i.excludeDirs[name]
	}

	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
		return true
	}
	lower := strings.ToLower(name)
	for _, suffix := range skipSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	if entry.Size > MaxFileSize {
		return true
	}
	return !i.classifier.IsCode(name)
}

// pruneEmptyDirs repeatedly removes childless directories (except the
// root) until only subtrees holding documentable files remain.
func pruneEmptyDirs(docs map[string]*store.Document, dependencies map[string]string, rootID string) {
	for {
		hasChild := make(map[string]bool, len(dependencies))
		for _, parent := range dependencies {
			if parent != "" {
				hasChild[parent] = true
			}
		}

		removed := false
		for id, doc := range docs {
			if id == rootID || doc.Kind != store.KindDir {
				continue
			}
			if !hasChild[id] {
				delete(docs, id)
				delete(dependencies, id)
				removed = true
			}
		}
		if !removed {
			return
		}
	}
}
