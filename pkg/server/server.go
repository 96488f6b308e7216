// Package server is the HTTP surface: routing, bearer authentication,
// request decoding and the error-kind to status-code mapping.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rocketdocs/rocketdocs/pkg/agent"
	"github.com/rocketdocs/rocketdocs/pkg/auth"
	"github.com/rocketdocs/rocketdocs/pkg/config"
	"github.com/rocketdocs/rocketdocs/pkg/embedding"
	"github.com/rocketdocs/rocketdocs/pkg/generator"
	"github.com/rocketdocs/rocketdocs/pkg/github"
	"github.com/rocketdocs/rocketdocs/pkg/observability"
	"github.com/rocketdocs/rocketdocs/pkg/search"
	"github.com/rocketdocs/rocketdocs/pkg/store"
)

// Jobs is the slice of the job controller the handlers need.
type Jobs interface {
	SubmitRepo(ctx context.Context, userID, repoURL string) (*store.Repo, error)
	SubmitRepoGeneration(ctx context.Context, userID, repoID string) error
	SubmitFileDoc(ctx context.Context, userID, fileURL string) (*store.Document, error)
	RegenerateFileDoc(ctx context.Context, userID, docID string) error
}

// Identifier resolves a repository URL into a persisted documentation
// tree without starting generation.
type Identifier interface {
	Identify(ctx context.Context, userID, repoURL string) (*store.Repo, error)
}

// Searcher answers semantic queries scoped to one repository.
type Searcher interface {
	Search(ctx context.Context, repoID, query string) ([]search.Result, error)
}

// Chatter streams agent events for one question.
type Chatter interface {
	Chat(ctx context.Context, userID, repoID, query, model string) <-chan agent.Event
}

// NamespacePurger removes a repository's embeddings.
type NamespacePurger interface {
	DeleteNamespace(ctx context.Context, namespace string) error
}

// Server serves the documentation API.
type Server struct {
	cfg        *config.ServerConfig
	agentCfg   *config.AgentConfig
	verifier   auth.Verifier
	store      store.Store
	jobs       Jobs
	identifier Identifier
	searcher   Searcher
	chatter    Chatter
	purger     NamespacePurger

	httpServer *http.Server
}

func New(
	cfg *config.ServerConfig,
	agentCfg *config.AgentConfig,
	verifier auth.Verifier,
	st store.Store,
	jobs Jobs,
	identifier Identifier,
	searcher Searcher,
	chatter Chatter,
	purger NamespacePurger,
) *Server {
	s := &Server{
		cfg:        cfg,
		agentCfg:   agentCfg,
		verifier:   verifier,
		store:      st,
		jobs:       jobs,
		identifier: identifier,
		searcher:   searcher,
		chatter:    chatter,
		purger:     purger,
	}
	s.httpServer = &http.Server{
		Addr:              cfg.Address(),
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(loggingMiddleware)
	r.Use(corsMiddleware(s.cfg.AllowedOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/metrics", observability.Handler().ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Post("/repos", s.handleSubmitRepo)
		r.Post("/repos/identify", s.handleIdentifyRepo)
		r.Get("/repos", s.handleListRepos)

		r.Route("/repos/{repo_id}", func(r chi.Router) {
			r.Get("/", s.handleGetRepo)
			r.Delete("/", s.handleDeleteRepo)
			r.Post("/generate", s.handleGenerateRepo)
			r.Get("/search", s.handleSearchRepo)
			r.Post("/chat", s.handleChatRepo)
			r.Get("/{doc_id}", s.handleGetRepoDoc)
		})

		r.Post("/file-docs", s.handleSubmitFileDoc)
		r.Get("/file-docs/{doc_id}", s.handleGetFileDoc)
		r.Put("/file-docs/{doc_id}", s.handleRegenerateFileDoc)
		r.Delete("/file-docs/{doc_id}", s.handleDeleteFileDoc)
	})

	return r
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start blocks serving requests until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	slog.Info("HTTP server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError maps error kinds onto status codes. Upstream detail never
// crosses the boundary; clients get the kind's message only.
func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, github.ErrInvalidURL),
		errors.Is(err, generator.ErrEmptyInput),
		errors.Is(err, store.ErrBusy):
		code = http.StatusBadRequest
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, store.ErrNotOwner):
		code = http.StatusUnauthorized
	case errors.Is(err, store.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, embedding.ErrNamespaceExists):
		code = http.StatusConflict
	}

	if code == http.StatusInternalServerError {
		slog.Error("Request failed", "error", err)
		writeJSON(w, code, map[string]string{"detail": "internal server error"})
		return
	}
	writeJSON(w, code, map[string]string{"detail": err.Error()})
}

func badRequest(w http.ResponseWriter, detail string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"detail": detail})
}
