package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/rocketdocs/rocketdocs/pkg/store"
)

type repoRequest struct {
	GitHubURL string `json:"github_url"`
}

type acceptedResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

func decodeRepoRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req repoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "request body must be JSON")
		return "", false
	}
	if req.GitHubURL == "" {
		badRequest(w, "Required field 'github_url' is missing.")
		return "", false
	}
	return req.GitHubURL, true
}

func (s *Server) handleSubmitRepo(w http.ResponseWriter, r *http.Request) {
	repoURL, ok := decodeRepoRequest(w, r)
	if !ok {
		return
	}

	repo, err := s.jobs.SubmitRepo(r.Context(), userID(r), repoURL)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, acceptedResponse{
		Message: "Documentation generation has been started.",
		ID:      repo.ID,
	})
}

type identifyItem struct {
	ID   string     `json:"id"`
	Path string     `json:"path"`
	Type store.Kind `json:"type"`
}

type identifyResponse struct {
	Message string         `json:"message"`
	ID      string         `json:"id"`
	Items   []identifyItem `json:"items_to_document"`
}

func (s *Server) handleIdentifyRepo(w http.ResponseWriter, r *http.Request) {
	repoURL, ok := decodeRepoRequest(w, r)
	if !ok {
		return
	}

	repo, err := s.identifier.Identify(r.Context(), userID(r), repoURL)
	if err != nil {
		writeError(w, err)
		return
	}

	items := make([]identifyItem, 0, len(repo.Docs))
	for _, doc := range repo.Docs {
		items = append(items, identifyItem{ID: doc.ID, Path: doc.RelativePath, Type: doc.Kind})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Path < items[j].Path })

	writeJSON(w, http.StatusOK, identifyResponse{
		Message: "Repository identified.",
		ID:      repo.ID,
		Items:   items,
	})
}

func (s *Server) handleGenerateRepo(w http.ResponseWriter, r *http.Request) {
	repoID := chi.URLParam(r, "repo_id")
	if err := s.jobs.SubmitRepoGeneration(r.Context(), userID(r), repoID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, acceptedResponse{
		Message: "Documentation generation has been started.",
		ID:      repoID,
	})
}

type docStatus struct {
	ID     string       `json:"id"`
	Path   string       `json:"path"`
	Status store.Status `json:"status"`
}

type repoSummary struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	Status     store.Status `json:"status"`
	DocsStatus []docStatus  `json:"docs_status"`
}

func (s *Server) handleListRepos(w http.ResponseWriter, r *http.Request) {
	repos, err := s.store.ListUserRepos(r.Context(), userID(r))
	if err != nil {
		writeError(w, err)
		return
	}

	summaries := make([]repoSummary, 0, len(repos))
	for _, repo := range repos {
		statuses := make([]docStatus, 0, len(repo.Docs))
		for _, doc := range repo.Docs {
			statuses = append(statuses, docStatus{ID: doc.ID, Path: doc.RelativePath, Status: doc.Status})
		}
		sort.Slice(statuses, func(i, j int) bool { return statuses[i].Path < statuses[j].Path })
		summaries = append(summaries, repoSummary{
			ID:         repo.ID,
			Name:       repo.Name,
			Status:     repo.Status,
			DocsStatus: statuses,
		})
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Name < summaries[j].Name })

	writeJSON(w, http.StatusOK, map[string][]repoSummary{"repos": summaries})
}

type treeNode struct {
	ID       string       `json:"id"`
	Path     string       `json:"path"`
	Type     store.Kind   `json:"type"`
	Status   store.Status `json:"status"`
	Children []*treeNode  `json:"children,omitempty"`
}

type repoView struct {
	Name    string       `json:"name"`
	ID      string       `json:"id"`
	OwnerID string       `json:"owner_id"`
	Status  store.Status `json:"status"`
	Tree    *treeNode    `json:"tree"`
}

func (s *Server) handleGetRepo(w http.ResponseWriter, r *http.Request) {
	repo, err := s.store.GetUserRepo(r.Context(), userID(r), chi.URLParam(r, "repo_id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]repoView{"repo": {
		Name:    repo.Name,
		ID:      repo.ID,
		OwnerID: repo.OwnerID,
		Status:  repo.Status,
		Tree:    buildTree(repo),
	}})
}

// buildTree reassembles the dependency map into a nested tree rooted at
// the repository root.
func buildTree(repo *store.Repo) *treeNode {
	children := repo.Children()

	var build func(docID string) *treeNode
	build = func(docID string) *treeNode {
		doc, ok := repo.Docs[docID]
		if !ok {
			return nil
		}
		node := &treeNode{
			ID:     doc.ID,
			Path:   doc.RelativePath,
			Type:   doc.Kind,
			Status: doc.Status,
		}
		childIDs := children[docID]
		sort.Slice(childIDs, func(i, j int) bool {
			return repo.Docs[childIDs[i]].RelativePath < repo.Docs[childIDs[j]].RelativePath
		})
		for _, childID := range childIDs {
			if child := build(childID); child != nil {
				node.Children = append(node.Children, child)
			}
		}
		return node
	}
	return build(repo.RootDocID)
}

func (s *Server) handleDeleteRepo(w http.ResponseWriter, r *http.Request) {
	repoID := chi.URLParam(r, "repo_id")
	if err := s.store.DeleteRepo(r.Context(), userID(r), repoID); err != nil {
		writeError(w, err)
		return
	}
	if err := s.purger.DeleteNamespace(r.Context(), repoID); err != nil {
		// The record is gone; a stale namespace only wastes index space.
		slog.Warn("Failed to purge embeddings namespace", "repo_id", repoID, "error", err)
	}

	writeJSON(w, http.StatusOK, acceptedResponse{
		Message: fmt.Sprintf("The data associated with id='%s' was deleted.", repoID),
		ID:      repoID,
	})
}

type docView struct {
	ID           string       `json:"id"`
	GitHubURL    string       `json:"github_url"`
	Status       store.Status `json:"status"`
	RelativePath string       `json:"relative_path"`
	Markdown     string       `json:"markdown_content"`
}

func (s *Server) handleGetRepoDoc(w http.ResponseWriter, r *http.Request) {
	repoID := chi.URLParam(r, "repo_id")
	docID := chi.URLParam(r, "doc_id")

	doc, err := s.store.GetUserDoc(r.Context(), userID(r), docID)
	if err != nil {
		writeError(w, err)
		return
	}
	if doc.RepoID != repoID {
		badRequest(w, fmt.Sprintf("Document '%s' does not belong to repository '%s'.", docID, repoID))
		return
	}

	writeJSON(w, http.StatusOK, docView{
		ID:           doc.ID,
		GitHubURL:    doc.SourceURL,
		Status:       doc.Status,
		RelativePath: doc.RelativePath,
		Markdown:     doc.Markdown,
	})
}

func (s *Server) handleSearchRepo(w http.ResponseWriter, r *http.Request) {
	repoID := chi.URLParam(r, "repo_id")
	query := r.URL.Query().Get("query")
	if query == "" {
		badRequest(w, "Required query parameter 'query' is missing.")
		return
	}

	if _, err := s.store.GetUserRepo(r.Context(), userID(r), repoID); err != nil {
		writeError(w, err)
		return
	}

	results, err := s.searcher.Search(r.Context(), repoID, query)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

type chatRequest struct {
	Query string `json:"query"`
}

// handleChatRepo streams agent events as newline-delimited JSON. The
// stream always ends with a Finish event.
func (s *Server) handleChatRepo(w http.ResponseWriter, r *http.Request) {
	repoID := chi.URLParam(r, "repo_id")

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Query == "" {
		badRequest(w, "Required field 'query' is missing.")
		return
	}

	if _, err := s.store.GetUserRepo(r.Context(), userID(r), repoID); err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	encoder := json.NewEncoder(w)
	for event := range s.chatter.Chat(r.Context(), userID(r), repoID, req.Query, s.agentCfg.Model) {
		if err := encoder.Encode(event); err != nil {
			slog.Error("Failed to stream chat event", "repo_id", repoID, "error", err)
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (s *Server) handleSubmitFileDoc(w http.ResponseWriter, r *http.Request) {
	fileURL, ok := decodeRepoRequest(w, r)
	if !ok {
		return
	}

	doc, err := s.jobs.SubmitFileDoc(r.Context(), userID(r), fileURL)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, acceptedResponse{
		Message: "Documentation generation has been started.",
		ID:      doc.ID,
	})
}

func (s *Server) handleGetFileDoc(w http.ResponseWriter, r *http.Request) {
	doc, err := s.store.GetUserDoc(r.Context(), userID(r), chi.URLParam(r, "doc_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleRegenerateFileDoc(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "doc_id")
	if err := s.jobs.RegenerateFileDoc(r.Context(), userID(r), docID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, acceptedResponse{
		Message: "Documentation regeneration has been started.",
		ID:      docID,
	})
}

func (s *Server) handleDeleteFileDoc(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "doc_id")
	if err := s.store.DeleteDoc(r.Context(), userID(r), docID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acceptedResponse{
		Message: fmt.Sprintf("The data associated with id='%s' was deleted.", docID),
		ID:      docID,
	})
}
