// Package github resolves repository URLs to trees of file and directory
// entries with decoded contents, via the GitHub REST contents API.
package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rocketdocs/rocketdocs/pkg/config"
	"github.com/rocketdocs/rocketdocs/pkg/httpclient"
)

const apiBaseURL = "https://api.github.com"

// ErrInvalidURL indicates the given URL does not name a GitHub repository
// or file.
var ErrInvalidURL = errors.New("invalid GitHub url")

// EntryType discriminates tree entries.
type EntryType string

const (
	EntryTypeFile EntryType = "file"
	EntryTypeDir  EntryType = "dir"
)

// Entry is one node of a repository tree as reported by the contents API.
// Content is populated only by ReadFile; directory listings carry metadata
// only.
type Entry struct {
	Name    string
	Path    string
	Type    EntryType
	Size    int64
	HTMLURL string
}

// Repository is the metadata for one repository at its current version.
type Repository struct {
	FullName      string
	HTMLURL       string
	DefaultBranch string
	// Version is the commit SHA the tree was resolved at.
	Version string
}

// Client talks to the GitHub REST API.
type Client struct {
	token  string
	client *httpclient.Client
}

func NewClientFromConfig(cfg *config.GitHubConfig) *Client {
	return &Client{
		token: cfg.Token,
		client: httpclient.New(
			httpclient.WithMaxRetries(3),
			httpclient.WithHeaderParser(httpclient.ParseGitHubHeaders),
		),
	}
}

// ParseRepoURL extracts owner and repository name from a repository URL.
func ParseRepoURL(repoURL string) (owner, name string, err error) {
	parsed, err := url.Parse(repoURL)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidURL, repoURL)
	}
	return parts[0], parts[1], nil
}

// ParseFileURL extracts owner, repository and file path from a blob URL of
// the form https://github.com/{owner}/{repo}/blob/{ref}/{path}.
func ParseFileURL(fileURL string) (owner, name, path string, err error) {
	parsed, err := url.Parse(fileURL)
	if err != nil {
		return "", "", "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(parts) < 5 || parts[2] != "blob" {
		return "", "", "", fmt.Errorf("%w: %q", ErrInvalidURL, fileURL)
	}
	return parts[0], parts[1], strings.Join(parts[4:], "/"), nil
}

type repoResponse struct {
	FullName      string `json:"full_name"`
	HTMLURL       string `json:"html_url"`
	DefaultBranch string `json:"default_branch"`
}

type branchResponse struct {
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

// GetRepository resolves a repository URL to its metadata, including the
// head commit of the default branch.
func (c *Client) GetRepository(ctx context.Context, repoURL string) (*Repository, error) {
	owner, name, err := ParseRepoURL(repoURL)
	if err != nil {
		return nil, err
	}

	var repo repoResponse
	if err := c.get(ctx, fmt.Sprintf("/repos/%s/%s", owner, name), &repo); err != nil {
		return nil, err
	}

	var branch branchResponse
	if err := c.get(ctx, fmt.Sprintf("/repos/%s/%s/branches/%s", owner, name, repo.DefaultBranch), &branch); err != nil {
		return nil, err
	}

	return &Repository{
		FullName:      repo.FullName,
		HTMLURL:       repo.HTMLURL,
		DefaultBranch: repo.DefaultBranch,
		Version:       branch.Commit.SHA,
	}, nil
}

type contentResponse struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Type     string `json:"type"`
	Size     int64  `json:"size"`
	HTMLURL  string `json:"html_url"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// ListContents returns the entries of one directory of the repository.
// An empty path lists the repository root.
func (c *Client) ListContents(ctx context.Context, fullName, path string) ([]Entry, error) {
	var entries []contentResponse
	if err := c.get(ctx, fmt.Sprintf("/repos/%s/contents/%s", fullName, path), &entries); err != nil {
		return nil, err
	}

	result := make([]Entry, 0, len(entries))
	for _, e := range entries {
		entryType := EntryTypeFile
		if e.Type == "dir" {
			entryType = EntryTypeDir
		}
		result = append(result, Entry{
			Name:    e.Name,
			Path:    e.Path,
			Type:    entryType,
			Size:    e.Size,
			HTMLURL: e.HTMLURL,
		})
	}
	return result, nil
}

// ReadFile fetches and decodes one file's content.
func (c *Client) ReadFile(ctx context.Context, fullName, path string) (string, error) {
	var content contentResponse
	if err := c.get(ctx, fmt.Sprintf("/repos/%s/contents/%s", fullName, path), &content); err != nil {
		return "", err
	}

	if content.Type == "dir" {
		return "", fmt.Errorf("%s/%s is a folder, not a file", fullName, path)
	}
	if content.Encoding != "base64" {
		return "", fmt.Errorf("unexpected content encoding %q for %s", content.Encoding, path)
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(content.Content, "\n", ""))
	if err != nil {
		return "", fmt.Errorf("failed to decode file content: %w", err)
	}
	return string(decoded), nil
}

// ReadFileURL fetches a file addressed by its blob URL.
func (c *Client) ReadFileURL(ctx context.Context, fileURL string) (string, error) {
	owner, name, path, err := ParseFileURL(fileURL)
	if err != nil {
		return "", err
	}
	return c.ReadFile(ctx, owner+"/"+name, path)
}

// StatFileURL resolves a blob URL to an entry with size metadata.
func (c *Client) StatFileURL(ctx context.Context, fileURL string) (*Entry, error) {
	owner, name, path, err := ParseFileURL(fileURL)
	if err != nil {
		return nil, err
	}

	var content contentResponse
	if err := c.get(ctx, fmt.Sprintf("/repos/%s/%s/contents/%s", owner, name, path), &content); err != nil {
		return nil, err
	}
	if content.Type == "dir" {
		return nil, fmt.Errorf("%w: %q is a folder, not a file", ErrInvalidURL, fileURL)
	}

	return &Entry{
		Name:    content.Name,
		Path:    content.Path,
		Type:    EntryTypeFile,
		Size:    content.Size,
		HTMLURL: content.HTMLURL,
	}, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiBaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	// The retrying client returns both a response and an error for
	// non-2xx statuses; the status check below handles those.
	if resp == nil {
		return fmt.Errorf("github request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: not found: %s", ErrInvalidURL, path)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("github API returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode github response: %w", err)
	}
	return nil
}
