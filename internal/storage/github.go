package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/go-github/v66/github"
)

// GitHubConfig holds configuration for the GitHub contents backend.
type GitHubConfig struct {
	Token      string
	Owner      string
	Repo       string
	Branch     string // default: main
	APIURL     string // Optional GitHub Enterprise API URL
	RawBaseURL string // Base of public raw URLs (default: https://raw.githubusercontent.com)
	HTTPClient *http.Client
}

// GitHubBackend implements ObjectStore on top of a repository's contents API.
// Every write and delete is a commit on the configured branch. The contents
// API refuses objects above 25MB, which is why large media is chunked.
type GitHubBackend struct {
	client  *github.Client
	owner   string
	repo    string
	branch  string
	rawBase string
}

// NewGitHubBackend creates a contents API client for owner/repo.
func NewGitHubBackend(cfg GitHubConfig) (*GitHubBackend, error) {
	if cfg.Owner == "" || cfg.Repo == "" {
		return nil, fmt.Errorf("GitHub owner and repo are required")
	}

	client := github.NewClient(cfg.HTTPClient)
	if cfg.Token != "" {
		client = client.WithAuthToken(cfg.Token)
	}
	if cfg.APIURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(cfg.APIURL, cfg.APIURL)
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub API URL: %w", err)
		}
	}

	branch := cfg.Branch
	if branch == "" {
		branch = "main"
	}
	rawBase := strings.TrimRight(cfg.RawBaseURL, "/")
	if rawBase == "" {
		rawBase = "https://raw.githubusercontent.com"
	}

	return &GitHubBackend{
		client:  client,
		owner:   cfg.Owner,
		repo:    cfg.Repo,
		branch:  branch,
		rawBase: rawBase,
	}, nil
}

// Put commits content at p. An existing object is replaced by an update
// commit that carries its current blob sha.
func (g *GitHubBackend) Put(ctx context.Context, p string, content []byte, message string) (PutResult, error) {
	p, err := cleanObjectPath(p)
	if err != nil {
		return PutResult{}, err
	}
	if len(content) > DefaultMaxObjectSize {
		return PutResult{}, fmt.Errorf("%w: %d bytes", ErrObjectTooLarge, len(content))
	}

	opts := &github.RepositoryContentFileOptions{
		Message: github.String(message),
		Content: content,
		Branch:  github.String(g.branch),
	}

	_, _, err = g.client.Repositories.CreateFile(ctx, g.owner, g.repo, p, opts)
	if githubStatus(err) == http.StatusUnprocessableEntity {
		// The path already exists; the API wants the current sha to overwrite it.
		sha, shaErr := g.blobSHA(ctx, p)
		if shaErr != nil {
			return PutResult{}, fmt.Errorf("failed to resolve existing object %s: %w", p, shaErr)
		}
		opts.SHA = github.String(sha)
		_, _, err = g.client.Repositories.UpdateFile(ctx, g.owner, g.repo, p, opts)
	}
	if err != nil {
		return PutResult{}, fmt.Errorf("failed to commit %s: %w", p, err)
	}

	return PutResult{
		Path: p,
		URL:  g.rawURL(p),
		Size: int64(len(content)),
	}, nil
}

// Get fetches the object at p. Small files come inline as base64; anything
// above 1MB is fetched through its download URL.
func (g *GitHubBackend) Get(ctx context.Context, p string) ([]byte, error) {
	p, err := cleanObjectPath(p)
	if err != nil {
		return nil, err
	}

	file, _, _, err := g.client.Repositories.GetContents(ctx, g.owner, g.repo, p,
		&github.RepositoryContentGetOptions{Ref: g.branch})
	if err != nil {
		if githubStatus(err) == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get %s: %w", p, err)
	}
	if file == nil {
		return nil, fmt.Errorf("failed to get %s: path is a directory", p)
	}

	if file.GetEncoding() == "base64" {
		content, err := file.GetContent()
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", p, err)
		}
		return []byte(content), nil
	}

	downloadURL := file.GetDownloadURL()
	if downloadURL == "" {
		return nil, fmt.Errorf("failed to get %s: no download URL", p)
	}
	return g.download(ctx, downloadURL)
}

// Delete removes the object at p. The contents API requires the blob sha, so
// the object is looked up first; a missing object is not an error.
func (g *GitHubBackend) Delete(ctx context.Context, p string, message string) error {
	p, err := cleanObjectPath(p)
	if err != nil {
		return err
	}

	sha, err := g.blobSHA(ctx, p)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", p, err)
	}

	_, _, err = g.client.Repositories.DeleteFile(ctx, g.owner, g.repo, p, &github.RepositoryContentFileOptions{
		Message: github.String(message),
		SHA:     github.String(sha),
		Branch:  github.String(g.branch),
	})
	if err != nil && githubStatus(err) != http.StatusNotFound {
		return fmt.Errorf("failed to delete %s: %w", p, err)
	}
	return nil
}

// HealthCheck verifies the repository is reachable with the configured token.
func (g *GitHubBackend) HealthCheck(ctx context.Context) error {
	if _, _, err := g.client.Repositories.Get(ctx, g.owner, g.repo); err != nil {
		return fmt.Errorf("GitHub health check failed: %w", err)
	}
	return nil
}

func (g *GitHubBackend) blobSHA(ctx context.Context, p string) (string, error) {
	file, _, _, err := g.client.Repositories.GetContents(ctx, g.owner, g.repo, p,
		&github.RepositoryContentGetOptions{Ref: g.branch})
	if err != nil {
		if githubStatus(err) == http.StatusNotFound {
			return "", ErrNotFound
		}
		return "", err
	}
	if file == nil || file.GetSHA() == "" {
		return "", fmt.Errorf("no sha for %s", p)
	}
	return file.GetSHA(), nil
}

func (g *GitHubBackend) download(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := g.client.Client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download object: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("failed to download object: unexpected status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

func (g *GitHubBackend) rawURL(p string) string {
	return fmt.Sprintf("%s/%s/%s/%s/%s", g.rawBase, g.owner, g.repo, g.branch, p)
}

func githubStatus(err error) int {
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		return ghErr.Response.StatusCode
	}
	return 0
}
