package cigen

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-github/v66/github"
)

var ErrFileNotFound = errors.New("file not found")

// RepoClient is the slice of the GitHub contents API the generator needs.
type RepoClient interface {
	// GetFile returns the decoded content and blob SHA of path at ref, or
	// ErrFileNotFound.
	GetFile(ctx context.Context, owner, repo, path, ref string) (content string, sha string, err error)
	// PutFile creates path on branch, or updates it when sha is non-empty.
	PutFile(ctx context.Context, owner, repo, path, branch, message string, content []byte, sha string) error
}

// ClientFactory builds a RepoClient authenticated with token.
type ClientFactory func(token string) (RepoClient, error)

// GitHubClientFactory returns a factory for github.com, or for a GitHub
// Enterprise instance when baseURL is set.
func GitHubClientFactory(baseURL string) ClientFactory {
	return func(token string) (RepoClient, error) {
		cl := github.NewClient(nil).WithAuthToken(token)
		if baseURL != "" {
			var err error
			cl, err = cl.WithEnterpriseURLs(baseURL, baseURL)
			if err != nil {
				return nil, fmt.Errorf("github enterprise url: %w", err)
			}
		}
		return NewGitHubClient(cl), nil
	}
}

type githubClient struct {
	repos *github.RepositoriesService
}

// NewGitHubClient adapts a go-github client.
func NewGitHubClient(cl *github.Client) RepoClient {
	return &githubClient{repos: cl.Repositories}
}

func (c *githubClient) GetFile(ctx context.Context, owner, repo, path, ref string) (string, string, error) {
	file, _, resp, err := c.repos.GetContents(ctx, owner, repo, path, &github.RepositoryContentGetOptions{Ref: ref})
	if resp != nil && resp.StatusCode == http.StatusNotFound {
		return "", "", fmt.Errorf("%w: %s", ErrFileNotFound, path)
	}
	if err != nil {
		return "", "", fmt.Errorf("get %s: %w", path, err)
	}
	if file == nil {
		return "", "", fmt.Errorf("%w: %s is a directory", ErrFileNotFound, path)
	}
	content, err := file.GetContent()
	if err != nil {
		return "", "", fmt.Errorf("decode %s: %w", path, err)
	}
	return content, file.GetSHA(), nil
}

func (c *githubClient) PutFile(ctx context.Context, owner, repo, path, branch, message string, content []byte, sha string) error {
	opts := &github.RepositoryContentFileOptions{
		Message: github.String(message),
		Content: content,
		Branch:  github.String(branch),
	}
	var err error
	if sha != "" {
		opts.SHA = github.String(sha)
		_, _, err = c.repos.UpdateFile(ctx, owner, repo, path, opts)
	} else {
		_, _, err = c.repos.CreateFile(ctx, owner, repo, path, opts)
	}
	if err != nil {
		return fmt.Errorf("put %s: %w", path, err)
	}
	return nil
}

// SplitRepo splits "owner/name".
func SplitRepo(full string) (owner, name string, err error) {
	owner, name, ok := strings.Cut(full, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("repository must be owner/name, got %q", full)
	}
	return owner, name, nil
}
