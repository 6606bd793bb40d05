package cigen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ggoodman/mcp-dispatch/tools"
)

// Generator reads a repository's Dockerfile and commits a matching workflow.
type Generator struct {
	NewClient ClientFactory
	// Token is used when a call does not carry its own.
	Token string
	// Branch is read from and committed to when a call does not name one.
	Branch string
	Log    *slog.Logger
}

// GenerateArgs are the inputs of generate_ci.
type GenerateArgs struct {
	RepoFullName string `json:"repo_full_name" jsonschema:"description=GitHub repository as owner/name,pattern=^[^/]+/[^/]+$"`
	GitHubToken  string `json:"github_token,omitempty" jsonschema:"description=GitHub token; falls back to GITHUB_TOKEN"`
	Branch       string `json:"branch,omitempty" jsonschema:"description=Branch to read and commit to"`
}

// GenerateResult reports what generate_ci did.
type GenerateResult struct {
	LanguageDetected Language `json:"language_detected"`
	CommitStatus     string   `json:"commit_status"`
	Path             string   `json:"path"`
}

// Generate runs the full pipeline. Failures meant for the caller are
// *tools.ToolError.
func (g *Generator) Generate(ctx context.Context, args GenerateArgs) (*GenerateResult, error) {
	log := g.Log
	if log == nil {
		log = slog.Default()
	}

	owner, repo, err := SplitRepo(args.RepoFullName)
	if err != nil {
		return nil, tools.Errorf("%v", err)
	}
	token := args.GitHubToken
	if token == "" {
		token = g.Token
	}
	if token == "" {
		return nil, tools.Errorf("GITHUB_TOKEN is missing")
	}
	branch := args.Branch
	if branch == "" {
		branch = g.Branch
	}
	if branch == "" {
		branch = "main"
	}

	client, err := g.NewClient(token)
	if err != nil {
		return nil, fmt.Errorf("github client: %w", err)
	}

	dockerfile, _, err := client.GetFile(ctx, owner, repo, "Dockerfile", branch)
	if errors.Is(err, ErrFileNotFound) || (err == nil && dockerfile == "") {
		return nil, tools.Errorf("Dockerfile not found in repo")
	}
	if err != nil {
		return nil, tools.Errorf("github: %v", err)
	}

	lang := DetectLanguage(dockerfile)
	body, err := RenderWorkflow(lang)
	if err != nil {
		return nil, err
	}

	path := WorkflowPath(lang)
	message := fmt.Sprintf("Auto-generated %s CI pipeline", lang)

	_, sha, err := client.GetFile(ctx, owner, repo, path, branch)
	if err != nil && !errors.Is(err, ErrFileNotFound) {
		return nil, tools.Errorf("github: %v", err)
	}
	if err := client.PutFile(ctx, owner, repo, path, branch, message, body, sha); err != nil {
		return nil, tools.Errorf("github: %v", err)
	}

	status := "Created " + path
	if sha != "" {
		status = "Updated " + path
	}
	log.InfoContext(ctx, "cigen.generate.ok",
		slog.String("repo", args.RepoFullName),
		slog.String("branch", branch),
		slog.String("language", string(lang)),
		slog.String("status", status),
	)
	return &GenerateResult{LanguageDetected: lang, CommitStatus: status, Path: path}, nil
}
