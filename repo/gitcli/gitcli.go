// Package gitcli implements the repository contracts over a local git
// checkout using the git CLI. Commands run through a Runner seam so tests
// never shell out.
package gitcli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/guidelab/stageground/repo"
	"github.com/guidelab/stageground/rules"
	"github.com/guidelab/stageground/staging"
)

// Runner executes one external command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) (string, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, dir, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	output, err := cmd.CombinedOutput()
	if err != nil {
		return string(output), fmt.Errorf("%w: %s", err, string(output))
	}
	return string(output), nil
}

// Client is a ContentSource and CommitSink over one git checkout. The
// checkout's origin remote is the authoritative repository.
type Client struct {
	root   string
	remote string
	runner Runner
	logger *slog.Logger
}

// New creates a Client rooted at a git checkout. logger may be nil.
func New(root string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{root: root, remote: "origin", runner: ExecRunner{}, logger: logger}
}

// WithRunner replaces the command runner, for tests.
func (c *Client) WithRunner(r Runner) *Client {
	c.runner = r
	return c
}

// validatePath rejects absolute paths and traversal so a staged path can
// never escape the checkout.
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("path is required")
	}
	if filepath.IsAbs(path) {
		return fmt.Errorf("absolute path not allowed: %s", path)
	}
	if strings.Contains(path, "..") {
		return fmt.Errorf("path traversal not allowed: %s", path)
	}
	return nil
}

// ReadFile implements repo.ContentSource via git show.
func (c *Client) ReadFile(ctx context.Context, key staging.RepositoryKey, path, revision string) ([]byte, error) {
	if err := validatePath(path); err != nil {
		return nil, err
	}
	if revision == "" {
		revision = key.Branch
	}
	output, err := c.runner.Run(ctx, c.root, "git", "show", revision+":"+path)
	if err != nil {
		if isPathMissing(err) {
			return nil, fmt.Errorf("%w: %s at %s", repo.ErrNotFound, path, revision)
		}
		return nil, fmt.Errorf("read %s at %s: %w", path, revision, err)
	}
	return []byte(output), nil
}

// CurrentRevision implements repo.ContentSource. The remote branch head is
// queried directly so a stale local checkout never masks upstream changes.
// When ls-remote fails (e.g. no fetch credentials for the remote), the gh
// CLI is tried before giving up.
func (c *Client) CurrentRevision(ctx context.Context, key staging.RepositoryKey) (string, error) {
	output, err := c.runner.Run(ctx, c.root, "git", "ls-remote", c.remote, "refs/heads/"+key.Branch)
	if err != nil {
		if sha, ghErr := c.revisionViaGH(ctx, key); ghErr == nil {
			return sha, nil
		}
		return "", fmt.Errorf("query remote revision of %s: %w", key.Branch, err)
	}
	fields := strings.Fields(output)
	if len(fields) == 0 {
		return "", fmt.Errorf("branch %s not found on %s", key.Branch, c.remote)
	}
	return fields[0], nil
}

// revisionViaGH resolves the branch head through the GitHub API.
func (c *Client) revisionViaGH(ctx context.Context, key staging.RepositoryKey) (string, error) {
	endpoint := fmt.Sprintf("repos/%s/%s/branches/%s", key.Owner, key.Repo, key.Branch)
	output, err := c.runner.Run(ctx, c.root, "gh", "api", endpoint, "--jq", ".commit.sha")
	if err != nil {
		return "", err
	}
	sha := strings.TrimSpace(output)
	if sha == "" {
		return "", fmt.Errorf("empty revision for %s", key)
	}
	return sha, nil
}

// ListFiles implements repo.ContentSource via git ls-tree.
func (c *Client) ListFiles(ctx context.Context, key staging.RepositoryKey, revision, pattern string) ([]string, error) {
	if revision == "" {
		revision = key.Branch
	}
	output, err := c.runner.Run(ctx, c.root, "git", "ls-tree", "-r", "--name-only", revision)
	if err != nil {
		return nil, fmt.Errorf("list files at %s: %w", revision, err)
	}
	var paths []string
	for _, line := range strings.Split(output, "\n") {
		path := strings.TrimSpace(line)
		if path == "" {
			continue
		}
		if matched, err := rules.MatchPath(pattern, path); err == nil && matched {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// Commit implements repo.CommitSink: write the staged files into the
// checkout, commit, and push. A rejected push is a conflict; everything else
// is a sink failure.
func (c *Client) Commit(ctx context.Context, key staging.RepositoryKey, message string, files []repo.CommitFile) (string, error) {
	if message == "" {
		return "", fmt.Errorf("%w: commit message is required", repo.ErrSink)
	}
	if len(files) == 0 {
		return "", fmt.Errorf("%w: no files to commit", repo.ErrSink)
	}
	for _, f := range files {
		if err := validatePath(f.Path); err != nil {
			return "", fmt.Errorf("%w: %v", repo.ErrSink, err)
		}
	}

	paths := make([]string, 0, len(files))
	for _, f := range files {
		full := filepath.Join(c.root, filepath.FromSlash(f.Path))
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			return "", fmt.Errorf("%w: create directory for %s: %v", repo.ErrSink, f.Path, err)
		}
		if err := os.WriteFile(full, []byte(f.Content), 0644); err != nil {
			return "", fmt.Errorf("%w: write %s: %v", repo.ErrSink, f.Path, err)
		}
		paths = append(paths, f.Path)
	}

	if _, err := c.runner.Run(ctx, c.root, "git", append([]string{"add", "--"}, paths...)...); err != nil {
		return "", fmt.Errorf("%w: git add: %v", repo.ErrSink, err)
	}
	if _, err := c.runner.Run(ctx, c.root, "git", "commit", "-m", message); err != nil {
		return "", fmt.Errorf("%w: git commit: %v", repo.ErrSink, err)
	}
	if _, err := c.runner.Run(ctx, c.root, "git", "push", c.remote, "HEAD:"+key.Branch); err != nil {
		if isPushRejected(err) {
			return "", fmt.Errorf("%w: push to %s rejected", repo.ErrConflict, key.Branch)
		}
		return "", fmt.Errorf("%w: git push: %v", repo.ErrSink, err)
	}

	commitID, err := c.runner.Run(ctx, c.root, "git", "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("%w: resolve commit id: %v", repo.ErrSink, err)
	}
	id := strings.TrimSpace(commitID)
	c.logger.Info("committed staged files", "repository", key.String(), "commit", id, "files", len(files))
	return id, nil
}

// isPathMissing matches git show's failure modes for an absent path or
// unknown revision.
func isPathMissing(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "does not exist") ||
		strings.Contains(msg, "exists on disk, but not in") ||
		strings.Contains(msg, "invalid object name") ||
		strings.Contains(msg, "bad revision")
}

// isPushRejected matches non-fast-forward push failures.
func isPushRejected(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "rejected") ||
		strings.Contains(msg, "non-fast-forward") ||
		strings.Contains(msg, "fetch first")
}
