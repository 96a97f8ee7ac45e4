package gitsource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
)

// IsGitURL reports whether path names a remote git repository rather than a local directory.
func IsGitURL(path string) bool {
	return strings.HasSuffix(path, ".git") ||
		strings.HasPrefix(path, "git@") ||
		strings.HasPrefix(path, "https://") ||
		strings.HasPrefix(path, "http://")
}

// LocalPath maps a repository URL to the directory under baseDir it is cloned into.
// Both https://host/owner/repo.git and git@host:owner/repo.git map to baseDir/host/owner/repo.
func LocalPath(baseDir, repoURL string) (string, error) {
	parsed, err := url.Parse(repoURL)
	if err == nil && (parsed.Scheme == "https" || parsed.Scheme == "http") && parsed.Host != "" {
		repoPath := strings.Trim(strings.TrimSuffix(parsed.Path, ".git"), "/")
		if repoPath == "" {
			return "", fmt.Errorf("could not parse git URL: %s", repoURL)
		}
		return filepath.Join(baseDir, parsed.Host, filepath.FromSlash(repoPath)), nil
	}

	// scp-like syntax: user@host:path
	if at := strings.Index(repoURL, "@"); at >= 0 {
		hostAndPath := repoURL[at+1:]
		host, repoPath, ok := strings.Cut(hostAndPath, ":")
		repoPath = strings.Trim(strings.TrimSuffix(repoPath, ".git"), "/")
		if ok && host != "" && repoPath != "" {
			return filepath.Join(baseDir, host, filepath.FromSlash(repoPath)), nil
		}
	}
	return "", fmt.Errorf("could not parse git URL: %s", repoURL)
}

// Sync clones a git repository if it doesn't exist at the given path,
// or pulls the latest changes if it does.
func Sync(ctx context.Context, url, localPath string) error {
	_, err := os.Stat(localPath)
	switch {
	case os.IsNotExist(err):
		slog.Info("Cloning repository", "url", url, "path", localPath)
		if _, err := git.PlainCloneContext(ctx, localPath, false, &git.CloneOptions{URL: url}); err != nil {
			return fmt.Errorf("failed to clone repo %s: %w", url, err)
		}
		slog.Info("Clone successful", "path", localPath)

	case err == nil:
		slog.Info("Pulling latest changes", "path", localPath)
		repo, err := git.PlainOpen(localPath)
		if err != nil {
			return fmt.Errorf("failed to open existing repo at %s: %w", localPath, err)
		}

		worktree, err := repo.Worktree()
		if err != nil {
			return fmt.Errorf("failed to get worktree for repo at %s: %w", localPath, err)
		}

		err = worktree.PullContext(ctx, &git.PullOptions{RemoteName: "origin"})
		if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
			return fmt.Errorf("failed to pull changes for repo at %s: %w", localPath, err)
		}
		slog.Info("Pull successful (or already up-to-date)", "path", localPath)

	default:
		return fmt.Errorf("error checking path %s: %w", localPath, err)
	}

	return nil
}
