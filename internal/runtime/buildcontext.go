package runtime

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/tsingmao/vidlaunch/internal/logger"
)

// IsGitURL reports whether a build context names a remote git repository
// rather than a local directory.
func IsGitURL(s string) bool {
	switch {
	case strings.HasPrefix(s, "git@"),
		strings.HasPrefix(s, "git://"),
		strings.HasPrefix(s, "ssh://"):
		return true
	case strings.HasPrefix(s, "https://"), strings.HasPrefix(s, "http://"):
		repo, _ := splitGitRef(s)
		return strings.HasSuffix(repo, ".git")
	}
	return false
}

// splitGitRef splits "url#ref" into its parts.
func splitGitRef(s string) (string, string) {
	if i := strings.LastIndex(s, "#"); i >= 0 {
		return s[:i], s[i+1:]
	}
	return s, ""
}

// CloneBuildContext shallow-clones a git build context into a temporary
// directory. A "#ref" suffix selects a branch or tag.
//
// The returned cleanup function removes the directory; it is safe to call
// when an error is returned.
func CloneBuildContext(ctx context.Context, url string, progress io.Writer) (string, func(), error) {
	noop := func() {}

	repo, ref := splitGitRef(url)

	tmpDir, err := os.MkdirTemp("", "vidlaunch-build-*")
	if err != nil {
		return "", noop, fmt.Errorf("failed to create temp dir: %w", err)
	}
	cleanup := func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			logger.Warn("Failed to remove build context %s: %v", tmpDir, err)
		}
	}

	opts := &git.CloneOptions{
		URL:          repo,
		Progress:     progress,
		Depth:        1,
		SingleBranch: true,
	}
	if ref != "" {
		if strings.HasPrefix(ref, "refs/") {
			opts.ReferenceName = plumbing.ReferenceName(ref)
		} else {
			opts.ReferenceName = plumbing.NewBranchReferenceName(ref)
		}
	}

	logger.Info("Cloning build context %s", url)
	_, err = git.PlainCloneContext(ctx, tmpDir, false, opts)
	if err != nil && ref != "" && !strings.HasPrefix(ref, "refs/") {
		// Not a branch; retry as a tag.
		os.RemoveAll(tmpDir)
		if mkErr := os.MkdirAll(tmpDir, 0o755); mkErr != nil {
			return "", cleanup, fmt.Errorf("failed to recreate temp dir: %w", mkErr)
		}
		opts.ReferenceName = plumbing.NewTagReferenceName(ref)
		_, err = git.PlainCloneContext(ctx, tmpDir, false, opts)
	}
	if err != nil {
		cleanup()
		return "", noop, fmt.Errorf("failed to clone %s: %w", repo, err)
	}

	return tmpDir, cleanup, nil
}
