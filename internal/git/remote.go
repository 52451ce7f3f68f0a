package git

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// PullResult is the outcome of a pull that did not fail outright.
type PullResult struct {
	// Skipped is true when no remote is configured.
	Skipped bool
	// Conflicted lists paths that block the merge: unmerged paths of a
	// conflicted merge, or local changes git refused to overwrite.
	Conflicted []string
	// Interrupted is true when git left a merge in progress (MERGE_HEAD).
	Interrupted bool
}

// HasConflicts reports whether the pull needs manual resolution.
func (r PullResult) HasConflicts() bool {
	return len(r.Conflicted) > 0 || r.Interrupted
}

// PushResult is the outcome of a push that did not fail outright.
type PushResult struct {
	// Skipped is true when no remote is configured.
	Skipped bool
	// Rejected is true when the remote refused a non fast-forward update.
	Rejected bool
}

// Pull merges the remote branch into the work tree.
//
// Conflicts are reported through the result, not as errors. If a merge is
// already in progress the pull is not attempted and the pending merge is
// reported as conflicted.
func (c *Client) Pull(ctx context.Context) (PullResult, error) {
	if !c.HasRemote() {
		return PullResult{Skipped: true}, nil
	}

	if c.MergeInProgress() {
		unmerged, err := c.UnmergedPaths(ctx)
		if err != nil {
			return PullResult{}, err
		}
		return PullResult{Conflicted: unmerged, Interrupted: true}, nil
	}

	output, err := c.git(ctx, "pull", "--no-rebase", "--no-edit", c.opts.Remote, c.opts.Branch)
	if err == nil {
		return PullResult{}, nil
	}

	// The remote branch does not exist until the first push.
	if strings.Contains(output, "couldn't find remote ref") {
		return PullResult{}, nil
	}

	if paths := parseOverwritten(output); len(paths) > 0 {
		return PullResult{Conflicted: paths}, nil
	}

	if c.MergeInProgress() || strings.Contains(output, "CONFLICT") {
		unmerged, uerr := c.UnmergedPaths(ctx)
		if uerr != nil {
			return PullResult{}, errors.Join(fmt.Errorf("pull: %w", err), uerr)
		}
		return PullResult{Conflicted: unmerged, Interrupted: c.MergeInProgress()}, nil
	}

	return PullResult{}, fmt.Errorf("pull: %w", err)
}

// parseOverwritten extracts the file list git prints when a merge would
// clobber local modifications or untracked files. The work tree is left
// untouched in that case.
func parseOverwritten(output string) []string {
	var paths []string
	collecting := false
	for _, line := range strings.Split(output, "\n") {
		if strings.Contains(line, "would be overwritten by merge") {
			collecting = true
			continue
		}
		if !collecting {
			continue
		}
		if strings.HasPrefix(line, "\t") {
			if p := strings.TrimSpace(line); p != "" {
				paths = append(paths, p)
			}
			continue
		}
		collecting = false
	}
	sort.Strings(paths)
	return paths
}

// rejectionMarkers are substrings git prints for a refused non fast-forward push.
var rejectionMarkers = []string{
	"[rejected]",
	"non-fast-forward",
	"fetch first",
}

// Push publishes HEAD to the remote branch and makes it the upstream, so
// status reports unpushed commits from then on.
func (c *Client) Push(ctx context.Context) (PushResult, error) {
	if !c.HasRemote() {
		return PushResult{Skipped: true}, nil
	}

	output, err := c.git(ctx, "push", "--porcelain", "--set-upstream", c.opts.Remote, "HEAD:refs/heads/"+c.opts.Branch)
	if err == nil {
		return PushResult{}, nil
	}
	for _, marker := range rejectionMarkers {
		if strings.Contains(output, marker) {
			return PushResult{Rejected: true}, nil
		}
	}
	return PushResult{}, fmt.Errorf("push: %w", err)
}

// RemoteBranchExists reports whether the configured branch exists on the remote.
func (c *Client) RemoteBranchExists(ctx context.Context) (bool, error) {
	if !c.HasRemote() {
		return false, ErrNoRemote
	}
	lines, err := c.gitLines(ctx, "ls-remote", "--heads", c.opts.Remote, c.opts.Branch)
	if err != nil {
		return false, fmt.Errorf("ls-remote: %w", err)
	}
	return len(lines) > 0, nil
}
