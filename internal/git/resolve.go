package git

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrUnmergedPaths indicates a merge cannot be concluded yet.
var ErrUnmergedPaths = errors.New("unmerged paths remain")

// ResolveOurs keeps the local version of path.
//
// During a merge the local side is checked out and staged. Outside a merge
// (local changes that blocked a pull) the local change is committed so the
// next pull merges it.
func (c *Client) ResolveOurs(ctx context.Context, path string) error {
	if c.MergeInProgress() {
		return c.resolveSide(ctx, "--ours", path)
	}
	if err := c.Commit(ctx, []string{path}, "Keep local "+path); err != nil && !IsNothingToCommit(err) {
		return err
	}
	return nil
}

// ResolveTheirs takes the remote version of path.
//
// During a merge the remote side is checked out and staged. Outside a merge
// the local change is discarded: tracked files are restored from HEAD,
// untracked files are removed.
func (c *Client) ResolveTheirs(ctx context.Context, path string) error {
	if c.MergeInProgress() {
		return c.resolveSide(ctx, "--theirs", path)
	}

	if _, err := c.git(ctx, "ls-files", "--error-unmatch", "--", path); err != nil {
		if rmErr := c.fs.Remove(filepath.Join(c.opts.Dir, path)); rmErr != nil {
			return fmt.Errorf("discard untracked %s: %w", path, rmErr)
		}
		return nil
	}
	if _, err := c.git(ctx, "checkout", "HEAD", "--", path); err != nil {
		return fmt.Errorf("restore %s: %w", path, err)
	}
	return nil
}

// resolveSide checks out one side of a conflicted path and stages it.
// A side that deleted the file resolves to a removal.
func (c *Client) resolveSide(ctx context.Context, side, path string) error {
	output, err := c.git(ctx, "checkout", side, "--", path)
	if err != nil {
		if !strings.Contains(output, "does not have") {
			return fmt.Errorf("checkout %s %s: %w", side, path, err)
		}
		if _, err := c.git(ctx, "rm", "-f", "--", path); err != nil {
			return fmt.Errorf("remove %s: %w", path, err)
		}
		return nil
	}
	if _, err := c.git(ctx, "add", "--", path); err != nil {
		return fmt.Errorf("stage %s: %w", path, err)
	}
	return nil
}

// AbortMerge abandons the merge in progress and restores the pre-merge state.
func (c *Client) AbortMerge(ctx context.Context) error {
	if !c.MergeInProgress() {
		return ErrNoMergeInProgress
	}
	if _, err := c.git(ctx, "merge", "--abort"); err != nil {
		return fmt.Errorf("abort merge: %w", err)
	}
	return nil
}

// ConcludeMerge commits a merge whose conflicts were all resolved.
// An empty message keeps git's prepared merge message.
func (c *Client) ConcludeMerge(ctx context.Context, message string) error {
	if !c.MergeInProgress() {
		return ErrNoMergeInProgress
	}
	unmerged, err := c.UnmergedPaths(ctx)
	if err != nil {
		return err
	}
	if len(unmerged) > 0 {
		return fmt.Errorf("%w: %s", ErrUnmergedPaths, strings.Join(unmerged, ", "))
	}

	args := []string{"commit", "--no-edit"}
	if message != "" {
		args = []string{"commit", "-m", message}
	}
	if _, err := c.git(ctx, args...); err != nil {
		return fmt.Errorf("conclude merge: %w", err)
	}
	return nil
}
