package git

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Commit stages and commits exactly the given paths.
// Deleted paths are staged as removals. Other changes in the work tree are
// left untouched.
func (c *Client) Commit(ctx context.Context, paths []string, message string) error {
	if len(paths) == 0 {
		return ErrNothingToCommit
	}

	addArgs := append([]string{"add", "-A", "--"}, paths...)
	if _, err := c.git(ctx, addArgs...); err != nil {
		return fmt.Errorf("stage: %w", err)
	}

	commitArgs := append([]string{"commit", "-m", message, "--"}, paths...)
	output, err := c.git(ctx, commitArgs...)
	if err != nil {
		if strings.Contains(output, "nothing to commit") || strings.Contains(output, "no changes added to commit") {
			return ErrNothingToCommit
		}
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// IsNothingToCommit reports whether err means there was nothing to commit.
func IsNothingToCommit(err error) bool {
	return errors.Is(err, ErrNothingToCommit)
}
