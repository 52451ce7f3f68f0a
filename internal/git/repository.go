package git

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// EnsureRepo makes Dir a usable work tree.
//
// An existing repository is kept as is, apart from adding the configured
// remote when it is missing. Otherwise the repository is initialized on the
// configured branch and, when a remote URL is set, the remote branch is
// fetched and checked out if it exists. Initializing in place instead of
// cloning allows Dir to already contain files such as the config.
//
// The given paths are appended to .git/info/exclude so tool-private files
// never get committed.
func (c *Client) EnsureRepo(ctx context.Context, exclude ...string) error {
	if c.IsRepository() {
		if err := c.ensureRemote(ctx); err != nil {
			return err
		}
		return c.ensureExcluded(exclude)
	}

	if err := c.fs.MkdirAll(c.opts.Dir, 0o755); err != nil {
		return fmt.Errorf("create work tree: %w", err)
	}
	if _, err := c.git(ctx, "init", "-b", c.opts.Branch); err != nil {
		return fmt.Errorf("init repository: %w", err)
	}
	if err := c.ensureExcluded(exclude); err != nil {
		return err
	}

	if !c.HasRemote() {
		return nil
	}
	if _, err := c.git(ctx, "remote", "add", c.opts.Remote, c.opts.URL); err != nil {
		return fmt.Errorf("add remote: %w", err)
	}
	if _, err := c.git(ctx, "fetch", c.opts.Remote); err != nil {
		return fmt.Errorf("fetch: %w", err)
	}

	exists, err := c.RemoteBranchExists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	upstream := c.opts.Remote + "/" + c.opts.Branch
	if _, err := c.git(ctx, "checkout", "-B", c.opts.Branch, "--track", upstream); err != nil {
		return fmt.Errorf("checkout %s: %w", upstream, err)
	}
	return nil
}

// ensureRemote adds the configured remote to an existing repository.
func (c *Client) ensureRemote(ctx context.Context) error {
	if !c.HasRemote() {
		return nil
	}
	output, err := c.git(ctx, "remote", "get-url", c.opts.Remote)
	if err == nil {
		if got := strings.TrimSpace(output); got != c.opts.URL {
			return fmt.Errorf("remote %q points to %q, expected %q", c.opts.Remote, got, c.opts.URL)
		}
		return nil
	}
	if _, err := c.git(ctx, "remote", "add", c.opts.Remote, c.opts.URL); err != nil {
		return fmt.Errorf("add remote: %w", err)
	}
	return nil
}

// ensureExcluded appends missing patterns to .git/info/exclude.
func (c *Client) ensureExcluded(patterns []string) error {
	if len(patterns) == 0 {
		return nil
	}
	path := filepath.Join(c.gitDir(), "info", "exclude")

	existing := ""
	if data, err := afero.ReadFile(c.fs, path); err == nil {
		existing = string(data)
	}
	present := make(map[string]bool)
	for _, line := range strings.Split(existing, "\n") {
		present[strings.TrimSpace(line)] = true
	}

	var b strings.Builder
	b.WriteString(existing)
	if existing != "" && !strings.HasSuffix(existing, "\n") {
		b.WriteString("\n")
	}
	added := false
	for _, p := range patterns {
		if present[p] {
			continue
		}
		b.WriteString(p)
		b.WriteString("\n")
		present[p] = true
		added = true
	}
	if !added {
		return nil
	}

	if err := c.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create info dir: %w", err)
	}
	if err := afero.WriteFile(c.fs, path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write exclude file: %w", err)
	}
	return nil
}
