package git

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/bolasblack/tasksync/internal/util"
)

const (
	// DefaultRemote is the remote name used when none is configured.
	DefaultRemote = "origin"
	// DefaultBranch is the branch used when none is configured.
	DefaultBranch = "main"
	// DefaultTimeout bounds a single git invocation.
	DefaultTimeout = 2 * time.Minute
)

// Options configures a Client.
type Options struct {
	// Dir is the work tree root.
	Dir string
	// Remote is the remote name (default "origin").
	Remote string
	// URL is the remote URL. Empty means local-only: pull and push are skipped.
	URL string
	// Branch is the branch to sync (default "main").
	Branch string
	// Token, when set, is sent as an HTTP bearer token.
	Token string
	// AuthorName and AuthorEmail override the commit identity.
	AuthorName  string
	AuthorEmail string
	// Timeout bounds each git invocation (default DefaultTimeout).
	Timeout time.Duration
}

// Client runs git commands against one work tree.
type Client struct {
	fs   afero.Fs
	cmd  util.CommandRunner
	opts Options
}

// New creates a Client. fs is used for cheap checks of the .git directory.
func New(fs afero.Fs, cmd util.CommandRunner, opts Options) *Client {
	if opts.Remote == "" {
		opts.Remote = DefaultRemote
	}
	if opts.Branch == "" {
		opts.Branch = DefaultBranch
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Client{fs: fs, cmd: cmd, opts: opts}
}

// Dir returns the work tree root.
func (c *Client) Dir() string {
	return c.opts.Dir
}

// HasRemote reports whether a remote URL is configured.
func (c *Client) HasRemote() bool {
	return c.opts.URL != ""
}

// env returns the extra environment for every git invocation.
func (c *Client) env() []string {
	env := []string{"GIT_TERMINAL_PROMPT=0"}
	if c.opts.AuthorName != "" {
		env = append(env, "GIT_AUTHOR_NAME="+c.opts.AuthorName, "GIT_COMMITTER_NAME="+c.opts.AuthorName)
	}
	if c.opts.AuthorEmail != "" {
		env = append(env, "GIT_AUTHOR_EMAIL="+c.opts.AuthorEmail, "GIT_COMMITTER_EMAIL="+c.opts.AuthorEmail)
	}
	if c.opts.Token != "" {
		env = append(env,
			"GIT_CONFIG_COUNT=1",
			"GIT_CONFIG_KEY_0=http.extraHeader",
			"GIT_CONFIG_VALUE_0=Authorization: Bearer "+c.opts.Token,
		)
	}
	return env
}

// git runs "git -C <dir> args..." bounded by the client timeout.
// On failure the output is returned alongside a *CommandError.
func (c *Client) git(ctx context.Context, args ...string) (string, error) {
	return c.run(ctx, append([]string{"-C", c.opts.Dir}, args...)...)
}

func (c *Client) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	out, err := c.cmd.RunWithEnv(ctx, c.env(), "git", args...)
	output := string(out)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s", ErrTimeout, c.opts.Timeout)
		}
		return output, &CommandError{Args: args, Output: output, Err: classify(output, err)}
	}
	return output, nil
}

// gitLines runs a git command and returns non-empty output lines.
func (c *Client) gitLines(ctx context.Context, args ...string) ([]string, error) {
	output, err := c.git(ctx, args...)
	if err != nil {
		return nil, err
	}
	var lines []string
	for _, line := range strings.Split(output, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

func (c *Client) gitDir() string {
	return filepath.Join(c.opts.Dir, ".git")
}

func (c *Client) exists(path string) bool {
	_, err := c.fs.Stat(path)
	return err == nil
}

// IsRepository reports whether Dir already contains a .git directory.
func (c *Client) IsRepository() bool {
	return c.exists(c.gitDir())
}

// MergeInProgress reports whether a merge was started and not concluded.
func (c *Client) MergeInProgress() bool {
	return c.exists(filepath.Join(c.gitDir(), "MERGE_HEAD"))
}
