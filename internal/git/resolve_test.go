package git

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveSide_DuringMerge(t *testing.T) {
	tests := []struct {
		name    string
		resolve func(*Client, context.Context, string) error
		side    string
	}{
		{"ours", (*Client).ResolveOurs, "--ours"},
		{"theirs", (*Client).ResolveTheirs, "--theirs"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, mock, fs := newTestClient(t, Options{})
			markMerging(t, fs)
			mock.ExpectSuccess("git -C /repo checkout "+tt.side+" -- a.md", nil).
				ExpectSuccess("git -C /repo add -- a.md", nil)

			require.NoError(t, tt.resolve(c, context.Background(), "a.md"))
			mock.AssertCalled(t, "git -C /repo add -- a.md")
		})
	}
}

func TestResolveTheirs_DeletedUpstream(t *testing.T) {
	c, mock, fs := newTestClient(t, Options{})
	markMerging(t, fs)
	mock.ExpectFailure("git -C /repo checkout --theirs -- a.md", []byte("error: path 'a.md' does not have their version\n"), errExit).
		ExpectSuccess("git -C /repo rm -f -- a.md", nil)

	require.NoError(t, c.ResolveTheirs(context.Background(), "a.md"))
	mock.AssertCalled(t, "git -C /repo rm -f -- a.md")
}

func TestResolveOurs_LocalChangesAreCommitted(t *testing.T) {
	c, mock, fs := newTestClient(t, Options{})
	markRepo(t, fs)
	mock.ExpectSuccess("git -C /repo add -A -- a.md", nil).
		ExpectSuccess("git -C /repo commit -m Keep local a.md -- a.md", nil)

	require.NoError(t, c.ResolveOurs(context.Background(), "a.md"))
	mock.AssertCalled(t, "git -C /repo commit -m Keep local a.md -- a.md")
}

func TestResolveTheirs_LocalChanges(t *testing.T) {
	t.Run("tracked file is restored", func(t *testing.T) {
		c, mock, fs := newTestClient(t, Options{})
		markRepo(t, fs)
		mock.ExpectSuccess("git -C /repo ls-files --error-unmatch -- a.md", []byte("a.md\n")).
			ExpectSuccess("git -C /repo checkout HEAD -- a.md", nil)

		require.NoError(t, c.ResolveTheirs(context.Background(), "a.md"))
		mock.AssertCalled(t, "git -C /repo checkout HEAD -- a.md")
	})

	t.Run("untracked file is removed", func(t *testing.T) {
		c, mock, fs := newTestClient(t, Options{})
		markRepo(t, fs)
		require.NoError(t, afero.WriteFile(fs, "/repo/new.md", []byte("x"), 0o644))
		mock.ExpectFailure("git -C /repo ls-files --error-unmatch -- new.md", []byte("error: pathspec 'new.md' did not match\n"), errExit)

		require.NoError(t, c.ResolveTheirs(context.Background(), "new.md"))
		exists, _ := afero.Exists(fs, "/repo/new.md")
		assert.False(t, exists)
	})
}

func TestAbortMerge(t *testing.T) {
	c, mock, fs := newTestClient(t, Options{})
	markRepo(t, fs)
	assert.ErrorIs(t, c.AbortMerge(context.Background()), ErrNoMergeInProgress)

	markMerging(t, fs)
	mock.ExpectSuccess("git -C /repo merge --abort", nil)
	require.NoError(t, c.AbortMerge(context.Background()))
}

func TestConcludeMerge(t *testing.T) {
	t.Run("no merge", func(t *testing.T) {
		c, _, fs := newTestClient(t, Options{})
		markRepo(t, fs)
		assert.ErrorIs(t, c.ConcludeMerge(context.Background(), ""), ErrNoMergeInProgress)
	})

	t.Run("unmerged paths remain", func(t *testing.T) {
		c, mock, fs := newTestClient(t, Options{})
		markMerging(t, fs)
		mock.ExpectSuccess("git -C /repo diff --name-only --diff-filter=U", []byte("a.md\n"))

		err := c.ConcludeMerge(context.Background(), "")
		assert.ErrorIs(t, err, ErrUnmergedPaths)
		mock.AssertNotCalled(t, "git -C /repo commit --no-edit")
	})

	t.Run("default message", func(t *testing.T) {
		c, mock, fs := newTestClient(t, Options{})
		markMerging(t, fs)
		mock.ExpectSuccess("git -C /repo diff --name-only --diff-filter=U", nil).
			ExpectSuccess("git -C /repo commit --no-edit", nil)

		require.NoError(t, c.ConcludeMerge(context.Background(), ""))
		mock.AssertCalled(t, "git -C /repo commit --no-edit")
	})

	t.Run("custom message", func(t *testing.T) {
		c, mock, fs := newTestClient(t, Options{})
		markMerging(t, fs)
		mock.ExpectSuccess("git -C /repo diff --name-only --diff-filter=U", nil).
			ExpectSuccess("git -C /repo commit -m merge tasks", nil)

		require.NoError(t, c.ConcludeMerge(context.Background(), "merge tasks"))
	})
}
