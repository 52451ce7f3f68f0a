package git

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nul(entries ...string) string {
	return strings.Join(entries, "\x00") + "\x00"
}

func TestParseStatus(t *testing.T) {
	output := nul(
		"# branch.oid 1234567890abcdef",
		"# branch.head main",
		"# branch.upstream origin/main",
		"# branch.ab +2 -1",
		"1 .M N... 100644 100644 100644 aaa bbb tasks/a.md",
		"1 A. N... 000000 100644 100644 000 ccc tasks/with space.md",
		"2 R. N... 100644 100644 100644 ddd ddd R100 tasks/new.md",
		"tasks/old.md",
		"u UU N... 100644 100644 100644 100644 e1 e2 e3 tasks/conflict.md",
		"? notes/untracked.md",
		"! build/ignored.md",
	)

	st, err := parseStatus(output)
	require.NoError(t, err)

	assert.Equal(t, "1234567890abcdef", st.Commit)
	assert.Equal(t, "main", st.Branch)
	assert.Equal(t, "origin/main", st.Upstream)
	assert.Equal(t, 2, st.Ahead)
	assert.Equal(t, 1, st.Behind)
	assert.Equal(t, []string{
		"notes/untracked.md",
		"tasks/a.md",
		"tasks/new.md",
		"tasks/old.md",
		"tasks/with space.md",
	}, st.Changed)
	assert.Equal(t, []string{"tasks/conflict.md"}, st.Conflicted)
	assert.True(t, st.HasChanges())
	assert.True(t, st.HasConflicts())
}

func TestParseStatus_Clean(t *testing.T) {
	st, err := parseStatus(nul("# branch.oid (initial)", "# branch.head main"))
	require.NoError(t, err)

	assert.Equal(t, "main", st.Branch)
	assert.Nil(t, st.Changed)
	assert.Nil(t, st.Conflicted)
	assert.False(t, st.HasChanges())
	assert.False(t, st.HasConflicts())
}

func TestParseStatus_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		entry string
	}{
		{"short ordinary", "1 .M N... 100644"},
		{"short rename", "2 R. N... 100644 100644 100644 a b"},
		{"short unmerged", "u UU N... 100644"},
		{"bad ahead", "# branch.ab +x -1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseStatus(nul(tt.entry))
			assert.Error(t, err)
		})
	}
}

func TestClient_Status(t *testing.T) {
	c, mock, _ := newTestClient(t, Options{})
	mock.ExpectSuccess("git -C /repo status --porcelain=v2 --branch --untracked-files=all -z",
		[]byte(nul("# branch.head main", "? tasks/a.md")))

	st, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"tasks/a.md"}, st.Changed)
}

func TestClient_StatusCountsUnpushedWithoutUpstream(t *testing.T) {
	const (
		statusCmd   = "git -C /repo status --porcelain=v2 --branch --untracked-files=all -z"
		trackingCmd = "git -C /repo rev-parse --verify --quiet refs/remotes/origin/main"
	)

	t.Run("remote branch fetched", func(t *testing.T) {
		c, mock, _ := newTestClient(t, remoteOpts)
		mock.ExpectSuccess(statusCmd, []byte(nul("# branch.oid abc123", "# branch.head main")))
		mock.ExpectSuccess(trackingCmd, []byte("def456\n"))
		mock.ExpectSuccess("git -C /repo rev-list --count refs/remotes/origin/main..HEAD", []byte("2\n"))

		st, err := c.Status(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "abc123", st.Commit)
		assert.Equal(t, 2, st.Ahead)
	})

	t.Run("remote branch not created yet", func(t *testing.T) {
		c, mock, _ := newTestClient(t, remoteOpts)
		mock.ExpectSuccess(statusCmd, []byte(nul("# branch.oid abc123", "# branch.head main")))
		mock.ExpectFailure(trackingCmd, nil, errExit)
		mock.ExpectSuccess("git -C /repo rev-list --count HEAD", []byte("3\n"))

		st, err := c.Status(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 3, st.Ahead)
	})

	t.Run("no commits yet", func(t *testing.T) {
		c, mock, _ := newTestClient(t, remoteOpts)
		mock.ExpectSuccess(statusCmd, []byte(nul("# branch.oid (initial)", "# branch.head main", "? a.md")))

		st, err := c.Status(context.Background())
		require.NoError(t, err)
		assert.Zero(t, st.Ahead)
		assert.Len(t, mock.Calls, 1)
	})

	t.Run("upstream set", func(t *testing.T) {
		c, mock, _ := newTestClient(t, remoteOpts)
		mock.ExpectSuccess(statusCmd, []byte(nul(
			"# branch.oid abc123", "# branch.head main", "# branch.upstream origin/main", "# branch.ab +1 -0")))

		st, err := c.Status(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, st.Ahead)
		assert.Len(t, mock.Calls, 1)
	})

	t.Run("local only", func(t *testing.T) {
		c, mock, _ := newTestClient(t, Options{})
		mock.ExpectSuccess(statusCmd, []byte(nul("# branch.oid abc123", "# branch.head main")))

		st, err := c.Status(context.Background())
		require.NoError(t, err)
		assert.Zero(t, st.Ahead)
		assert.Len(t, mock.Calls, 1)
	})

	t.Run("count fails", func(t *testing.T) {
		c, mock, _ := newTestClient(t, remoteOpts)
		mock.ExpectSuccess(statusCmd, []byte(nul("# branch.oid abc123", "# branch.head main")))
		mock.ExpectSuccess(trackingCmd, []byte("def456\n"))
		mock.ExpectFailure("git -C /repo rev-list --count refs/remotes/origin/main..HEAD", []byte("fatal: bad revision\n"), errExit)

		_, err := c.Status(context.Background())
		assert.ErrorContains(t, err, "count unpushed commits")
	})
}

func TestClient_StatusNotRepository(t *testing.T) {
	c, mock, _ := newTestClient(t, Options{})
	mock.ExpectFailure("git -C /repo status --porcelain=v2 --branch --untracked-files=all -z",
		[]byte("fatal: not a git repository (or any of the parent directories): .git"), errExit)

	_, err := c.Status(context.Background())
	assert.ErrorIs(t, err, ErrNotRepository)
}

func TestClient_UnmergedPaths(t *testing.T) {
	c, mock, _ := newTestClient(t, Options{})
	mock.ExpectSuccess("git -C /repo diff --name-only --diff-filter=U", []byte("b.md\na.md\n"))

	paths, err := c.UnmergedPaths(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.md", "b.md"}, paths)
}
