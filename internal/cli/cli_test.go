package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	tsync "github.com/bolasblack/tasksync/internal/sync"
	"github.com/bolasblack/tasksync/internal/util"
)

const testDir = "/tasks"

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// setupCLI points commands at an in-memory task directory and a mock git.
func setupCLI(t *testing.T) (*util.Env, *util.MockCommandRunner) {
	t.Helper()
	env, mock := util.NewTestEnv()

	orig := newCLIDeps
	newCLIDeps = func() *cliDeps {
		return &cliDeps{
			Env:         env,
			Getenv:      func(string) string { return "" },
			Now:         func() time.Time { return testNow },
			NewGuard:    func(string) (tsync.CycleGuard, error) { return nil, nil },
			Interactive: func() bool { return false },
		}
	}
	t.Cleanup(func() {
		newCLIDeps = orig
		rootDir, rootVerbose = "", false
		initRemote, initBranch, initTemplate = "", "", ""
		conflictsTemplate, conflictsKeep = "", ""
	})
	return env, mock
}

// runCLI executes the root command against testDir and returns its output.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(append([]string{"--dir", testDir}, args...))
	err := rootCmd.Execute()
	return buf.String(), err
}

func writeFile(t *testing.T, fs afero.Fs, path, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
}
