package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/bolasblack/tasksync/internal/config"
	"github.com/bolasblack/tasksync/internal/coordinator"
	"github.com/bolasblack/tasksync/internal/lock"
	"github.com/bolasblack/tasksync/internal/state"
	tsync "github.com/bolasblack/tasksync/internal/sync"
	"github.com/bolasblack/tasksync/internal/util"
)

// Common error messages for CLI commands.
const (
	ErrMsgConfigNotFound = "configuration not found: run 'tsync init' first"
	ErrMsgStateNotFound  = "no state file found: run 'tsync init' first"
)

// taskDir returns the absolute task directory from --dir or the working directory.
func taskDir() (string, error) {
	if rootDir != "" {
		dir, err := filepath.Abs(rootDir)
		if err != nil {
			return "", fmt.Errorf("failed to resolve --dir: %w", err)
		}
		return dir, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}
	return cwd, nil
}

// configPath returns the config file path of a task directory.
func configPath(dir string) string {
	return filepath.Join(dir, util.ConfigFilename)
}

// loadRequiredConfig loads the task directory's configuration.
// Returns an error with a user-friendly message if it does not exist.
func loadRequiredConfig(env *util.Env, dir string) (config.Config, error) {
	cfg, err := config.LoadConfig(env, configPath(dir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return config.Config{}, errors.New(ErrMsgConfigNotFound)
		}
		return config.Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// loadRequiredState loads state file and returns error if not found.
func loadRequiredState(env *util.Env, dir string) (*state.State, error) {
	st, err := state.Load(env, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}
	if st == nil {
		return nil, errors.New(ErrMsgStateNotFound)
	}
	return st, nil
}

// remoteSnapshot returns the remote part of cfg recorded in the state file.
func remoteSnapshot(cfg config.Config) *state.RemoteSnapshot {
	return &state.RemoteSnapshot{URL: cfg.Remote.URL, Branch: cfg.Remote.Branch}
}

// displayRemoteDrift prints remote drift information to the writer.
// Returns true if there was any drift to display.
func displayRemoteDrift(w io.Writer, drift *state.RemoteDrift) bool {
	if !drift.HasDrift() {
		return false
	}

	fmt.Fprintln(w, "Remote has changed since 'tsync init':")
	if drift.Old.URL != drift.New.URL {
		fmt.Fprintf(w, "  URL: %s → %s\n", displayURL(drift.Old.URL), displayURL(drift.New.URL))
	}
	if drift.Old.Branch != drift.New.Branch {
		fmt.Fprintf(w, "  Branch: %s → %s\n", drift.Old.Branch, drift.New.Branch)
	}
	return true
}

func displayURL(url string) string {
	if url == "" {
		return "(local only)"
	}
	return url
}

// newSyncManager builds a manager for a one-shot command. The lock
// registry is private to this process and never swept.
func newSyncManager(deps *cliDeps, dir string, cfg config.Config, st *state.State) (*tsync.Manager, error) {
	guard, err := deps.NewGuard(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare cycle lock: %w", err)
	}
	env := tsync.NewSyncEnv(deps.Env.Fs, lock.NewManager(),
		coordinator.GitClientFactory(deps.Env.Fs, deps.Env.Cmd, deps.Getenv), guard)

	opts := []tsync.Option{tsync.WithClock(deps.Now)}
	if st.LastSyncedAt != nil {
		opts = append(opts, tsync.WithLastSynced(*st.LastSyncedAt))
	}
	return tsync.NewManager(env, dir, st.SessionID, coordinator.SyncConfig(cfg), opts...), nil
}

// showConflictBanner renders cached conflicts on w.
// Best-effort: errors are printed to w but do not fail the command.
func showConflictBanner(env *util.Env, dir string, w io.Writer) {
	cache, err := tsync.ReadCache(env.Fs, dir)
	if err != nil {
		_, _ = fmt.Fprintf(w, "Warning: failed to read sync conflicts: %v\n", err)
		return
	}
	if cache != nil && len(cache.Conflicts) > 0 {
		tsync.RenderBanner(cache.Conflicts, w)
	}
}

// out returns the command's stdout.
func out(cmd *cobra.Command) io.Writer {
	return cmd.OutOrStdout()
}

// progressStep writes a progress message with → prefix (step in progress).
// Delegates to util.ProgressStep for shared implementation.
var progressStep = util.ProgressStep

// progressDone writes a progress message with ✓ prefix (step completed).
// Delegates to util.ProgressDone for shared implementation.
var progressDone = util.ProgressDone

// progressWarn writes a progress message with ⚠ prefix.
var progressWarn = util.ProgressWarn
