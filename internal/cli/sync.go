package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bolasblack/tasksync/internal/state"
	tsync "github.com/bolasblack/tasksync/internal/sync"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync cycle now",
	Long: `Pull remote changes, commit local changes and push them, once.

Exits with an error when the cycle stops on a conflict or fails.`,
	RunE: runSync,
}

// stateLabels are the progress lines printed for each transition.
var stateLabels = map[tsync.State]string{
	tsync.StatePulling:    "Pulling",
	tsync.StateCommitting: "Committing",
	tsync.StatePushing:    "Pushing",
}

func runSync(cmd *cobra.Command, args []string) error {
	dir, err := taskDir()
	if err != nil {
		return err
	}

	deps := newCLIDeps()
	env := deps.Env
	w := out(cmd)

	cfg, err := loadRequiredConfig(env, dir)
	if err != nil {
		return err
	}
	st, err := loadRequiredState(env, dir)
	if err != nil {
		return err
	}

	m, err := newSyncManager(deps, dir, cfg, st)
	if err != nil {
		return err
	}
	defer m.Stop()

	m.Subscribe(tsync.EventStatus, func(ev tsync.Event) {
		if label, ok := stateLabels[ev.Status.State]; ok {
			progressStep(w, "%s\n", label)
		}
	})

	status, err := m.RunCycle(cmd.Context())
	switch {
	case errors.Is(err, tsync.ErrSyncDisabled):
		return errors.New("sync is disabled: set sync.enabled = true in .tsync.toml")
	case errors.Is(err, tsync.ErrSyncAlreadyRunning):
		return errors.New("another sync is running in this directory")
	case errors.Is(err, tsync.ErrUnresolvedConflict):
		showConflictBanner(env, dir, w)
		return fmt.Errorf("%d sync conflicts found", len(status.Conflicts))
	case err != nil:
		return fmt.Errorf("sync failed: %w", err)
	}

	if status.State == tsync.StateConflict {
		showConflictBanner(env, dir, w)
		return fmt.Errorf("%d sync conflicts found", len(status.Conflicts))
	}

	st.MarkSynced(status.LastSyncedAt)
	if err := state.Save(env, dir, st); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}

	if len(status.Deferred) > 0 {
		progressWarn(w, "Deferred %d locked file(s)\n", len(status.Deferred))
	}
	progressDone(w, "Synced\n")
	return nil
}
