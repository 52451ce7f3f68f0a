package cli

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/bolasblack/tasksync/internal/config"
	"github.com/bolasblack/tasksync/internal/coordinator"
	"github.com/bolasblack/tasksync/internal/state"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current tasksync status",
	Long:  `Display the configuration, last sync, pending changes and unresolved conflicts of the task directory.`,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	dir, err := taskDir()
	if err != nil {
		return err
	}

	deps := newCLIDeps()
	env := deps.Env
	w := out(cmd)
	path := configPath(dir)

	if _, err := env.Fs.Stat(path); err != nil {
		fmt.Fprintln(w, "Status: Not initialized")
		fmt.Fprintln(w, "")
		fmt.Fprintln(w, "Run 'tsync init' to create a configuration file.")
		return nil
	}

	fmt.Fprintln(w, "Status: Initialized")
	fmt.Fprintf(w, "Config: %s\n", path)

	cfg, err := config.LoadConfig(env, path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Fprintf(w, "Remote: %s\n", describeRemote(cfg))
	if cfg.Sync.IsEnabled() {
		fmt.Fprintf(w, "Sync:   every %s\n", cfg.Sync.AutoPullInterval.Duration())
	} else {
		fmt.Fprintln(w, "Sync:   disabled")
	}
	fmt.Fprintln(w, "")

	st, err := state.Load(env, dir)
	if err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}
	if st == nil {
		fmt.Fprintln(w, "State: missing")
		fmt.Fprintln(w, "Run 'tsync init' to create it.")
		return nil
	}

	if displayRemoteDrift(w, st.DetectRemoteDrift(remoteSnapshot(cfg))) {
		fmt.Fprintln(w, "")
	}
	fmt.Fprintf(w, "Last sync: %s\n", describeLastSync(st.LastSyncedAt, deps.Now()))

	client, err := coordinator.GitClientFactory(env.Fs, env.Cmd, deps.Getenv)(dir, coordinator.SyncConfig(cfg).Remote)
	if err != nil {
		fmt.Fprintf(w, "Pending:   unknown (%v)\n", err)
	} else if ws, err := client.Status(cmd.Context()); err != nil {
		fmt.Fprintf(w, "Pending:   unknown (%v)\n", err)
	} else {
		fmt.Fprintf(w, "Pending:   %d changed file(s)", len(ws.Changed))
		if ws.Ahead > 0 {
			fmt.Fprintf(w, ", %d unpushed commit(s)", ws.Ahead)
		}
		fmt.Fprintln(w)
	}

	showConflictBanner(env, dir, w)
	return nil
}

func describeRemote(cfg config.Config) string {
	if cfg.Remote.URL == "" {
		return "local only"
	}
	return fmt.Sprintf("%s (%s)", cfg.Remote.URL, cfg.Remote.Branch)
}

func describeLastSync(at *time.Time, now time.Time) string {
	if at == nil || at.IsZero() {
		return "never"
	}
	return humanize.RelTime(*at, now, "ago", "from now")
}
