package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/bolasblack/tasksync/internal/config"
	"github.com/bolasblack/tasksync/internal/coordinator"
	"github.com/bolasblack/tasksync/internal/lock"
	"github.com/bolasblack/tasksync/internal/state"
	tsync "github.com/bolasblack/tasksync/internal/sync"
	"github.com/bolasblack/tasksync/internal/util"
	"github.com/bolasblack/tasksync/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the task directory in sync until interrupted",
	Long: `Run sync cycles on the configured interval until SIGINT or SIGTERM.

Changes to .tsync.toml are applied without restarting. When a conflict
stops syncing, resolve it with 'tsync conflicts resolve' from another
terminal and syncing resumes.`,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	dir, err := taskDir()
	if err != nil {
		return err
	}

	deps := newCLIDeps()
	env := deps.Env

	cfg, err := loadRequiredConfig(env, dir)
	if err != nil {
		return err
	}
	st, err := loadRequiredState(env, dir)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return watchDir(ctx, deps, dir, cfg, st, slog.Default(), cmd.ErrOrStderr())
}

// watchDir runs the daemon until ctx is done.
func watchDir(ctx context.Context, deps *cliDeps, dir string, cfg config.Config, st *state.State, log *slog.Logger, banner io.Writer) error {
	env := deps.Env

	guard, err := deps.NewGuard(dir)
	if err != nil {
		return fmt.Errorf("failed to prepare cycle lock: %w", err)
	}
	locks := lock.NewManager(lock.WithLogger(log))
	syncEnv := tsync.NewSyncEnv(env.Fs, locks, coordinator.GitClientFactory(env.Fs, env.Cmd, deps.Getenv), guard)

	managerOpts := []tsync.Option{tsync.WithClock(deps.Now)}
	if st.LastSyncedAt != nil {
		managerOpts = append(managerOpts, tsync.WithLastSynced(*st.LastSyncedAt))
	}
	coord := coordinator.New(syncEnv, dir, st.SessionID,
		coordinator.WithLogger(log),
		coordinator.WithManagerOptions(managerOpts...),
	)
	defer coord.Close()

	recorder := &syncRecorder{env: env, dir: dir, st: st, log: log}
	coord.Subscribe(tsync.EventStatus, recorder.onStatus)
	coord.Subscribe(tsync.EventError, func(ev tsync.Event) {
		log.Error("sync failed", "error", ev.Err)
	})
	coord.Subscribe(tsync.EventConflict, func(ev tsync.Event) {
		log.Warn("sync stopped on conflict", "paths", ev.Conflicts)
		showConflictBanner(env, dir, banner)
	})

	if err := coord.Apply(ctx, cfg); err != nil {
		// Already reported as an error event; a config fix or resolve recovers.
		log.Debug("initial sync setup failed", "error", err)
	}
	coord.SyncNow()

	cfgWatcher := config.NewWatcher(env, configPath(dir), cfg,
		func(c config.Config) {
			if err := coord.Apply(ctx, c); err != nil {
				log.Debug("applying config failed", "error", err)
			}
		},
		func(err error) { log.Error("invalid config ignored", "error", err) },
	)
	cfgWatcher.SetLogger(log)

	if err := env.Fs.MkdirAll(util.DataDirPath(dir), 0o755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	cacheWatcher := watch.New(util.DataDirPath(dir), func(string) {
		cache, err := tsync.ReadCache(env.Fs, dir)
		if err != nil || cache == nil {
			return
		}
		if len(cache.Conflicts) == 0 {
			coord.Resolve()
		}
	}, watch.WithFiles(tsync.CacheFilename), watch.WithLogger(log))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		locks.Start(gctx)
		<-gctx.Done()
		locks.Stop()
		return nil
	})
	g.Go(func() error {
		if err := cfgWatcher.Start(); err != nil {
			return fmt.Errorf("failed to watch config: %w", err)
		}
		<-gctx.Done()
		cfgWatcher.Stop()
		return nil
	})
	g.Go(func() error {
		if err := cacheWatcher.Start(); err != nil {
			return fmt.Errorf("failed to watch conflict cache: %w", err)
		}
		<-gctx.Done()
		cacheWatcher.Stop()
		return nil
	})

	log.Info("watching", "dir", dir, "interval", cfg.Sync.AutoPullInterval.Duration())
	err = g.Wait()
	log.Info("stopping")
	return err
}

// syncRecorder logs transitions and records completed syncs in the state file.
type syncRecorder struct {
	env *util.Env
	dir string
	st  *state.State
	log *slog.Logger

	mu sync.Mutex
}

func (r *syncRecorder) onStatus(ev tsync.Event) {
	s := ev.Status
	r.log.Debug("sync status", "state", s.State, "pending", s.PendingChanges)
	if s.State != tsync.StateIdle || s.LastSyncedAt.IsZero() {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.st.LastSyncedAt != nil && !s.LastSyncedAt.After(*r.st.LastSyncedAt) {
		return
	}
	r.st.MarkSynced(s.LastSyncedAt)
	if err := state.Save(r.env, r.dir, r.st); err != nil {
		r.log.Warn("failed to record sync", "error", err)
		return
	}
	r.log.Info("synced", "deferred", len(s.Deferred))
}
