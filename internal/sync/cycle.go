package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/bolasblack/tasksync/internal/git"
)

// cycle runs pull, commit and push once. Caller holds cycleMu.
//
// explicit is true for SyncNow and RunCycle; only explicit cycles leave ERROR.
// Failures enter ERROR and are returned; conflicts enter CONFLICT and are not
// errors.
func (m *Manager) cycle(ctx context.Context, explicit bool) error {
	if g := m.env.Guard; g != nil {
		ok, err := g.TryLock()
		if err != nil {
			return fmt.Errorf("acquire cycle lock: %w", err)
		}
		if !ok {
			return ErrSyncAlreadyRunning
		}
		defer func() {
			if err := g.Unlock(); err != nil {
				m.log.Warn("failed to release cycle lock", "error", err)
			}
		}()
	}

	if proceed, err := m.enterCycle(explicit); !proceed {
		return err
	}

	client, err := m.clientFor()
	if err != nil {
		m.fail(err)
		return err
	}
	if !m.prepared.Load() {
		if err := m.prepare(ctx, client); err != nil {
			return err
		}
		if m.Status().State == StateConflict {
			return nil
		}
	}

	cc := m.snapshotConfig()

	m.publish(StatePulling, nil)
	pull, err := client.Pull(ctx)
	if err != nil {
		err = fmt.Errorf("pull: %w", err)
		m.fail(err)
		return err
	}
	if pull.HasConflicts() {
		kind := ConflictLocalChanges
		if pull.Interrupted {
			kind = ConflictMerge
		}
		m.enterConflict(kind, pull.Conflicted)
		return nil
	}

	ws, err := client.Status(ctx)
	if err != nil {
		err = fmt.Errorf("status: %w", err)
		m.fail(err)
		return err
	}
	if ws.HasConflicts() {
		m.enterConflict(ConflictMerge, ws.Conflicted)
		return nil
	}

	candidates := filterIgnored(cc.ignore, ws.Changed)
	acquired, deferred, release := m.lockPaths(candidates, cc.cfg.LockTTL)
	defer release()
	m.setDeferred(deferred)
	if len(deferred) > 0 {
		m.log.Info("sync deferred locked paths", "paths", deferred)
	}

	if len(acquired) == 0 && ws.Ahead == 0 {
		m.succeed(deferred)
		return nil
	}

	m.publish(StateCommitting, func(s *Status) {
		s.PendingChanges = len(candidates)
		s.Deferred = deferred
	})
	committed := false
	if len(acquired) > 0 {
		msg, err := renderCommitMessage(cc.tmpl, acquired, m.now())
		if err != nil {
			m.fail(err)
			return err
		}
		switch err := client.Commit(ctx, acquired, msg); {
		case err == nil:
			committed = true
		case git.IsNothingToCommit(err):
		default:
			err = fmt.Errorf("commit: %w", err)
			m.fail(err)
			return err
		}
	}
	if !committed && ws.Ahead == 0 {
		m.succeed(deferred)
		return nil
	}

	m.publish(StatePushing, func(s *Status) { s.PendingChanges = len(deferred) })
	push, err := client.Push(ctx)
	if err != nil {
		err = fmt.Errorf("push: %w", err)
		m.fail(err)
		return err
	}
	if push.Rejected {
		m.enterConflict(ConflictPushRejected, acquired)
		return nil
	}

	m.succeed(deferred)
	return nil
}

// enterCycle decides whether a cycle may start from the current state.
func (m *Manager) enterCycle(explicit bool) (bool, error) {
	m.statusMu.RLock()
	state, kind := m.status.State, m.conflictKind
	m.statusMu.RUnlock()

	switch state {
	case StateConflict:
		if kind.Sticky() {
			return false, ErrUnresolvedConflict
		}
		// A rejected push clears itself: pull again from IDLE.
		m.clearConflict()
	case StateError:
		if !explicit {
			return false, nil
		}
		m.publish(StateIdle, nil)
	}
	return true, nil
}

// prepare ensures the repository exists and loads status and persisted
// conflicts. Caller holds cycleMu.
func (m *Manager) prepare(ctx context.Context, client Client) error {
	if err := client.EnsureRepo(ctx, builtinIgnore...); err != nil {
		err = fmt.Errorf("prepare repository: %w", err)
		m.fail(err)
		return err
	}
	ws, err := client.Status(ctx)
	if err != nil {
		err = fmt.Errorf("status: %w", err)
		m.fail(err)
		return err
	}
	cache, err := ReadCache(m.env.Fs, m.root)
	if err != nil {
		m.log.Warn("ignoring unreadable conflict cache", "error", err)
	}
	m.prepared.Store(true)

	if ws.HasConflicts() {
		m.enterConflict(ConflictMerge, ws.Conflicted)
		return nil
	}
	if sticky := cache.Sticky(); len(sticky) > 0 {
		kind := ConflictLocalChanges
		paths := make([]string, 0, len(sticky))
		for _, ci := range sticky {
			if ci.Kind == ConflictMerge {
				kind = ConflictMerge
			}
			paths = append(paths, ci.Path)
		}
		m.enterConflict(kind, paths)
		return nil
	}

	if m.Status().State == StateConflict {
		return nil
	}
	pending := filterIgnored(m.snapshotConfig().ignore, ws.Changed)
	m.publish(StateIdle, func(s *Status) { s.PendingChanges = len(pending) })
	return nil
}

// lockPaths takes the per-path locks for a commit. Paths locked by another
// owner are deferred. Locks this owner already held are used but not
// released by the returned func.
func (m *Manager) lockPaths(paths []string, ttl time.Duration) (acquired, deferred []string, release func()) {
	var taken []string
	for _, p := range paths {
		if held, ok := m.env.Locks.IsLocked(p); ok && held.Owner == m.owner {
			acquired = append(acquired, p)
			continue
		}
		if _, ok := m.env.Locks.Acquire(p, m.owner, ttl); ok {
			acquired = append(acquired, p)
			taken = append(taken, p)
			continue
		}
		deferred = append(deferred, p)
	}
	release = func() {
		for _, p := range taken {
			m.env.Locks.Release(p, m.owner)
		}
	}
	return acquired, deferred, release
}

// succeed ends a cycle in IDLE.
func (m *Manager) succeed(deferred []string) {
	now := m.now()
	m.publish(StateIdle, func(s *Status) {
		s.LastSyncedAt = now
		s.LastError = nil
		s.PendingChanges = len(deferred)
		s.Deferred = deferred
	})
}
