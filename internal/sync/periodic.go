package sync

import (
	"context"
	"errors"
	"time"
)

// startLoop runs the scheduler. Caller holds runMu.
func (m *Manager) startLoop() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.cancel = cancel
	m.loopDone = done
	go m.loop(ctx, done)
}

// loop runs a cycle on every timer tick and trigger. The timer is reset
// after each cycle, so ticks never queue up behind a slow cycle.
func (m *Manager) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(m.interval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			m.runScheduled(ctx, false)
		case <-m.trigger:
			m.runScheduled(ctx, m.explicitPending.Swap(false))
		case <-m.reschedule:
			m.log.Debug("sync interval changed", "interval", m.interval())
		}
		timer.Reset(m.interval())
	}
}

// runScheduled runs one cycle unless another is in flight. The cycle is
// detached from ctx so Stop lets in-flight git commands finish; they are
// bounded by the git client timeout.
func (m *Manager) runScheduled(ctx context.Context, explicit bool) {
	if ctx.Err() != nil {
		return
	}
	if !m.Config().Enabled {
		return
	}
	if !m.cycleMu.TryLock() {
		m.log.Debug("sync cycle skipped: already running")
		return
	}
	defer m.cycleMu.Unlock()

	err := m.cycle(context.WithoutCancel(ctx), explicit)
	switch {
	case err == nil:
	case errors.Is(err, ErrUnresolvedConflict):
		m.log.Debug("sync cycle skipped: conflict awaits resolution")
	case errors.Is(err, ErrSyncAlreadyRunning):
		m.log.Debug("sync cycle skipped: another process is syncing")
	default:
		m.log.Debug("sync cycle failed", "error", err)
	}
}
