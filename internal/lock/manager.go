package lock

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/bolasblack/tasksync/internal/event"
)

// Manager owns the lock registry. No other component mutates it.
type Manager struct {
	mu    sync.Mutex
	locks map[string]FileLock

	now      func() time.Time
	interval time.Duration
	log      *slog.Logger
	events   event.Emitter[EventKind, FileLock]

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces the wall clock used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithSweepInterval overrides SweepInterval.
func WithSweepInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithLogger sets the logger used for sweep diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// NewManager creates an empty registry. Call Start to run the expiry sweep.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		locks:    make(map[string]FileLock),
		now:      time.Now,
		interval: SweepInterval,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Acquire claims path for owner for ttl (DefaultTTL when ttl <= 0).
//
// It returns false when a live lock on path belongs to another owner. The same
// owner acquiring again refreshes the lock; there is no depth counting, so a
// single Release frees the path.
func (m *Manager) Acquire(path, owner string, ttl time.Duration) (FileLock, bool) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	m.mu.Lock()
	now := m.now()
	existing, held := m.locks[path]
	var stale *FileLock
	if held {
		if !existing.IsExpired(now) && existing.Owner != owner {
			m.mu.Unlock()
			return FileLock{}, false
		}
		if existing.IsExpired(now) {
			stale = &existing
		}
	}

	lock := FileLock{
		Path:     path,
		Owner:    owner,
		Acquired: now,
		Expires:  now.Add(ttl),
	}
	m.locks[path] = lock
	m.mu.Unlock()

	if stale != nil {
		m.events.Emit(EventExpired, *stale)
	}
	m.events.Emit(EventAcquired, lock)
	return lock, true
}

// Release frees path if owner holds a live lock on it. It returns false
// without touching the registry when the lock is absent or owned by someone
// else. An expired lock of owner is evicted as if swept and also reports false.
func (m *Manager) Release(path, owner string) bool {
	m.mu.Lock()
	existing, held := m.locks[path]
	if !held || existing.Owner != owner {
		m.mu.Unlock()
		return false
	}
	delete(m.locks, path)
	expired := existing.IsExpired(m.now())
	m.mu.Unlock()

	if expired {
		m.events.Emit(EventExpired, existing)
		return false
	}
	m.events.Emit(EventReleased, existing)
	return true
}

// IsLocked returns the live lock on path, if any.
func (m *Manager) IsLocked(path string) (FileLock, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, held := m.locks[path]
	if !held || lock.IsExpired(m.now()) {
		return FileLock{}, false
	}
	return lock, true
}

// ActiveLocks returns every live lock sorted by path. Expired entries are
// skipped but stay in the registry until the next sweep or acquisition.
func (m *Manager) ActiveLocks() []FileLock {
	m.mu.Lock()
	now := m.now()
	active := make([]FileLock, 0, len(m.locks))
	for _, lock := range m.locks {
		if !lock.IsExpired(now) {
			active = append(active, lock)
		}
	}
	m.mu.Unlock()

	sort.Slice(active, func(i, j int) bool { return active[i].Path < active[j].Path })
	return active
}

// Sweep evicts every expired lock and emits EventExpired for each.
// It returns the evicted locks.
func (m *Manager) Sweep() []FileLock {
	m.mu.Lock()
	now := m.now()
	var evicted []FileLock
	for path, lock := range m.locks {
		if lock.IsExpired(now) {
			evicted = append(evicted, lock)
			delete(m.locks, path)
		}
	}
	m.mu.Unlock()

	sort.Slice(evicted, func(i, j int) bool { return evicted[i].Path < evicted[j].Path })
	for _, lock := range evicted {
		m.log.Debug("lock expired", "path", lock.Path, "owner", lock.Owner)
		m.events.Emit(EventExpired, lock)
	}
	return evicted
}

// Subscribe registers handler for a lock event kind.
func (m *Manager) Subscribe(kind EventKind, handler func(FileLock)) event.Token {
	return m.events.Subscribe(kind, handler)
}

// Unsubscribe removes a subscription created by Subscribe.
func (m *Manager) Unsubscribe(token event.Token) bool {
	return m.events.Unsubscribe(token)
}

// Start runs the expiry sweep in the background until Stop or ctx is done.
// Calling Start on a running manager is a no-op.
func (m *Manager) Start(ctx context.Context) {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.cancel = cancel
	m.done = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Sweep()
			}
		}
	}()
}

// Stop cancels the sweep. Held locks are not released.
func (m *Manager) Stop() {
	m.runMu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
