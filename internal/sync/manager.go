package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"
	"text/template"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/bolasblack/tasksync/internal/event"
	"github.com/bolasblack/tasksync/internal/lock"
)

// DefaultAutoPullInterval is used when the config carries no interval.
const DefaultAutoPullInterval = 5 * time.Minute

// ErrStopped is returned by Initialize after Stop.
var ErrStopped = errors.New("sync manager stopped")

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithClock replaces the wall clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLastSynced seeds LastSyncedAt, e.g. from the state file.
func WithLastSynced(t time.Time) Option {
	return func(m *Manager) { m.status.LastSyncedAt = t }
}

// Manager runs sync cycles for one task directory. It is the sole writer of
// its Status. All methods are safe for concurrent use.
//
// Event handlers run synchronously on the goroutine that made the
// transition. They may call Status and SyncNow but must not call Resolve.
type Manager struct {
	env   *SyncEnv
	root  string
	owner string
	log   *slog.Logger
	now   func() time.Time

	cfgMu  sync.Mutex
	cfg    Config
	ignore *gitignore.GitIgnore
	tmpl   *template.Template
	client Client

	// emitMu serializes transitions so snapshots are delivered in order.
	emitMu       sync.Mutex
	statusMu     sync.RWMutex
	status       Status
	conflictKind ConflictKind
	events       event.Emitter[EventKind, Event]

	deferred mapset.Set[string]
	prepared atomic.Bool

	// cycleMu is held for the duration of a cycle.
	cycleMu sync.Mutex

	trigger         chan struct{}
	reschedule      chan struct{}
	explicitPending atomic.Bool

	runMu      sync.Mutex
	started    bool
	stopped    bool
	cancel     context.CancelFunc
	loopDone   chan struct{}
	lockTokens []event.Token
}

// NewManager creates a Manager for the task directory root. owner is the
// lock owner identity of this session. Call Initialize to start it.
func NewManager(env *SyncEnv, root, owner string, cfg Config, opts ...Option) *Manager {
	m := &Manager{
		env:        env,
		root:       root,
		owner:      owner,
		log:        slog.Default(),
		now:        time.Now,
		status:     Status{State: StateIdle},
		deferred:   mapset.NewSet[string](),
		trigger:    make(chan struct{}, 1),
		reschedule: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.setConfig(cfg)
	return m
}

// setConfig stores cfg and derived values. Caller must not hold cfgMu.
func (m *Manager) setConfig(cfg Config) {
	tmpl, err := parseCommitTemplate(cfg.CommitMessage)
	if err != nil {
		m.log.Warn("invalid commit message template, using default", "error", err)
		tmpl, _ = parseCommitTemplate("")
	}
	ig := compileIgnore(cfg.Ignore)

	m.cfgMu.Lock()
	defer m.cfgMu.Unlock()
	m.cfg = cfg
	m.cfg.Ignore = slices.Clone(cfg.Ignore)
	m.ignore = ig
	m.tmpl = tmpl
}

type cycleConfig struct {
	cfg    Config
	ignore *gitignore.GitIgnore
	tmpl   *template.Template
}

func (m *Manager) snapshotConfig() cycleConfig {
	m.cfgMu.Lock()
	defer m.cfgMu.Unlock()
	return cycleConfig{cfg: m.cfg, ignore: m.ignore, tmpl: m.tmpl}
}

// Config returns the configuration in effect.
func (m *Manager) Config() Config {
	return m.snapshotConfig().cfg
}

func (m *Manager) interval() time.Duration {
	if d := m.Config().AutoPullInterval; d > 0 {
		return d
	}
	return DefaultAutoPullInterval
}

// clientFor returns the git client, building it on first use or after a
// remote change. A factory failure is returned and retried next time.
func (m *Manager) clientFor() (Client, error) {
	m.cfgMu.Lock()
	defer m.cfgMu.Unlock()
	if m.client != nil {
		return m.client, nil
	}
	c, err := m.env.NewClient(m.root, m.cfg.Remote)
	if err != nil {
		return nil, fmt.Errorf("create git client: %w", err)
	}
	m.client = c
	return c, nil
}

// Initialize starts the scheduler and lock watch, ensures the repository
// exists and loads the current status and persisted conflicts. It is
// idempotent; a failed preparation is retried by the next call or cycle.
func (m *Manager) Initialize(ctx context.Context) error {
	m.runMu.Lock()
	if m.stopped {
		m.runMu.Unlock()
		return ErrStopped
	}
	if !m.started {
		m.started = true
		m.lockTokens = []event.Token{
			m.env.Locks.Subscribe(lock.EventReleased, m.onLockFreed),
			m.env.Locks.Subscribe(lock.EventExpired, m.onLockFreed),
		}
		if m.Config().Enabled {
			m.startLoop()
		}
	}
	m.runMu.Unlock()

	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()
	if m.prepared.Load() {
		return nil
	}
	client, err := m.clientFor()
	if err != nil {
		m.fail(err)
		return err
	}
	return m.prepare(ctx, client)
}

// SyncNow requests a cycle. Requests made while a cycle is running coalesce
// into one follow-up cycle. It is a no-op when disabled, stopped or while
// a conflict awaits Resolve. An explicit request also leaves ERROR.
func (m *Manager) SyncNow() {
	m.schedule(true)
}

func (m *Manager) schedule(explicit bool) {
	if !m.Config().Enabled {
		return
	}
	m.runMu.Lock()
	stopped := m.stopped
	m.runMu.Unlock()
	if stopped {
		return
	}

	m.statusMu.RLock()
	stuck := m.status.State == StateConflict && m.conflictKind.Sticky()
	m.statusMu.RUnlock()
	if stuck {
		m.log.Debug("sync request ignored: conflict awaits resolution")
		return
	}

	if explicit {
		m.explicitPending.Store(true)
	}
	select {
	case m.trigger <- struct{}{}:
	default:
	}
}

// RunCycle runs one cycle synchronously on the caller's goroutine.
// It returns ErrSyncAlreadyRunning instead of waiting for a cycle in flight.
// A conflict found during the cycle is reported through the Status, not
// the error.
func (m *Manager) RunCycle(ctx context.Context) (Status, error) {
	if !m.Config().Enabled {
		return m.Status(), ErrSyncDisabled
	}
	if !m.cycleMu.TryLock() {
		return m.Status(), ErrSyncAlreadyRunning
	}
	defer m.cycleMu.Unlock()

	err := m.cycle(ctx, true)
	return m.Status(), err
}

// UpdateConfig applies cfg without interrupting a running cycle; the cycle
// in flight finishes with the old settings. A changed interval reschedules
// the next tick from now. A changed remote rebuilds the git client. Held
// locks are unaffected.
func (m *Manager) UpdateConfig(cfg Config) {
	old := m.Config()
	m.setConfig(cfg)

	if !reflect.DeepEqual(old.Remote, cfg.Remote) {
		m.cfgMu.Lock()
		m.client = nil
		m.cfgMu.Unlock()
		m.prepared.Store(false)
		m.log.Info("sync remote changed", "url", cfg.Remote.URL, "branch", cfg.Remote.Branch)
	}
	if old.AutoPullInterval != cfg.AutoPullInterval {
		select {
		case m.reschedule <- struct{}{}:
		default:
		}
	}
}

// Resolve leaves CONFLICT after the user resolved it, clears the persisted
// conflicts and requests a cycle to publish the resolution. If the
// repository is still conflicted the next cycle reports it again.
func (m *Manager) Resolve() {
	m.statusMu.RLock()
	inConflict := m.status.State == StateConflict
	m.statusMu.RUnlock()
	if !inConflict {
		return
	}

	m.clearConflict()
	m.SyncNow()
}

// Stop cancels future cycles and waits for a cycle in flight to finish.
// Locks are kept.
func (m *Manager) Stop() {
	m.runMu.Lock()
	m.stopped = true
	cancel, done := m.cancel, m.loopDone
	m.cancel, m.loopDone = nil, nil
	tokens := m.lockTokens
	m.lockTokens = nil
	m.runMu.Unlock()

	for _, t := range tokens {
		m.env.Locks.Unsubscribe(t)
	}
	if cancel != nil {
		cancel()
		<-done
	}
}

// Status returns the latest snapshot.
func (m *Manager) Status() Status {
	m.statusMu.RLock()
	defer m.statusMu.RUnlock()
	return m.status.clone()
}

// Subscribe registers handler for kind.
func (m *Manager) Subscribe(kind EventKind, handler func(Event)) event.Token {
	return m.events.Subscribe(kind, handler)
}

// Unsubscribe removes a subscription created by Subscribe.
func (m *Manager) Unsubscribe(token event.Token) bool {
	return m.events.Unsubscribe(token)
}

// onLockFreed schedules a cycle when a deferred path becomes available.
func (m *Manager) onLockFreed(l lock.FileLock) {
	if l.Owner == m.owner || !m.deferred.Contains(l.Path) {
		return
	}
	m.log.Debug("deferred path unlocked", "path", l.Path)
	m.schedule(false)
}

// publish moves to state to after applying mutate, then delivers the status
// snapshot followed by extra events. Invalid transitions are refused.
func (m *Manager) publish(to State, mutate func(*Status), extra ...Event) bool {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()

	m.statusMu.Lock()
	from := m.status.State
	if from != to && !CanTransition(from, to) {
		m.statusMu.Unlock()
		m.log.Error("invalid sync transition refused", "from", from, "to", to)
		return false
	}
	m.status.State = to
	if to != StateConflict {
		m.conflictKind = ""
		m.status.Conflicts = nil
	}
	if mutate != nil {
		mutate(&m.status)
	}
	snap := m.status.clone()
	m.statusMu.Unlock()

	m.log.Debug("sync state", "from", from, "to", to)
	m.events.Emit(EventStatus, Event{Kind: EventStatus, Status: snap})
	for _, ev := range extra {
		m.events.Emit(ev.Kind, ev)
	}
	return true
}

// fail enters ERROR and emits err.
func (m *Manager) fail(err error) {
	m.log.Warn("sync failed", "error", err)
	m.publish(StateError, func(s *Status) { s.LastError = err }, Event{Kind: EventError, Err: err})
}

// enterConflict enters CONFLICT, persists the conflicts and emits them.
func (m *Manager) enterConflict(kind ConflictKind, paths []string) {
	now := m.now()
	prev, err := ReadCache(m.env.Fs, m.root)
	if err != nil {
		m.log.Warn("ignoring unreadable conflict cache", "error", err)
	}
	cache := &CacheData{UpdatedAt: now, Conflicts: mergeConflicts(prev, kind, paths, now)}
	if err := WriteCache(m.env.Fs, m.root, cache); err != nil {
		m.log.Warn("failed to persist conflicts", "error", err)
	}

	sorted := cache.Paths()
	m.log.Info("sync conflict", "kind", kind, "paths", sorted)
	m.publish(StateConflict, func(s *Status) {
		s.Conflicts = sorted
		m.conflictKind = kind
	}, Event{Kind: EventConflict, Conflicts: slices.Clone(sorted)})
}

// clearConflict leaves CONFLICT for IDLE and clears the persisted conflicts.
func (m *Manager) clearConflict() {
	if err := ClearCache(m.env.Fs, m.root, m.now()); err != nil {
		m.log.Warn("failed to clear conflict cache", "error", err)
	}
	m.publish(StateIdle, nil)
}

func (m *Manager) setDeferred(paths []string) {
	m.deferred.Clear()
	m.deferred.Append(paths...)
}
