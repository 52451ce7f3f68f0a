// Package coordinator owns the sync manager of a task directory across
// configuration changes.
package coordinator

import (
	"context"
	"log/slog"
	"sync"

	"github.com/bolasblack/tasksync/internal/config"
	"github.com/bolasblack/tasksync/internal/event"
	tsync "github.com/bolasblack/tasksync/internal/sync"
)

var eventKinds = []tsync.EventKind{tsync.EventStatus, tsync.EventError, tsync.EventConflict}

// Coordinator keeps at most one sync manager for the current configuration.
// Disabling sync stops and discards the manager; enabling it builds a new
// one. Subscriptions are held by the coordinator and survive recreation.
type Coordinator struct {
	env   *tsync.SyncEnv
	root  string
	owner string
	log   *slog.Logger
	opts  []tsync.Option

	mu        sync.Mutex
	manager   *tsync.Manager
	tokens    []event.Token
	status    tsync.Status
	hasStatus bool

	events event.Emitter[tsync.EventKind, tsync.Event]
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger passed to managers.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.log = l }
}

// WithManagerOptions adds options to every manager the coordinator builds.
func WithManagerOptions(opts ...tsync.Option) Option {
	return func(c *Coordinator) { c.opts = append(c.opts, opts...) }
}

// New creates a Coordinator for the task directory root. owner is the lock
// owner of this session. No manager exists until Apply.
func New(env *tsync.SyncEnv, root, owner string, opts ...Option) *Coordinator {
	c := &Coordinator{
		env:   env,
		root:  root,
		owner: owner,
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SyncConfig converts a loaded configuration into manager settings.
// Durations are normalized here, once.
func SyncConfig(cfg config.Config) tsync.Config {
	return tsync.Config{
		Enabled:          cfg.Sync.IsEnabled(),
		AutoPullInterval: cfg.Sync.AutoPullInterval.Duration(),
		LockTTL:          cfg.Sync.LockTTL.Duration(),
		CommitMessage:    cfg.Sync.CommitMessage,
		Ignore:           cfg.Ignore,
		Remote: tsync.RemoteConfig{
			Name:           cfg.Remote.Name,
			URL:            cfg.Remote.URL,
			Branch:         cfg.Remote.Branch,
			CredentialsEnv: cfg.Remote.CredentialsEnv,
			AuthorName:     cfg.Author.Name,
			AuthorEmail:    cfg.Author.Email,
			GitTimeout:     cfg.Sync.GitTimeout.Duration(),
		},
	}
}

// Apply brings the manager in line with cfg. A disabled config stops and
// discards the manager and clears the cached status. An enabled config with
// no manager builds and initializes one; otherwise the running manager is
// updated in place.
func (c *Coordinator) Apply(ctx context.Context, cfg config.Config) error {
	sc := SyncConfig(cfg)

	c.mu.Lock()
	current := c.manager
	if !sc.Enabled {
		c.manager = nil
		tokens := c.tokens
		c.tokens = nil
		c.status = tsync.Status{}
		c.hasStatus = false
		c.mu.Unlock()

		if current != nil {
			c.log.Info("sync disabled, stopping manager")
			c.detach(current, tokens)
		}
		return nil
	}
	if current != nil {
		c.mu.Unlock()
		current.UpdateConfig(sc)
		return nil
	}

	m := tsync.NewManager(c.env, c.root, c.owner, sc, append([]tsync.Option{tsync.WithLogger(c.log)}, c.opts...)...)
	c.manager = m
	c.tokens = c.attach(m)
	c.mu.Unlock()

	c.log.Info("sync enabled", "interval", sc.AutoPullInterval, "remote", sc.Remote.URL)
	return m.Initialize(ctx)
}

// attach forwards the events of m to the coordinator's subscribers.
func (c *Coordinator) attach(m *tsync.Manager) []event.Token {
	tokens := make([]event.Token, 0, len(eventKinds))
	for _, kind := range eventKinds {
		tokens = append(tokens, m.Subscribe(kind, func(ev tsync.Event) { c.forward(m, ev) }))
	}
	return tokens
}

func (c *Coordinator) detach(m *tsync.Manager, tokens []event.Token) {
	for _, t := range tokens {
		m.Unsubscribe(t)
	}
	m.Stop()
}

func (c *Coordinator) forward(from *tsync.Manager, ev tsync.Event) {
	c.mu.Lock()
	if c.manager != from {
		// Late event from a discarded manager.
		c.mu.Unlock()
		return
	}
	if ev.Kind == tsync.EventStatus {
		c.status = ev.Status
		c.hasStatus = true
	}
	c.mu.Unlock()

	c.events.Emit(ev.Kind, ev)
}

func (c *Coordinator) current() *tsync.Manager {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.manager
}

// Manager returns the active manager, or nil when sync is disabled.
func (c *Coordinator) Manager() *tsync.Manager {
	return c.current()
}

// Initialize initializes the active manager. It is a no-op without one.
func (c *Coordinator) Initialize(ctx context.Context) error {
	if m := c.current(); m != nil {
		return m.Initialize(ctx)
	}
	return nil
}

// SyncNow requests a cycle. It is a no-op without a manager.
func (c *Coordinator) SyncNow() {
	if m := c.current(); m != nil {
		m.SyncNow()
	}
}

// Resolve tells the manager the conflict was resolved. It is a no-op
// without a manager.
func (c *Coordinator) Resolve() {
	if m := c.current(); m != nil {
		m.Resolve()
	}
}

// Status returns the latest snapshot seen, and false when there is none.
func (c *Coordinator) Status() (tsync.Status, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status, c.hasStatus
}

// Subscribe registers handler for kind on whichever manager is active.
func (c *Coordinator) Subscribe(kind tsync.EventKind, handler func(tsync.Event)) event.Token {
	return c.events.Subscribe(kind, handler)
}

// Unsubscribe removes a subscription created by Subscribe.
func (c *Coordinator) Unsubscribe(token event.Token) bool {
	return c.events.Unsubscribe(token)
}

// Close stops and discards the manager.
func (c *Coordinator) Close() {
	c.mu.Lock()
	m, tokens := c.manager, c.tokens
	c.manager, c.tokens = nil, nil
	c.mu.Unlock()

	if m != nil {
		c.detach(m, tokens)
	}
}
