package sync

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/bolasblack/tasksync/internal/git"
	"github.com/bolasblack/tasksync/internal/lock"
)

const (
	testRoot  = "/tasks"
	testOwner = "session-me"
)

var errNetwork = errors.New("could not resolve host")

// fakeClient is a scripted Client. Nil funcs behave like a clean repository.
type fakeClient struct {
	mu sync.Mutex

	ensureFn func(ctx context.Context) error
	pullFn   func(ctx context.Context) (git.PullResult, error)
	statusFn func(ctx context.Context) (git.WorkStatus, error)
	commitFn func(ctx context.Context, paths []string, msg string) error
	pushFn   func(ctx context.Context) (git.PushResult, error)

	calls   []string
	commits [][]string
	msgs    []string
}

var _ Client = (*fakeClient)(nil)

func (f *fakeClient) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeClient) count(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeClient) committed() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.commits)
}

func (f *fakeClient) EnsureRepo(ctx context.Context, _ ...string) error {
	f.record("ensure")
	if f.ensureFn != nil {
		return f.ensureFn(ctx)
	}
	return nil
}

func (f *fakeClient) Pull(ctx context.Context) (git.PullResult, error) {
	f.record("pull")
	if f.pullFn != nil {
		return f.pullFn(ctx)
	}
	return git.PullResult{}, nil
}

func (f *fakeClient) Status(ctx context.Context) (git.WorkStatus, error) {
	f.record("status")
	if f.statusFn != nil {
		return f.statusFn(ctx)
	}
	return git.WorkStatus{Branch: "main"}, nil
}

func (f *fakeClient) Commit(ctx context.Context, paths []string, msg string) error {
	f.record("commit")
	f.mu.Lock()
	f.commits = append(f.commits, slices.Clone(paths))
	f.msgs = append(f.msgs, msg)
	f.mu.Unlock()
	if f.commitFn != nil {
		return f.commitFn(ctx, paths, msg)
	}
	return nil
}

func (f *fakeClient) Push(ctx context.Context) (git.PushResult, error) {
	f.record("push")
	if f.pushFn != nil {
		return f.pushFn(ctx)
	}
	return git.PushResult{}, nil
}

// dirtyUntilCommit reports paths as changed until they are committed.
func dirtyUntilCommit(f *fakeClient, paths ...string) {
	var mu sync.Mutex
	pending := slices.Clone(paths)
	f.statusFn = func(context.Context) (git.WorkStatus, error) {
		mu.Lock()
		defer mu.Unlock()
		return git.WorkStatus{Branch: "main", Changed: slices.Clone(pending)}, nil
	}
	f.commitFn = func(_ context.Context, committed []string, _ string) error {
		mu.Lock()
		defer mu.Unlock()
		pending = slices.DeleteFunc(pending, func(p string) bool { return slices.Contains(committed, p) })
		return nil
	}
}

type fakeGuard struct {
	mu     sync.Mutex
	held   bool
	denied bool
}

func (g *fakeGuard) TryLock() (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.denied || g.held {
		return false, nil
	}
	g.held = true
	return true, nil
}

func (g *fakeGuard) Unlock() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.held = false
	return nil
}

type testHarness struct {
	m       *Manager
	client  *fakeClient
	locks   *lock.Manager
	fs      afero.Fs
	env     *SyncEnv
	factory int
	mu      sync.Mutex
	states  []State
	events  []Event
}

func defaultTestConfig() Config {
	return Config{Enabled: true, AutoPullInterval: time.Hour}
}

func newHarness(t *testing.T, client *fakeClient, cfg Config, opts ...Option) *testHarness {
	t.Helper()
	h := &testHarness{
		client: client,
		locks:  lock.NewManager(),
		fs:     afero.NewMemMapFs(),
	}
	h.env = NewSyncEnv(h.fs, h.locks, func(dir string, _ RemoteConfig) (Client, error) {
		h.mu.Lock()
		h.factory++
		h.mu.Unlock()
		return h.client, nil
	}, nil)
	h.m = NewManager(h.env, testRoot, testOwner, cfg, opts...)
	for _, kind := range []EventKind{EventStatus, EventError, EventConflict} {
		h.m.Subscribe(kind, h.record)
	}
	t.Cleanup(h.m.Stop)
	return h
}

func (h *testHarness) record(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
	if ev.Kind == EventStatus {
		h.states = append(h.states, ev.Status.State)
	}
}

func (h *testHarness) recordedStates() []State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.states)
}

func (h *testHarness) recordedEvents(kind EventKind) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []Event
	for _, ev := range h.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func (h *testHarness) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.states = nil
	h.events = nil
}

func (h *testHarness) factoryCalls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.factory
}
