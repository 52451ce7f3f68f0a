package lock

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestManager(t *testing.T) (*Manager, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	return NewManager(WithClock(clock.Now)), clock
}

func TestAcquire_DefaultTTL(t *testing.T) {
	m, clock := newTestManager(t)

	lock, ok := m.Acquire("tasks/a.md", "alice", 0)
	require.True(t, ok)
	assert.Equal(t, "tasks/a.md", lock.Path)
	assert.Equal(t, "alice", lock.Owner)
	assert.Equal(t, clock.Now(), lock.Acquired)
	assert.Equal(t, clock.Now().Add(DefaultTTL), lock.Expires)
}

func TestAcquire_DeniedForOtherOwner(t *testing.T) {
	m, _ := newTestManager(t)

	_, ok := m.Acquire("tasks/a.md", "alice", time.Minute)
	require.True(t, ok)

	_, ok = m.Acquire("tasks/a.md", "bob", time.Minute)
	assert.False(t, ok)

	held, ok := m.IsLocked("tasks/a.md")
	require.True(t, ok)
	assert.Equal(t, "alice", held.Owner)
}

func TestAcquire_SameOwnerRefreshes(t *testing.T) {
	m, clock := newTestManager(t)

	first, ok := m.Acquire("tasks/a.md", "alice", time.Minute)
	require.True(t, ok)

	clock.Advance(30 * time.Second)
	second, ok := m.Acquire("tasks/a.md", "alice", time.Minute)
	require.True(t, ok)

	assert.True(t, second.Expires.After(first.Expires))
	assert.Equal(t, clock.Now(), second.Acquired)
	assert.Len(t, m.ActiveLocks(), 1, "re-acquisition must not create a duplicate entry")

	// No depth counting: one release frees the path.
	assert.True(t, m.Release("tasks/a.md", "alice"))
	_, ok = m.IsLocked("tasks/a.md")
	assert.False(t, ok)
}

func TestAcquire_ConcurrentOwnersExactlyOneWins(t *testing.T) {
	for round := 0; round < 50; round++ {
		m := NewManager()
		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(owner string) {
				defer wg.Done()
				if _, ok := m.Acquire("tasks/shared.md", owner, time.Minute); ok {
					wins.Add(1)
				}
			}(fmt.Sprintf("owner-%d", i))
		}
		wg.Wait()
		require.Equal(t, int32(1), wins.Load(), "round %d", round)
	}
}

func TestExpiryLiveness(t *testing.T) {
	m, clock := newTestManager(t)

	_, ok := m.Acquire("tasks/a.md", "alice", time.Minute)
	require.True(t, ok)

	clock.Advance(time.Minute - time.Nanosecond)
	_, ok = m.Acquire("tasks/a.md", "bob", time.Minute)
	assert.False(t, ok, "lock must still deny before its duration elapses")

	clock.Advance(time.Nanosecond)
	_, ok = m.IsLocked("tasks/a.md")
	assert.False(t, ok, "lock must be expired once its duration elapsed")

	lock, ok := m.Acquire("tasks/a.md", "bob", time.Minute)
	require.True(t, ok, "anyone may acquire an expired lock without explicit release")
	assert.Equal(t, "bob", lock.Owner)
}

func TestAcquire_ReplacingExpiredLockEmitsExpired(t *testing.T) {
	m, clock := newTestManager(t)

	var kinds []EventKind
	for _, kind := range []EventKind{EventAcquired, EventExpired} {
		kind := kind
		m.Subscribe(kind, func(FileLock) { kinds = append(kinds, kind) })
	}

	m.Acquire("tasks/a.md", "alice", time.Minute)
	clock.Advance(2 * time.Minute)
	m.Acquire("tasks/a.md", "bob", time.Minute)

	assert.Equal(t, []EventKind{EventAcquired, EventExpired, EventAcquired}, kinds)
}

func TestRelease_OwnershipCheck(t *testing.T) {
	m, _ := newTestManager(t)

	m.Acquire("tasks/a.md", "alice", time.Minute)

	assert.False(t, m.Release("tasks/a.md", "bob"))
	held, ok := m.IsLocked("tasks/a.md")
	require.True(t, ok)
	assert.Equal(t, "alice", held.Owner)

	assert.False(t, m.Release("tasks/missing.md", "alice"))
	assert.True(t, m.Release("tasks/a.md", "alice"))
	assert.False(t, m.Release("tasks/a.md", "alice"), "second release must fail")
}

func TestActiveLocks_FiltersExpiredLazily(t *testing.T) {
	m, clock := newTestManager(t)

	m.Acquire("tasks/b.md", "alice", time.Minute)
	m.Acquire("tasks/a.md", "bob", 3*time.Minute)
	m.Acquire("tasks/c.md", "carol", 3*time.Minute)

	clock.Advance(2 * time.Minute)
	active := m.ActiveLocks()
	require.Len(t, active, 2)
	assert.Equal(t, "tasks/a.md", active[0].Path)
	assert.Equal(t, "tasks/c.md", active[1].Path)

	// Still stored until a sweep runs.
	m.mu.Lock()
	stored := len(m.locks)
	m.mu.Unlock()
	assert.Equal(t, 3, stored)
}

func TestSweep_EvictsAndNotifies(t *testing.T) {
	m, clock := newTestManager(t)

	var expired []FileLock
	m.Subscribe(EventExpired, func(l FileLock) { expired = append(expired, l) })

	m.Acquire("tasks/a.md", "alice", time.Minute)
	m.Acquire("tasks/b.md", "bob", 10*time.Minute)

	clock.Advance(5 * time.Minute)
	evicted := m.Sweep()

	require.Len(t, evicted, 1)
	assert.Equal(t, "tasks/a.md", evicted[0].Path)
	require.Len(t, expired, 1)
	assert.Equal(t, "alice", expired[0].Owner)

	m.mu.Lock()
	_, stillStored := m.locks["tasks/a.md"]
	m.mu.Unlock()
	assert.False(t, stillStored)

	assert.Empty(t, m.Sweep(), "nothing left to evict")
}

func TestEvents_AcquiredAndReleased(t *testing.T) {
	m, _ := newTestManager(t)

	var acquired, released []string
	m.Subscribe(EventAcquired, func(l FileLock) { acquired = append(acquired, l.Owner) })
	tok := m.Subscribe(EventReleased, func(l FileLock) { released = append(released, l.Owner) })

	m.Acquire("tasks/a.md", "alice", time.Minute)
	m.Acquire("tasks/a.md", "bob", time.Minute) // denied, no event
	m.Release("tasks/a.md", "bob")              // not owner, no event
	m.Release("tasks/a.md", "alice")

	assert.Equal(t, []string{"alice"}, acquired)
	assert.Equal(t, []string{"alice"}, released)

	assert.True(t, m.Unsubscribe(tok))
	m.Acquire("tasks/a.md", "alice", time.Minute)
	m.Release("tasks/a.md", "alice")
	assert.Equal(t, []string{"alice"}, released)
}

func TestRelease_ExpiredLockReportsExpiry(t *testing.T) {
	m, clock := newTestManager(t)

	var released, expired []string
	m.Subscribe(EventReleased, func(l FileLock) { released = append(released, l.Path) })
	m.Subscribe(EventExpired, func(l FileLock) { expired = append(expired, l.Path) })

	_, ok := m.Acquire("tasks/a.md", "alice", time.Minute)
	require.True(t, ok)
	clock.Advance(time.Minute)

	_, locked := m.IsLocked("tasks/a.md")
	require.False(t, locked)

	assert.False(t, m.Release("tasks/a.md", "alice"))
	assert.Empty(t, released)
	assert.Equal(t, []string{"tasks/a.md"}, expired)
	assert.Empty(t, m.Sweep(), "already evicted")
	assert.False(t, m.Release("tasks/a.md", "alice"), "nothing left to release")
}

func TestHandlersMayCallBackIntoManager(t *testing.T) {
	m, _ := newTestManager(t)

	var seen bool
	m.Subscribe(EventAcquired, func(l FileLock) {
		_, seen = m.IsLocked(l.Path)
	})

	m.Acquire("tasks/a.md", "alice", time.Minute)
	assert.True(t, seen)
}

func TestStartStop_BackgroundSweep(t *testing.T) {
	clock := newFakeClock()
	m := NewManager(WithClock(clock.Now), WithSweepInterval(5*time.Millisecond))

	expired := make(chan FileLock, 1)
	m.Subscribe(EventExpired, func(l FileLock) { expired <- l })

	m.Acquire("tasks/a.md", "alice", time.Minute)
	clock.Advance(2 * time.Minute)

	m.Start(context.Background())
	m.Start(context.Background()) // idempotent
	defer m.Stop()

	select {
	case l := <-expired:
		assert.Equal(t, "tasks/a.md", l.Path)
	case <-time.After(2 * time.Second):
		t.Fatal("background sweep did not evict the expired lock")
	}
}

func TestStop_KeepsHeldLocks(t *testing.T) {
	m, _ := newTestManager(t)
	m.Start(context.Background())

	m.Acquire("tasks/a.md", "alice", time.Minute)
	m.Stop()
	m.Stop() // safe to call twice

	_, ok := m.IsLocked("tasks/a.md")
	assert.True(t, ok)
}

func TestFileLock_Remaining(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	l := FileLock{Acquired: now, Expires: now.Add(time.Minute)}

	assert.Equal(t, time.Minute, l.Remaining(now))
	assert.Equal(t, time.Duration(0), l.Remaining(now.Add(2*time.Minute)))
}
