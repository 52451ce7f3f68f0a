// Package lock provides an in-memory, time-bounded mutual exclusion registry
// keyed by file path.
//
// Denial is a routine outcome: every operation reports it through its return
// value, never as an error. Expiry, not explicit release, is what guarantees
// that a crashed or disconnected owner cannot block a path forever.
//
// The registry is per process. Processes sharing a remote are coordinated by
// git itself (push rejection and merge conflicts).
package lock

import (
	"time"
)

const (
	// DefaultTTL is the lock duration used when Acquire is called with a zero duration.
	DefaultTTL = 5 * time.Minute
	// SweepInterval is the period of the background expiry sweep.
	SweepInterval = 60 * time.Second
)

// FileLock is an exclusive, time-bounded claim on a path by an owner.
// Locks are values: re-acquisition replaces the stored lock wholesale.
type FileLock struct {
	Path     string    `json:"path"`
	Owner    string    `json:"owner"`
	Acquired time.Time `json:"acquired"`
	Expires  time.Time `json:"expires"`
}

// IsExpired reports whether the lock is no longer valid at now.
// A lock acquired for d is expired from Acquired+d onwards.
func (l FileLock) IsExpired(now time.Time) bool {
	return !now.Before(l.Expires)
}

// Remaining returns how long the lock stays valid after now (zero if expired).
func (l FileLock) Remaining(now time.Time) time.Duration {
	if l.IsExpired(now) {
		return 0
	}
	return l.Expires.Sub(now)
}

// EventKind names a lock lifecycle notification.
type EventKind string

const (
	EventAcquired EventKind = "lock:acquired"
	EventReleased EventKind = "lock:released"
	EventExpired  EventKind = "lock:expired"
)
