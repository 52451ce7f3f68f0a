// Package sync keeps a task directory consistent with its git remote.
//
// A Manager runs sync cycles (pull, commit, push) on a timer and on demand,
// takes per-file locks from a lock.Manager before committing, and reports
// every state transition as a Status snapshot. Merge conflicts are surfaced
// and persisted, never resolved automatically.
package sync

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/afero"

	"github.com/bolasblack/tasksync/internal/git"
	"github.com/bolasblack/tasksync/internal/lock"
)

var (
	// ErrSyncAlreadyRunning is returned by RunCycle when a cycle is in flight
	// in this process or another one holds the directory's cycle lock.
	ErrSyncAlreadyRunning = errors.New("sync already running")

	// ErrUnresolvedConflict is returned by RunCycle while a conflict awaits resolution.
	ErrUnresolvedConflict = errors.New("unresolved sync conflict")

	// ErrSyncDisabled is returned by RunCycle when sync is disabled.
	ErrSyncDisabled = errors.New("sync disabled")
)

// Client is the git surface the Manager needs. *git.Client implements it.
type Client interface {
	EnsureRepo(ctx context.Context, exclude ...string) error
	Status(ctx context.Context) (git.WorkStatus, error)
	Pull(ctx context.Context) (git.PullResult, error)
	Commit(ctx context.Context, paths []string, message string) error
	Push(ctx context.Context) (git.PushResult, error)
}

var _ Client = (*git.Client)(nil)

// RemoteConfig holds the provider settings passed through to the git client.
type RemoteConfig struct {
	Name           string
	URL            string
	Branch         string
	CredentialsEnv string
	AuthorName     string
	AuthorEmail    string
	GitTimeout     time.Duration
}

// Config is the normalized sync configuration of one Manager.
type Config struct {
	Enabled          bool
	AutoPullInterval time.Duration
	LockTTL          time.Duration
	// CommitMessage is a text/template; see CommitMessageData.
	CommitMessage string
	// Ignore holds gitignore-style patterns excluded from commits.
	Ignore []string
	Remote RemoteConfig
}

// ClientFactory builds the git client for a directory and remote.
// It fails when the remote settings are unusable (e.g. missing credentials).
type ClientFactory func(dir string, remote RemoteConfig) (Client, error)

// CycleGuard is a cross-process mutual exclusion held for the duration of a
// cycle. *flock.Flock implements it.
type CycleGuard interface {
	TryLock() (bool, error)
	Unlock() error
}

// SyncEnv holds dependencies for the sync module.
type SyncEnv struct {
	Fs        afero.Fs
	Locks     *lock.Manager
	NewClient ClientFactory
	// Guard is optional. Nil disables cross-process exclusion.
	Guard CycleGuard
}

// NewSyncEnv creates a new SyncEnv from externally-created dependencies.
func NewSyncEnv(fs afero.Fs, locks *lock.Manager, newClient ClientFactory, guard CycleGuard) *SyncEnv {
	return &SyncEnv{
		Fs:        fs,
		Locks:     locks,
		NewClient: newClient,
		Guard:     guard,
	}
}

// ConflictKind tells how a conflict arose, which decides how it clears.
type ConflictKind string

const (
	// ConflictMerge is an unmerged path of an interrupted merge.
	ConflictMerge ConflictKind = "merge"
	// ConflictLocalChanges is a local edit git refused to overwrite on pull.
	ConflictLocalChanges ConflictKind = "local-changes"
	// ConflictPushRejected is a commit the remote refused. It clears on the next cycle.
	ConflictPushRejected ConflictKind = "push-rejected"
)

// Sticky reports whether the conflict holds the manager until Resolve.
func (k ConflictKind) Sticky() bool {
	return k != ConflictPushRejected
}

// ConflictInfo represents a single sync conflict.
type ConflictInfo struct {
	Path       string       `json:"path"`       // Relative file path from the task directory
	Kind       ConflictKind `json:"kind"`       // merge, local-changes or push-rejected
	DetectedAt time.Time    `json:"detectedAt"` // When first detected
}

// Describe returns a human-readable description of the conflict.
func (c ConflictInfo) Describe() string {
	switch c.Kind {
	case ConflictMerge:
		return "changed locally and remotely"
	case ConflictLocalChanges:
		return "uncommitted local edit blocks pull"
	case ConflictPushRejected:
		return "remote moved ahead"
	default:
		return string(c.Kind)
	}
}
