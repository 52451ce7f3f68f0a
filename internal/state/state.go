// Package state provides task directory state management for tasksync.
// It maintains a local state file (.tsync/state.json) holding the session
// identity used as lock owner, the last successful sync time and a snapshot
// of the remote the directory was initialized against.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/bolasblack/tasksync/internal/util"
)

const (
	// StateFilename is the name of the state file.
	StateFilename = "state.json"
	// CurrentVersion is the current state file version.
	CurrentVersion = "1"
)

// State represents the persistent state of a task directory.
type State struct {
	// Version is the state file format version.
	Version string `json:"version"`
	// SessionID identifies this checkout. It is the owner of locks taken by sync cycles.
	SessionID string `json:"session_id"`
	// CreatedAt is when the state was first created.
	CreatedAt time.Time `json:"created_at"`
	// LastSyncedAt is when the last sync cycle completed without error.
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
	// Remote stores the remote settings at init time.
	// Used for detecting remote drift.
	Remote *RemoteSnapshot `json:"remote,omitempty"`
}

// RemoteSnapshot captures the remote at init time.
type RemoteSnapshot struct {
	URL    string `json:"url"`
	Branch string `json:"branch"`
}

// StateFilePath returns the path to the state file for the given task directory.
func StateFilePath(dir string) string {
	return filepath.Join(util.DataDirPath(dir), StateFilename)
}

// Load reads the state file from the given task directory.
// Returns nil and no error if the state file does not exist.
func Load(env *util.Env, dir string) (*State, error) {
	data, err := afero.ReadFile(env.Fs, StateFilePath(dir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}
	return &st, nil
}

// Save writes the state file to the given task directory.
// Creates the .tsync directory if it does not exist.
func Save(env *util.Env, dir string, st *State) error {
	if err := env.Fs.MkdirAll(util.DataDirPath(dir), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if err := afero.WriteFile(env.Fs, StateFilePath(dir), data, 0o644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return nil
}

// LoadOrCreate loads the state file if it exists, or creates a new one with
// a fresh session ID. The bool result reports whether it was created.
func LoadOrCreate(env *util.Env, dir string) (*State, bool, error) {
	st, err := Load(env, dir)
	if err != nil {
		return nil, false, err
	}
	if st != nil {
		if st.SessionID == "" {
			st.SessionID = uuid.New().String()
			if err := Save(env, dir, st); err != nil {
				return nil, false, err
			}
		}
		return st, false, nil
	}

	st = &State{
		Version:   CurrentVersion,
		SessionID: uuid.New().String(),
		CreatedAt: time.Now(),
	}
	if err := Save(env, dir, st); err != nil {
		return nil, true, err
	}
	return st, true, nil
}

// MarkSynced records a completed sync.
func (s *State) MarkSynced(at time.Time) {
	s.LastSyncedAt = &at
}

// UpdateRemote replaces the remote snapshot.
func (s *State) UpdateRemote(snapshot *RemoteSnapshot) {
	s.Remote = snapshot
}

// RemoteDrift represents remote changes between state and current config.
type RemoteDrift struct {
	Old *RemoteSnapshot
	New *RemoteSnapshot
}

// HasDrift returns true if the remote changed since init.
func (d *RemoteDrift) HasDrift() bool {
	if d == nil || d.Old == nil || d.New == nil {
		return false
	}

	old, cur := d.Old, d.New

	// Compile-time check: must match RemoteSnapshot fields exactly.
	// If RemoteSnapshot adds a field, this line fails to compile,
	// forcing you to update 'fields' and decide whether to compare it.
	type fields struct {
		URL    string
		Branch string
	}
	_ = fields(*old)

	return old.URL != cur.URL || old.Branch != cur.Branch
}

// DetectRemoteDrift compares the state's remote snapshot with the given one.
// Returns nil if no drift or if state has no snapshot.
func (s *State) DetectRemoteDrift(current *RemoteSnapshot) *RemoteDrift {
	if s.Remote == nil {
		return nil
	}
	drift := &RemoteDrift{Old: s.Remote, New: current}
	if drift.HasDrift() {
		return drift
	}
	return nil
}
