package util

import "path/filepath"

// Directory and file names inside a task directory.
const (
	// DataDir holds tasksync bookkeeping files and is never committed.
	DataDir = ".tsync"
	// ConfigFilename is the per-directory configuration file.
	ConfigFilename = ".tsync.toml"
	// CycleLockFilename is the cross-process lock held for the duration of a sync cycle.
	CycleLockFilename = "sync.lock"
)

// DataDirPath returns the bookkeeping directory for a task directory.
func DataDirPath(root string) string {
	return filepath.Join(root, DataDir)
}

// CycleLockPath returns the cross-process cycle lock path for a task directory.
func CycleLockPath(root string) string {
	return filepath.Join(root, DataDir, CycleLockFilename)
}
