package util

import (
	"github.com/spf13/afero"
)

// Env bundles the filesystem and command runner a command works against,
// so tests can swap both for in-memory fakes.
type Env struct {
	// Fs backs the config, state, conflict cache and repository checks.
	Fs afero.Fs
	// Cmd runs git.
	Cmd CommandRunner
}

// NewEnv creates an Env with the given filesystem and the os/exec runner.
func NewEnv(fs afero.Fs) *Env {
	return &Env{Fs: fs, Cmd: NewCommandRunner()}
}

// NewOsEnv creates an Env backed by the real filesystem.
func NewOsEnv() *Env {
	return NewEnv(afero.NewOsFs())
}

// NewTestEnv creates an Env with an in-memory filesystem and a mock command
// runner that fails on unexpected commands.
func NewTestEnv() (*Env, *MockCommandRunner) {
	mock := NewMockCommandRunner()
	return &Env{Fs: afero.NewMemMapFs(), Cmd: mock}, mock
}
