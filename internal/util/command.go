package util

import (
	"context"
	"os"
	"os/exec"
)

// CommandRunner executes external commands.
type CommandRunner interface {
	// Run executes a command and returns combined stdout/stderr.
	Run(ctx context.Context, name string, args ...string) (output []byte, err error)

	// RunWithEnv is Run with extra KEY=VALUE pairs appended to the
	// inherited process environment.
	RunWithEnv(ctx context.Context, env []string, name string, args ...string) (output []byte, err error)
}

// DefaultCommandRunner runs commands through os/exec.
type DefaultCommandRunner struct{}

var _ CommandRunner = (*DefaultCommandRunner)(nil)

// NewCommandRunner creates a DefaultCommandRunner.
func NewCommandRunner() *DefaultCommandRunner {
	return &DefaultCommandRunner{}
}

func (r *DefaultCommandRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return r.RunWithEnv(ctx, nil, name, args...)
}

func (r *DefaultCommandRunner) RunWithEnv(ctx context.Context, env []string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}
	return cmd.CombinedOutput()
}
