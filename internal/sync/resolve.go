package sync

import (
	"context"
	"fmt"

	"github.com/bolasblack/tasksync/internal/git"
)

// Resolver applies conflict resolutions to the work tree. *git.Client implements it.
type Resolver interface {
	ResolveOurs(ctx context.Context, path string) error
	ResolveTheirs(ctx context.Context, path string) error
	AbortMerge(ctx context.Context) error
	ConcludeMerge(ctx context.Context, message string) error
	MergeInProgress() bool
}

var _ Resolver = (*git.Client)(nil)

// ResolveLocal resolves a conflict by keeping the local version.
func ResolveLocal(ctx context.Context, r Resolver, path string) error {
	if err := r.ResolveOurs(ctx, path); err != nil {
		return fmt.Errorf("failed to keep local %s: %w", path, err)
	}
	return nil
}

// ResolveRemote resolves a conflict by taking the remote version.
func ResolveRemote(ctx context.Context, r Resolver, path string) error {
	if err := r.ResolveTheirs(ctx, path); err != nil {
		return fmt.Errorf("failed to take remote %s: %w", path, err)
	}
	return nil
}
