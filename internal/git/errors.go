package git

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotRepository indicates the directory is not a git work tree.
	ErrNotRepository = errors.New("not a git repository")

	// ErrNothingToCommit indicates the selected paths have no changes.
	ErrNothingToCommit = errors.New("nothing to commit")

	// ErrNoRemote indicates a remote operation was requested without a remote URL.
	ErrNoRemote = errors.New("no remote configured")

	// ErrAuthenticationFailed indicates the remote refused the credentials.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrTimeout indicates a git command exceeded the client timeout.
	ErrTimeout = errors.New("git command timed out")

	// ErrNoMergeInProgress indicates a merge operation was requested outside a merge.
	ErrNoMergeInProgress = errors.New("no merge in progress")
)

// CommandError describes a failed git invocation.
type CommandError struct {
	Args   []string
	Output string
	Err    error
}

func (e *CommandError) Error() string {
	msg := strings.TrimSpace(e.Output)
	if msg == "" {
		return fmt.Sprintf("git %s: %v", strings.Join(e.Args, " "), e.Err)
	}
	return fmt.Sprintf("git %s: %v: %s", strings.Join(e.Args, " "), e.Err, msg)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// authFailureMarkers are substrings git prints when the remote rejects credentials.
var authFailureMarkers = []string{
	"Authentication failed",
	"could not read Username",
	"Permission denied (publickey",
	"HTTP Basic: Access denied",
}

// classify wraps well-known failure output in a sentinel error.
func classify(output string, err error) error {
	for _, marker := range authFailureMarkers {
		if strings.Contains(output, marker) {
			return fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
		}
	}
	if strings.Contains(output, "not a git repository") {
		return fmt.Errorf("%w: %w", ErrNotRepository, err)
	}
	return err
}
