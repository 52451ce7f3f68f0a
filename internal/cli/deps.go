package cli

import (
	"os"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/afero"
	"golang.org/x/term"

	tsync "github.com/bolasblack/tasksync/internal/sync"
	"github.com/bolasblack/tasksync/internal/util"
)

// cliDeps holds the dependencies commands reach the outside world through.
type cliDeps struct {
	Env    *util.Env
	Getenv func(string) string
	Now    func() time.Time
	// NewGuard returns the cross-process cycle guard for a task directory.
	NewGuard func(dir string) (tsync.CycleGuard, error)
	// Interactive reports whether prompts can be shown.
	Interactive func() bool
}

// newCLIDeps builds the production dependencies. Tests replace it.
var newCLIDeps = func() *cliDeps {
	return &cliDeps{
		Env:         util.NewOsEnv(),
		Getenv:      os.Getenv,
		Now:         time.Now,
		NewGuard:    newFileGuard,
		Interactive: stdinIsTerminal,
	}
}

// newFileGuard returns a flock on the directory's cycle lock file.
func newFileGuard(dir string) (tsync.CycleGuard, error) {
	if err := afero.NewOsFs().MkdirAll(util.DataDirPath(dir), 0o755); err != nil {
		return nil, err
	}
	return flock.New(util.CycleLockPath(dir)), nil
}

func stdinIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}
