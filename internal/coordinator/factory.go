package coordinator

import (
	"github.com/spf13/afero"

	"github.com/bolasblack/tasksync/internal/config"
	"github.com/bolasblack/tasksync/internal/git"
	tsync "github.com/bolasblack/tasksync/internal/sync"
	"github.com/bolasblack/tasksync/internal/util"
)

// GitClientFactory builds git clients on cmd. Credentials are resolved from
// getenv each time a client is built, so a fixed environment takes effect
// on the next cycle.
func GitClientFactory(fs afero.Fs, cmd util.CommandRunner, getenv func(string) string) tsync.ClientFactory {
	return func(dir string, remote tsync.RemoteConfig) (tsync.Client, error) {
		token, err := config.Remote{CredentialsEnv: remote.CredentialsEnv}.ResolveCredentials(getenv)
		if err != nil {
			return nil, err
		}
		return git.New(fs, cmd, git.Options{
			Dir:         dir,
			Remote:      remote.Name,
			URL:         remote.URL,
			Branch:      remote.Branch,
			Token:       token,
			AuthorName:  remote.AuthorName,
			AuthorEmail: remote.AuthorEmail,
			Timeout:     remote.GitTimeout,
		}), nil
	}
}
