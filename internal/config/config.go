// Package config handles parsing and writing of tasksync configuration files (.tsync.toml).
package config

import (
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/invopop/jsonschema"

	"github.com/bolasblack/tasksync/internal/util"
)

const (
	// DefaultRemoteName is the git remote used when none is configured.
	DefaultRemoteName = "origin"
	// DefaultBranch is the branch synced when none is configured.
	DefaultBranch = "main"
	// DefaultAutoPullInterval is the scheduler period when none is configured.
	DefaultAutoPullInterval = 5 * time.Minute
	// MinAutoPullInterval keeps the scheduler from hammering the remote.
	MinAutoPullInterval = 10 * time.Second
	// DefaultGitTimeout bounds a single git invocation.
	DefaultGitTimeout = 2 * time.Minute
	// DefaultLockTTL is how long a sync cycle holds a per-file lock.
	DefaultLockTTL = 5 * time.Minute
	// DefaultCommitMessage is the commit message template.
	DefaultCommitMessage = "tsync: update {{len .Paths}} file(s) from {{.Host}}"
)

var (
	// ErrMissingCredentials indicates credentials_env names an unset variable.
	ErrMissingCredentials = errors.New("missing credentials")

	// ErrInvalidConfig indicates a value failed validation.
	ErrInvalidConfig = errors.New("invalid config")
)

// Remote describes the git remote the task directory syncs with.
type Remote struct {
	Name           string `toml:"name,omitempty" json:"name,omitempty" jsonschema:"description=Git remote name (default origin)"`
	URL            string `toml:"url,omitempty" json:"url,omitempty" jsonschema:"description=Remote repository URL. Empty means local-only: changes are committed but never pulled or pushed"`
	Branch         string `toml:"branch,omitempty" json:"branch,omitempty" jsonschema:"description=Branch to sync (default main)"`
	CredentialsEnv string `toml:"credentials_env,omitempty" json:"credentials_env,omitempty" jsonschema:"description=Environment variable holding an HTTP access token"`
}

// Sync configures the sync scheduler.
type Sync struct {
	// Enabled is nil when unset; see IsEnabled.
	Enabled          *bool    `toml:"enabled,omitempty" json:"enabled,omitempty" jsonschema:"description=Run automatic sync cycles (default true)"`
	AutoPullInterval Interval `toml:"auto_pull_interval,omitempty" json:"auto_pull_interval,omitempty" jsonschema:"description=Period between automatic sync cycles"`
	GitTimeout       Duration `toml:"git_timeout,omitempty" json:"git_timeout,omitempty" jsonschema:"description=Timeout for a single git command (e.g. 2m)"`
	LockTTL          Duration `toml:"lock_ttl,omitempty" json:"lock_ttl,omitempty" jsonschema:"description=Lifetime of per-file locks taken by a sync cycle (e.g. 5m)"`
	CommitMessage    string   `toml:"commit_message,omitempty" json:"commit_message,omitempty" jsonschema:"description=Commit message template. Fields: .Paths .Host .Time"`
}

// IsEnabled reports whether automatic sync is on. Unset means enabled.
func (s Sync) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// Author overrides the git commit identity.
type Author struct {
	Name  string `toml:"name,omitempty" json:"name,omitempty" jsonschema:"description=Commit author name"`
	Email string `toml:"email,omitempty" json:"email,omitempty" jsonschema:"description=Commit author email"`
}

// Config represents the tasksync configuration (after processing).
// This is the final merged config used internally by the program.
type Config struct {
	Remote Remote   `toml:"remote,omitempty" json:"remote,omitempty" jsonschema:"description=Git remote settings"`
	Sync   Sync     `toml:"sync,omitempty" json:"sync,omitempty" jsonschema:"description=Sync scheduler settings"`
	Author Author   `toml:"author,omitempty" json:"author,omitempty" jsonschema:"description=Commit identity"`
	Ignore []string `toml:"ignore,omitempty" json:"ignore,omitempty" jsonschema:"description=Gitignore-style patterns excluded from sync commits"`
}

// rawSync is the [sync] table before interval normalization.
type rawSync struct {
	Enabled          *bool    `toml:"enabled,omitempty"`
	AutoPullInterval any      `toml:"auto_pull_interval,omitempty"`
	GitTimeout       Duration `toml:"git_timeout,omitempty"`
	LockTTL          Duration `toml:"lock_ttl,omitempty"`
	CommitMessage    string   `toml:"commit_message,omitempty"`
}

// rawConfig is an intermediate type for decoding TOML with flexible interval values.
type rawConfig struct {
	Includes []string `toml:"includes,omitempty"`
	Remote   Remote   `toml:"remote,omitempty"`
	Sync     rawSync  `toml:"sync,omitempty"`
	Author   Author   `toml:"author,omitempty"`
	Ignore   []string `toml:"ignore,omitempty"`
}

// SchemaConfig is the exported type for JSON schema generation.
// It represents what users can write in .tsync.toml files.
type SchemaConfig struct {
	Includes []string `toml:"includes,omitempty" json:"includes,omitempty" jsonschema:"description=Other config files to include and merge (supports glob patterns)"`
	Remote   Remote   `toml:"remote,omitempty" json:"remote,omitempty" jsonschema:"description=Git remote settings"`
	Sync     Sync     `toml:"sync,omitempty" json:"sync,omitempty" jsonschema:"description=Sync scheduler settings"`
	Author   Author   `toml:"author,omitempty" json:"author,omitempty" jsonschema:"description=Commit identity"`
	Ignore   []string `toml:"ignore,omitempty" json:"ignore,omitempty" jsonschema:"description=Gitignore-style patterns excluded from sync commits"`
}

// DefaultConfig returns a Config with all defaults applied.
func DefaultConfig() Config {
	var cfg Config
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Remote.Name == "" {
		c.Remote.Name = DefaultRemoteName
	}
	if c.Remote.Branch == "" {
		c.Remote.Branch = DefaultBranch
	}
	if c.Sync.Enabled == nil {
		enabled := true
		c.Sync.Enabled = &enabled
	}
	if c.Sync.AutoPullInterval == 0 {
		c.Sync.AutoPullInterval = Interval(DefaultAutoPullInterval)
	}
	if c.Sync.GitTimeout == 0 {
		c.Sync.GitTimeout = Duration(DefaultGitTimeout)
	}
	if c.Sync.LockTTL == 0 {
		c.Sync.LockTTL = Duration(DefaultLockTTL)
	}
	if c.Sync.CommitMessage == "" {
		c.Sync.CommitMessage = DefaultCommitMessage
	}
}

// Validate checks values that defaults cannot repair.
func (c *Config) Validate() error {
	if strings.ContainsAny(c.Remote.Branch, " \t~^:?*[\\") {
		return fmt.Errorf("%w: remote.branch %q is not a valid branch name", ErrInvalidConfig, c.Remote.Branch)
	}
	if c.Sync.AutoPullInterval.Duration() < MinAutoPullInterval {
		return fmt.Errorf("%w: sync.auto_pull_interval must be at least %s", ErrInvalidConfig, MinAutoPullInterval)
	}
	if c.Sync.GitTimeout < 0 {
		return fmt.Errorf("%w: sync.git_timeout must be positive", ErrInvalidConfig)
	}
	if c.Sync.LockTTL < 0 {
		return fmt.Errorf("%w: sync.lock_ttl must be positive", ErrInvalidConfig)
	}
	if _, err := template.New("commit").Parse(c.Sync.CommitMessage); err != nil {
		return fmt.Errorf("%w: sync.commit_message: %w", ErrInvalidConfig, err)
	}
	if c.Author.Email != "" && !strings.Contains(c.Author.Email, "@") {
		return fmt.Errorf("%w: author.email %q", ErrInvalidConfig, c.Author.Email)
	}
	return nil
}

// ResolveCredentials returns the access token named by credentials_env.
// An empty name means no credentials are needed.
func (r Remote) ResolveCredentials(getenv func(string) string) (string, error) {
	if r.CredentialsEnv == "" {
		return "", nil
	}
	token := getenv(r.CredentialsEnv)
	if token == "" {
		return "", fmt.Errorf("%w: environment variable %s is not set", ErrMissingCredentials, r.CredentialsEnv)
	}
	return token, nil
}

// LoadConfig reads and parses a configuration file from the given path.
// Supports includes directive for composable configuration.
// Defaults are applied after merging, then the result is validated.
func LoadConfig(env *util.Env, path string) (Config, error) {
	cfg, err := LoadWithIncludes(env, path)
	if err != nil {
		return Config{}, err
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// SchemaComment is the TOML comment that references the JSON Schema for editor autocomplete.
const SchemaComment = "#:schema https://raw.githubusercontent.com/bolasblack/tasksync/refs/heads/master/tsync-config.schema.json\n\n"

// JSONSchema implements jsonschema.JSONSchemer so the schema accepts both
// integer minutes and duration strings.
func (Interval) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		OneOf: []*jsonschema.Schema{
			{Type: "integer", Description: "Minutes"},
			{Type: "string", Description: "Go duration string (e.g. 90s, 5m, 1h)"},
		},
		Description: "Sync interval (integer minutes or duration string)",
	}
}

// JSONSchema implements jsonschema.JSONSchemer.
func (Duration) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string", Description: "Go duration string (e.g. 30s, 2m)"}
}
