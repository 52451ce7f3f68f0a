package config

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bolasblack/tasksync/internal/util"
)

func newTestEnv(t *testing.T) (*util.Env, afero.Fs) {
	t.Helper()
	memFs := afero.NewMemMapFs()
	env := &util.Env{Fs: memFs}
	return env, memFs
}

func writeConfig(t *testing.T, fs afero.Fs, path, content string) {
	t.Helper()
	if err := afero.WriteFile(fs, path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func TestLoadConfig(t *testing.T) {
	content := `
ignore = ["*.tmp"]

[remote]
url = "https://example.com/tasks.git"
branch = "tasks"
credentials_env = "TASKS_TOKEN"

[sync]
enabled = false
auto_pull_interval = 3
git_timeout = "30s"
lock_ttl = "1m"
commit_message = "sync {{len .Paths}}"

[author]
name = "Bot"
email = "bot@example.com"
`
	env, memFs := newTestEnv(t)
	writeConfig(t, memFs, "/test/.tsync.toml", content)

	cfg, err := LoadConfig(env, "/test/.tsync.toml")
	require.NoError(t, err)

	assert.Equal(t, "origin", cfg.Remote.Name)
	assert.Equal(t, "https://example.com/tasks.git", cfg.Remote.URL)
	assert.Equal(t, "tasks", cfg.Remote.Branch)
	assert.Equal(t, "TASKS_TOKEN", cfg.Remote.CredentialsEnv)
	assert.False(t, cfg.Sync.IsEnabled())
	assert.Equal(t, 3*time.Minute, cfg.Sync.AutoPullInterval.Duration())
	assert.Equal(t, 30*time.Second, cfg.Sync.GitTimeout.Duration())
	assert.Equal(t, time.Minute, cfg.Sync.LockTTL.Duration())
	assert.Equal(t, "sync {{len .Paths}}", cfg.Sync.CommitMessage)
	assert.Equal(t, Author{Name: "Bot", Email: "bot@example.com"}, cfg.Author)
	assert.Equal(t, []string{"*.tmp"}, cfg.Ignore)
}

func TestLoadConfig_Defaults(t *testing.T) {
	env, memFs := newTestEnv(t)
	writeConfig(t, memFs, "/test/.tsync.toml", "")

	cfg, err := LoadConfig(env, "/test/.tsync.toml")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.True(t, cfg.Sync.IsEnabled())
	assert.Equal(t, DefaultAutoPullInterval, cfg.Sync.AutoPullInterval.Duration())
	assert.Equal(t, DefaultGitTimeout, cfg.Sync.GitTimeout.Duration())
	assert.Equal(t, DefaultLockTTL, cfg.Sync.LockTTL.Duration())
	assert.Equal(t, DefaultCommitMessage, cfg.Sync.CommitMessage)
	assert.Empty(t, cfg.Remote.URL)
}

func TestLoadConfigNotFound(t *testing.T) {
	env, _ := newTestEnv(t)
	_, err := LoadConfig(env, "/nonexistent/path/.tsync.toml")
	assert.Error(t, err)
}

func TestLoadConfig_IntervalForms(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		want    time.Duration
		wantErr bool
	}{
		{name: "integer minutes", value: "5", want: 5 * time.Minute},
		{name: "fractional minutes", value: "0.5", want: 30 * time.Second},
		{name: "duration string", value: `"90s"`, want: 90 * time.Second},
		{name: "numeric string", value: `"2"`, want: 2 * time.Minute},
		{name: "hours", value: `"1h"`, want: time.Hour},
		{name: "garbage", value: `"soon"`, wantErr: true},
		{name: "negative", value: "-1", wantErr: true},
		{name: "below minimum", value: `"1s"`, wantErr: true},
		{name: "wrong type", value: "true", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, memFs := newTestEnv(t)
			writeConfig(t, memFs, "/test/.tsync.toml", "[sync]\nauto_pull_interval = "+tt.value+"\n")

			cfg, err := LoadConfig(env, "/test/.tsync.toml")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Sync.AutoPullInterval.Duration())
		})
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad branch", func(c *Config) { c.Remote.Branch = "my branch" }},
		{"short interval", func(c *Config) { c.Sync.AutoPullInterval = Interval(time.Second) }},
		{"negative timeout", func(c *Config) { c.Sync.GitTimeout = Duration(-time.Second) }},
		{"negative ttl", func(c *Config) { c.Sync.LockTTL = Duration(-time.Second) }},
		{"bad template", func(c *Config) { c.Sync.CommitMessage = "{{.Paths" }},
		{"bad email", func(c *Config) { c.Author.Email = "nobody" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}

	t.Run("defaults are valid", func(t *testing.T) {
		cfg := DefaultConfig()
		assert.NoError(t, cfg.Validate())
	})
}

func TestResolveCredentials(t *testing.T) {
	getenv := func(name string) string {
		if name == "SET" {
			return "tok"
		}
		return ""
	}

	token, err := Remote{}.ResolveCredentials(getenv)
	require.NoError(t, err)
	assert.Empty(t, token)

	token, err = Remote{CredentialsEnv: "SET"}.ResolveCredentials(getenv)
	require.NoError(t, err)
	assert.Equal(t, "tok", token)

	_, err = Remote{CredentialsEnv: "UNSET"}.ResolveCredentials(getenv)
	assert.True(t, errors.Is(err, ErrMissingCredentials))
	assert.Contains(t, err.Error(), "UNSET")
}

func TestGeneratedConfigRoundTrip(t *testing.T) {
	env, memFs := newTestEnv(t)
	tc := TemplateConfig{Config: SchemaConfig{
		Remote: Remote{URL: "https://example.com/tasks.git"},
		Sync:   Sync{AutoPullInterval: Interval(90 * time.Second)},
		Ignore: []string{"drafts/"},
	}}

	require.NoError(t, GenerateConfig(memFs, "/test/.tsync.toml", tc))

	data, err := afero.ReadFile(memFs, "/test/.tsync.toml")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), SchemaComment))
	assert.Contains(t, string(data), "auto_pull_interval = '1m30s'")

	loaded, err := LoadConfig(env, "/test/.tsync.toml")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/tasks.git", loaded.Remote.URL)
	assert.Equal(t, DefaultBranch, loaded.Remote.Branch)
	assert.Equal(t, 90*time.Second, loaded.Sync.AutoPullInterval.Duration())
	assert.Equal(t, []string{"drafts/"}, loaded.Ignore)
}

func TestIntervalJSONSchema(t *testing.T) {
	schema := Interval(0).JSONSchema()
	require.Len(t, schema.OneOf, 2)
	assert.Equal(t, "integer", schema.OneOf[0].Type)
	assert.Equal(t, "string", schema.OneOf[1].Type)
}

func TestDurationUnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte(" 45s ")))
	assert.Equal(t, 45*time.Second, d.Duration())
	assert.Error(t, d.UnmarshalText([]byte("45")))

	var i Interval
	require.NoError(t, i.UnmarshalText([]byte("10")))
	assert.Equal(t, 10*time.Minute, i.Duration())
	text, err := i.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "10m0s", string(text))
}
