package config

import (
	"fmt"
	"path/filepath"
	"sort"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"

	"github.com/bolasblack/tasksync/internal/util"
)

// LoadWithIncludes loads config with includes support.
// It processes includes recursively, merging configs in the order they are specified.
// No defaults are applied.
func LoadWithIncludes(env *util.Env, path string) (Config, error) {
	return loadWithIncludes(env.Fs, path, make(map[string]bool))
}

// loadWithIncludes is the internal recursive implementation.
func loadWithIncludes(fs afero.Fs, path string, visited map[string]bool) (Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to resolve path %s: %w", path, err)
	}

	if visited[absPath] {
		return Config{}, fmt.Errorf("circular include detected: %s", path)
	}
	visited[absPath] = true

	data, err := afero.ReadFile(fs, absPath)
	if err != nil {
		return Config{}, err
	}

	var raw rawConfig
	if err := toml.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	baseDir := filepath.Dir(absPath)

	// Includes first (depth-first), then the current file on top.
	var merged Config
	for _, includePattern := range raw.Includes {
		resolvedPattern := includePattern
		if !filepath.IsAbs(includePattern) {
			resolvedPattern = filepath.Join(baseDir, includePattern)
		}

		matchedFiles, err := expandGlob(fs, resolvedPattern)
		if err != nil {
			return Config{}, fmt.Errorf("failed to expand glob %s: %w", includePattern, err)
		}

		for _, includePath := range matchedFiles {
			included, err := loadWithIncludes(fs, includePath, visited)
			if err != nil {
				return Config{}, fmt.Errorf("failed to load include %s: %w", includePath, err)
			}
			merged = mergeConfigs(merged, included)
		}
	}

	current, err := rawToConfig(raw)
	if err != nil {
		return Config{}, fmt.Errorf("failed to convert config %s: %w", path, err)
	}

	return mergeConfigs(merged, current), nil
}

// rawToConfig converts rawConfig to Config without applying defaults.
func rawToConfig(raw rawConfig) (Config, error) {
	interval, err := parseInterval(raw.Sync.AutoPullInterval)
	if err != nil {
		return Config{}, fmt.Errorf("sync.auto_pull_interval: %w", err)
	}

	return Config{
		Remote: raw.Remote,
		Sync: Sync{
			Enabled:          raw.Sync.Enabled,
			AutoPullInterval: interval,
			GitTimeout:       raw.Sync.GitTimeout,
			LockTTL:          raw.Sync.LockTTL,
			CommitMessage:    raw.Sync.CommitMessage,
		},
		Author: raw.Author,
		Ignore: raw.Ignore,
	}, nil
}

// isGlobPattern checks if the pattern contains glob special characters.
func isGlobPattern(pattern string) bool {
	for _, c := range pattern {
		switch c {
		case '*', '?', '[':
			return true
		}
	}
	return false
}

// expandGlob expands a glob pattern and returns sorted matched files.
// For literal paths (no glob characters), returns error if file doesn't exist.
// For glob patterns, returns empty slice if no files match.
func expandGlob(fs afero.Fs, pattern string) ([]string, error) {
	if !isGlobPattern(pattern) {
		if _, err := fs.Stat(pattern); err != nil {
			return nil, err
		}
		return []string{pattern}, nil
	}

	matches, err := afero.Glob(fs, pattern)
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

// mergeConfigs merges overlay config into base config.
// Tables: deep merge. Arrays: append. Same key: overlay wins if set.
func mergeConfigs(base, overlay Config) Config {
	result := base

	if overlay.Remote.Name != "" {
		result.Remote.Name = overlay.Remote.Name
	}
	if overlay.Remote.URL != "" {
		result.Remote.URL = overlay.Remote.URL
	}
	if overlay.Remote.Branch != "" {
		result.Remote.Branch = overlay.Remote.Branch
	}
	if overlay.Remote.CredentialsEnv != "" {
		result.Remote.CredentialsEnv = overlay.Remote.CredentialsEnv
	}

	if overlay.Sync.Enabled != nil {
		enabled := *overlay.Sync.Enabled
		result.Sync.Enabled = &enabled
	}
	if overlay.Sync.AutoPullInterval != 0 {
		result.Sync.AutoPullInterval = overlay.Sync.AutoPullInterval
	}
	if overlay.Sync.GitTimeout != 0 {
		result.Sync.GitTimeout = overlay.Sync.GitTimeout
	}
	if overlay.Sync.LockTTL != 0 {
		result.Sync.LockTTL = overlay.Sync.LockTTL
	}
	if overlay.Sync.CommitMessage != "" {
		result.Sync.CommitMessage = overlay.Sync.CommitMessage
	}

	if overlay.Author.Name != "" {
		result.Author.Name = overlay.Author.Name
	}
	if overlay.Author.Email != "" {
		result.Author.Email = overlay.Author.Email
	}

	if len(overlay.Ignore) > 0 {
		result.Ignore = append(append([]string(nil), result.Ignore...), overlay.Ignore...)
	}

	return result
}
