package sync

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/afero"

	"github.com/bolasblack/tasksync/internal/util"
)

// CacheFilename is the conflict cache file inside the data directory.
const CacheFilename = "sync-conflicts-cache.json"

// CacheData represents the cached sync conflict state.
type CacheData struct {
	UpdatedAt time.Time      `json:"updatedAt"`
	Conflicts []ConflictInfo `json:"conflicts"`
}

// Paths returns the conflicted paths in cache order.
func (c *CacheData) Paths() []string {
	if c == nil {
		return nil
	}
	paths := make([]string, 0, len(c.Conflicts))
	for _, ci := range c.Conflicts {
		paths = append(paths, ci.Path)
	}
	return paths
}

// Sticky returns the conflicts that hold the manager until resolved.
func (c *CacheData) Sticky() []ConflictInfo {
	if c == nil {
		return nil
	}
	var sticky []ConflictInfo
	for _, ci := range c.Conflicts {
		if ci.Kind.Sticky() {
			sticky = append(sticky, ci)
		}
	}
	return sticky
}

// ReadCache reads and parses the cache file.
// Returns nil, nil if the cache file does not exist.
func ReadCache(fs afero.Fs, root string) (*CacheData, error) {
	data, err := afero.ReadFile(fs, CacheFilePath(root))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	}

	var cache CacheData
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil, fmt.Errorf("failed to parse cache file: %w", err)
	}
	return &cache, nil
}

// WriteCache writes cache data, creating the data dir if needed.
func WriteCache(fs afero.Fs, root string, data *CacheData) error {
	if err := fs.MkdirAll(util.DataDirPath(root), 0o755); err != nil {
		return fmt.Errorf("failed to create cache dir: %w", err)
	}

	buf, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache data: %w", err)
	}

	if err := afero.WriteFile(fs, CacheFilePath(root), buf, 0o644); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	return nil
}

// ClearCache records that no conflicts remain.
func ClearCache(fs afero.Fs, root string, now time.Time) error {
	return WriteCache(fs, root, &CacheData{UpdatedAt: now, Conflicts: []ConflictInfo{}})
}

// CacheFilePath returns the conflict cache path for a task directory.
func CacheFilePath(root string) string {
	return filepath.Join(util.DataDirPath(root), CacheFilename)
}

// mergeConflicts builds the cache entries for paths, keeping DetectedAt of
// paths already present in previous.
func mergeConflicts(previous *CacheData, kind ConflictKind, paths []string, now time.Time) []ConflictInfo {
	seen := make(map[string]time.Time)
	if previous != nil {
		for _, ci := range previous.Conflicts {
			if ci.Kind == kind {
				seen[ci.Path] = ci.DetectedAt
			}
		}
	}

	conflicts := make([]ConflictInfo, 0, len(paths))
	for _, p := range paths {
		detected, ok := seen[p]
		if !ok {
			detected = now
		}
		conflicts = append(conflicts, ConflictInfo{Path: p, Kind: kind, DetectedAt: detected})
	}
	sort.Slice(conflicts, func(i, j int) bool { return conflicts[i].Path < conflicts[j].Path })
	return conflicts
}
