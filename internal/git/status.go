package git

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// WorkStatus is the parsed result of "git status --porcelain=v2".
type WorkStatus struct {
	// Branch is the current branch name ("(detached)" when detached).
	Branch string
	// Commit is the HEAD commit, "(initial)" before the first commit.
	Commit string
	// Upstream is the upstream branch (e.g. "origin/main"), empty if unset.
	Upstream string
	// Ahead and Behind count commits relative to Upstream. Without an
	// upstream Ahead counts commits the remote branch does not have.
	Ahead  int
	Behind int
	// Changed lists every path with staged, unstaged or untracked changes,
	// including both sides of a rename. Sorted, no duplicates.
	Changed []string
	// Conflicted lists unmerged paths.
	Conflicted []string
}

// HasChanges reports whether there is anything to commit.
func (s WorkStatus) HasChanges() bool {
	return len(s.Changed) > 0
}

// HasConflicts reports whether the index has unmerged entries.
func (s WorkStatus) HasConflicts() bool {
	return len(s.Conflicted) > 0
}

// Status reports changed and conflicted paths of the work tree.
func (c *Client) Status(ctx context.Context) (WorkStatus, error) {
	output, err := c.git(ctx, "status", "--porcelain=v2", "--branch", "--untracked-files=all", "-z")
	if err != nil {
		return WorkStatus{}, fmt.Errorf("status: %w", err)
	}
	st, err := parseStatus(output)
	if err != nil {
		return WorkStatus{}, err
	}

	// git prints branch.ab only for a branch with an upstream.
	if st.Upstream == "" && c.HasRemote() && st.Commit != "" && st.Commit != initialCommit {
		ahead, err := c.unpushed(ctx)
		if err != nil {
			return WorkStatus{}, err
		}
		st.Ahead = ahead
	}
	return st, nil
}

// initialCommit is the branch.oid value of a branch without commits.
const initialCommit = "(initial)"

// unpushed counts the commits on HEAD missing from the remote-tracking branch,
// or every commit when the remote branch has not been fetched or created yet.
func (c *Client) unpushed(ctx context.Context) (int, error) {
	revs := "HEAD"
	tracking := "refs/remotes/" + c.opts.Remote + "/" + c.opts.Branch
	if _, err := c.git(ctx, "rev-parse", "--verify", "--quiet", tracking); err == nil {
		revs = tracking + "..HEAD"
	}
	output, err := c.git(ctx, "rev-list", "--count", revs)
	if err != nil {
		return 0, fmt.Errorf("count unpushed commits: %w", err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(output))
	if err != nil {
		return 0, fmt.Errorf("parse unpushed count %q: %w", strings.TrimSpace(output), err)
	}
	return n, nil
}

// parseStatus parses NUL-terminated porcelain v2 output.
func parseStatus(output string) (WorkStatus, error) {
	var st WorkStatus
	changed := make(map[string]struct{})
	conflicted := make(map[string]struct{})

	entries := strings.Split(output, "\x00")
	for i := 0; i < len(entries); i++ {
		entry := entries[i]
		if entry == "" {
			continue
		}

		switch entry[0] {
		case '#':
			if err := parseBranchHeader(entry, &st); err != nil {
				return WorkStatus{}, err
			}
		case '1':
			// 1 <XY> <sub> <mH> <mI> <mW> <hH> <hI> <path>
			fields := strings.SplitN(entry, " ", 9)
			if len(fields) < 9 {
				return WorkStatus{}, fmt.Errorf("malformed status entry %q", entry)
			}
			changed[fields[8]] = struct{}{}
		case '2':
			// 2 <XY> <sub> <mH> <mI> <mW> <hH> <hI> <X><score> <path>\0<origPath>
			fields := strings.SplitN(entry, " ", 10)
			if len(fields) < 10 {
				return WorkStatus{}, fmt.Errorf("malformed rename entry %q", entry)
			}
			changed[fields[9]] = struct{}{}
			if i+1 < len(entries) && entries[i+1] != "" {
				i++
				changed[entries[i]] = struct{}{}
			}
		case 'u':
			// u <XY> <sub> <m1> <m2> <m3> <mW> <h1> <h2> <h3> <path>
			fields := strings.SplitN(entry, " ", 11)
			if len(fields) < 11 {
				return WorkStatus{}, fmt.Errorf("malformed unmerged entry %q", entry)
			}
			conflicted[fields[10]] = struct{}{}
		case '?':
			changed[strings.TrimPrefix(entry, "? ")] = struct{}{}
		case '!':
			// ignored files never count as changes
		}
	}

	for p := range conflicted {
		delete(changed, p)
	}
	st.Changed = sortedKeys(changed)
	st.Conflicted = sortedKeys(conflicted)
	return st, nil
}

func parseBranchHeader(line string, st *WorkStatus) error {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return nil
	}
	switch fields[1] {
	case "branch.oid":
		st.Commit = fields[2]
	case "branch.head":
		st.Branch = fields[2]
	case "branch.upstream":
		st.Upstream = fields[2]
	case "branch.ab":
		if len(fields) < 4 {
			return fmt.Errorf("malformed branch.ab header %q", line)
		}
		ahead, err := strconv.Atoi(strings.TrimPrefix(fields[2], "+"))
		if err != nil {
			return fmt.Errorf("parse ahead count: %w", err)
		}
		behind, err := strconv.Atoi(strings.TrimPrefix(fields[3], "-"))
		if err != nil {
			return fmt.Errorf("parse behind count: %w", err)
		}
		st.Ahead, st.Behind = ahead, behind
	}
	return nil
}

// UnmergedPaths lists paths with unresolved merge conflicts.
func (c *Client) UnmergedPaths(ctx context.Context) ([]string, error) {
	lines, err := c.gitLines(ctx, "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil, fmt.Errorf("list unmerged paths: %w", err)
	}
	sort.Strings(lines)
	return lines, nil
}

func sortedKeys(m map[string]struct{}) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
