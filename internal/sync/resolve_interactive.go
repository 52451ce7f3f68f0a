package sync

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/afero"
)

// ResolveChoice represents the user's resolution choice.
type ResolveChoice string

const (
	ResolveChoiceLocal  ResolveChoice = "local"
	ResolveChoiceRemote ResolveChoice = "remote"
	ResolveChoiceSkip   ResolveChoice = "skip"
)

// ResolvePromptFunc prompts the user for a resolution choice.
// Returns the choice or an error (e.g. user cancelled with Ctrl+C).
type ResolvePromptFunc func(conflict ConflictInfo, index, total int) (ResolveChoice, error)

// ResolveResult holds the summary of a resolution session.
type ResolveResult struct {
	Resolved int
	Skipped  int
	// Remaining lists the conflicts still unresolved.
	Remaining []ConflictInfo
	// Concluded is true when a pending merge was committed.
	Concluded bool
}

// Done reports whether nothing remains to resolve.
func (r *ResolveResult) Done() bool {
	return len(r.Remaining) == 0
}

// ResolveParams holds the parameters for an interactive conflict resolution session.
type ResolveParams struct {
	Ctx       context.Context
	Fs        afero.Fs
	Resolver  Resolver
	Root      string
	Conflicts []ConflictInfo
	PromptFn  ResolvePromptFunc
	W         io.Writer
	Now       func() time.Time
}

// ResolveAllInteractive walks through conflicts one by one, prompting the user
// for each and applying the chosen resolution. When every conflict is
// resolved a pending merge is concluded. The conflict cache is rewritten with
// whatever remains, which is the signal a running daemon watches to leave
// CONFLICT.
func ResolveAllInteractive(p ResolveParams) (*ResolveResult, error) {
	w := p.W
	now := p.Now
	if now == nil {
		now = time.Now
	}
	total := len(p.Conflicts)
	result := &ResolveResult{}

	for i, conflict := range p.Conflicts {
		if !conflict.Kind.Sticky() {
			// Rejected pushes clear on the next sync.
			result.Resolved++
			continue
		}

		_, _ = fmt.Fprintf(w, "[%d/%d] %s\n", i+1, total, conflict.Path)
		_, _ = fmt.Fprintf(w, "  Conflict: %s\n", conflict.Describe())

		choice, err := p.PromptFn(conflict, i, total)
		if err != nil {
			// User cancelled (Ctrl+C)
			result.Remaining = append(result.Remaining, p.Conflicts[i:]...)
			_, _ = fmt.Fprintf(w, "\nAborted. %d resolved, %d skipped.\n", result.Resolved, result.Skipped)
			return result, writeRemaining(p, result, now())
		}

		switch choice {
		case ResolveChoiceLocal:
			if err := ResolveLocal(p.Ctx, p.Resolver, conflict.Path); err != nil {
				_, _ = fmt.Fprintf(w, "  Error: %v\n", err)
				result.Remaining = append(result.Remaining, conflict)
				continue
			}
			_, _ = fmt.Fprintln(w, "  Resolved: kept local version")
			result.Resolved++

		case ResolveChoiceRemote:
			if err := ResolveRemote(p.Ctx, p.Resolver, conflict.Path); err != nil {
				_, _ = fmt.Fprintf(w, "  Error: %v\n", err)
				result.Remaining = append(result.Remaining, conflict)
				continue
			}
			_, _ = fmt.Fprintln(w, "  Resolved: took remote version")
			result.Resolved++

		default:
			result.Skipped++
			result.Remaining = append(result.Remaining, conflict)
		}
		_, _ = fmt.Fprintln(w)
	}

	if result.Done() && p.Resolver.MergeInProgress() {
		if err := p.Resolver.ConcludeMerge(p.Ctx, ""); err != nil {
			return result, fmt.Errorf("conclude merge: %w", err)
		}
		result.Concluded = true
		_, _ = fmt.Fprintln(w, "Merge committed.")
	}

	_, _ = fmt.Fprintf(w, "Done: %d resolved, %d skipped.\n", result.Resolved, result.Skipped)
	return result, writeRemaining(p, result, now())
}

func writeRemaining(p ResolveParams, result *ResolveResult, now time.Time) error {
	if p.Fs == nil {
		return nil
	}
	remaining := result.Remaining
	if remaining == nil {
		remaining = []ConflictInfo{}
	}
	return WriteCache(p.Fs, p.Root, &CacheData{UpdatedAt: now, Conflicts: remaining})
}
