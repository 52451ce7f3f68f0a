package sync

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"text/template"
	"time"

	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/bolasblack/tasksync/internal/util"
)

// DefaultCommitMessage is used when the configured template is empty or broken.
const DefaultCommitMessage = "tsync: update {{len .Paths}} file(s) from {{.Host}}"

// builtinIgnore keeps tool-private files out of commits even when the
// repository's exclude file was edited.
var builtinIgnore = []string{util.DataDir + "/", util.ConfigFilename}

// ExcludePatterns returns the patterns written to the repository's exclude file.
func ExcludePatterns() []string {
	return slices.Clone(builtinIgnore)
}

// CommitMessageData is the data passed to the commit message template.
type CommitMessageData struct {
	Paths []string
	Host  string
	Time  time.Time
}

func parseCommitTemplate(text string) (*template.Template, error) {
	if strings.TrimSpace(text) == "" {
		text = DefaultCommitMessage
	}
	return template.New("commit").Option("missingkey=error").Parse(text)
}

func renderCommitMessage(tmpl *template.Template, paths []string, now time.Time) (string, error) {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, CommitMessageData{Paths: paths, Host: host, Time: now}); err != nil {
		return "", fmt.Errorf("render commit message: %w", err)
	}
	msg := strings.TrimSpace(b.String())
	if msg == "" {
		msg = fmt.Sprintf("tsync: update %d file(s)", len(paths))
	}
	return msg, nil
}

func compileIgnore(patterns []string) *gitignore.GitIgnore {
	lines := make([]string, 0, len(builtinIgnore)+len(patterns))
	lines = append(lines, builtinIgnore...)
	lines = append(lines, patterns...)
	return gitignore.CompileIgnoreLines(lines...)
}

// filterIgnored returns the paths not matched by ig.
func filterIgnored(ig *gitignore.GitIgnore, paths []string) []string {
	var kept []string
	for _, p := range paths {
		if ig.MatchesPath(p) {
			continue
		}
		kept = append(kept, p)
	}
	return kept
}
