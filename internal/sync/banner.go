package sync

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"text/template"

	"github.com/charmbracelet/lipgloss"
)

var bannerTmpl = template.Must(template.New("banner").Parse(`
{{ .Header }}
{{ range .Paths }}  {{ . }}
{{ end }}{{ if .MoreCount }}  ...and {{ .MoreCount }} more
{{ end }}{{ .Footer }}
`))

type bannerData struct {
	Header    string
	Paths     []string
	MoreCount int
	Footer    string
}

// bannerMaxPaths is the maximum number of conflict paths shown in the banner.
const bannerMaxPaths = 3

// RenderBanner writes a sync conflict warning banner to the given writer.
// Uses lipgloss for TTY-aware colored output (auto-strips ANSI when not a TTY).
// If conflicts is empty, writes nothing.
func RenderBanner(conflicts []ConflictInfo, w io.Writer) {
	if len(conflicts) == 0 {
		return
	}

	renderer := lipgloss.NewRenderer(w)
	yellow := renderer.NewStyle().Foreground(lipgloss.Color("3"))

	noun := "conflict"
	if len(conflicts) != 1 {
		noun = "conflicts"
	}
	header := yellow.Render(fmt.Sprintf("⚠ %d sync %s need attention:", len(conflicts), noun))

	shown := min(len(conflicts), bannerMaxPaths)
	paths := make([]string, 0, shown)
	for _, c := range conflicts[:shown] {
		paths = append(paths, fmt.Sprintf("%-30s (%s)", c.Path, c.Describe()))
	}

	footer := yellow.Render(bannerFooter(conflicts))

	data := bannerData{
		Header:    header,
		Paths:     paths,
		MoreCount: max(len(conflicts)-bannerMaxPaths, 0),
		Footer:    footer,
	}

	var buf strings.Builder
	_ = bannerTmpl.Execute(&buf, data)
	_, _ = io.WriteString(w, buf.String())
}

// bannerFooter tells the user what unblocks sync. Rejected pushes need no
// action: the next cycle pulls and retries.
func bannerFooter(conflicts []ConflictInfo) string {
	if slices.ContainsFunc(conflicts, func(c ConflictInfo) bool { return c.Kind.Sticky() }) {
		return "Run 'tsync conflicts resolve' to resolve."
	}
	return "Sync retries automatically on the next cycle."
}
