// generator.go provides config templates for tsync init.
//
// init and defaults are complementary: fields with defaults are left out of
// generated files unless a template needs them for demonstration.

package config

import (
	"bytes"
	"fmt"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"
)

// Template represents a configuration template type.
type Template string

const (
	// TemplateLocal generates a local-only configuration (no remote).
	TemplateLocal Template = "local"
	// TemplateRemote generates a configuration that syncs with a remote.
	TemplateRemote Template = "remote"
)

// Templates lists the available templates in display order.
var Templates = []Template{TemplateLocal, TemplateRemote}

// TemplateConfig holds a SchemaConfig and comments to insert before sections.
type TemplateConfig struct {
	Config SchemaConfig
	// Comments maps a table header (e.g. "[sync]") to a comment line.
	Comments map[string]string
}

// TemplateOptions are values the user supplied to init.
type TemplateOptions struct {
	URL    string
	Branch string
}

// TemplateFor returns the template config for the given template.
func TemplateFor(template Template, opts TemplateOptions) (TemplateConfig, error) {
	switch template {
	case TemplateLocal:
		return TemplateConfig{
			Config: SchemaConfig{
				Sync:   Sync{AutoPullInterval: Interval(DefaultAutoPullInterval)},
				Ignore: []string{"*.tmp", "*.swp"},
			},
			Comments: map[string]string{
				"[sync]": "local-only: changes are committed but never pulled or pushed",
			},
		}, nil
	case TemplateRemote:
		if opts.URL == "" {
			return TemplateConfig{}, fmt.Errorf("template %q requires a remote URL", template)
		}
		return TemplateConfig{
			Config: SchemaConfig{
				Remote: Remote{URL: opts.URL, Branch: opts.Branch},
				Sync:   Sync{AutoPullInterval: Interval(DefaultAutoPullInterval)},
				Ignore: []string{"*.tmp", "*.swp"},
			},
			Comments: map[string]string{
				"[remote]": "set credentials_env to the name of a variable holding an access token for HTTPS remotes",
			},
		}, nil
	default:
		return TemplateConfig{}, fmt.Errorf("unknown template %q", template)
	}
}

// RenderConfig returns the TOML content for the given template config.
func RenderConfig(tc TemplateConfig) (string, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(tc.Config); err != nil {
		return "", fmt.Errorf("encode template: %w", err)
	}
	return SchemaComment + insertComments(buf.String(), tc.Comments), nil
}

// GenerateConfig writes the rendered template to path.
func GenerateConfig(fs afero.Fs, path string, tc TemplateConfig) error {
	content, err := RenderConfig(tc)
	if err != nil {
		return err
	}
	if err := afero.WriteFile(fs, path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// insertComments inserts "# comment" lines before the matching table headers.
func insertComments(content string, comments map[string]string) string {
	if len(comments) == 0 {
		return content
	}
	lines := strings.Split(content, "\n")
	result := make([]string, 0, len(lines)+len(comments))
	for _, line := range lines {
		if comment, ok := comments[strings.TrimSpace(line)]; ok {
			result = append(result, "# "+comment)
		}
		result = append(result, line)
	}
	return strings.Join(result, "\n")
}
