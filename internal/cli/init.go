// Package cli implements the tasksync command-line interface.
package cli

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/bolasblack/tasksync/internal/config"
	"github.com/bolasblack/tasksync/internal/coordinator"
	"github.com/bolasblack/tasksync/internal/state"
	tsync "github.com/bolasblack/tasksync/internal/sync"
)

var (
	initRemote   string
	initBranch   string
	initTemplate string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize tasksync in the task directory",
	Long: `Initialize tasksync by creating a .tsync.toml configuration file and the
git repository the task files are synced through.

With --remote the remote branch is fetched and checked out when it exists.
Without a remote, changes are committed locally only.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVar(&initRemote, "remote", "", "Remote repository URL")
	initCmd.Flags().StringVar(&initBranch, "branch", "", "Branch to sync (default main)")
	initCmd.Flags().StringVar(&initTemplate, "template", "", "Config template: local or remote (prompted when omitted)")
}

func runInit(cmd *cobra.Command, args []string) error {
	dir, err := taskDir()
	if err != nil {
		return err
	}

	deps := newCLIDeps()
	env := deps.Env
	w := out(cmd)
	path := configPath(dir)

	if _, err := env.Fs.Stat(path); err == nil {
		return fmt.Errorf("configuration file already exists: %s", path)
	}

	template, err := chooseTemplate(deps)
	if err != nil {
		return err
	}
	tc, err := config.TemplateFor(template, config.TemplateOptions{URL: initRemote, Branch: initBranch})
	if err != nil {
		return err
	}

	if err := env.Fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create task directory: %w", err)
	}
	if err := config.GenerateConfig(env.Fs, path, tc); err != nil {
		return fmt.Errorf("failed to generate configuration: %w", err)
	}
	progressDone(w, "Created %s\n", path)

	cfg, err := config.LoadConfig(env, path)
	if err != nil {
		return fmt.Errorf("failed to load generated config: %w", err)
	}

	st, _, err := state.LoadOrCreate(env, dir)
	if err != nil {
		return fmt.Errorf("failed to create state: %w", err)
	}

	if cfg.Remote.URL != "" {
		progressStep(w, "Fetching %s (%s)\n", cfg.Remote.URL, cfg.Remote.Branch)
	} else {
		progressStep(w, "Creating local repository\n")
	}
	newClient := coordinator.GitClientFactory(env.Fs, env.Cmd, deps.Getenv)
	client, err := newClient(dir, coordinator.SyncConfig(cfg).Remote)
	if err != nil {
		return err
	}
	if err := client.EnsureRepo(cmd.Context(), tsync.ExcludePatterns()...); err != nil {
		return fmt.Errorf("failed to prepare repository: %w", err)
	}

	st.UpdateRemote(remoteSnapshot(cfg))
	if err := state.Save(env, dir, st); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}

	progressDone(w, "Repository ready in %s\n", dir)
	fmt.Fprintln(w, "Run 'tsync watch' to keep it in sync.")
	return nil
}

var templateLabels = map[config.Template]string{
	config.TemplateLocal:  "Local - commit changes without a remote",
	config.TemplateRemote: "Remote - sync with a git remote",
}

// chooseTemplate resolves the template from flags, asking when possible.
func chooseTemplate(deps *cliDeps) (config.Template, error) {
	if initTemplate != "" {
		return config.Template(initTemplate), nil
	}
	if initRemote != "" {
		return config.TemplateRemote, nil
	}
	if !deps.Interactive() {
		return config.TemplateLocal, nil
	}

	options := make([]huh.Option[string], 0, len(config.Templates))
	for _, t := range config.Templates {
		options = append(options, huh.NewOption(templateLabels[t], string(t)))
	}

	var selected string
	err := huh.NewSelect[string]().
		Title("Select a template").
		Options(options...).
		Value(&selected).
		Run()
	if err != nil {
		return "", fmt.Errorf("template selection cancelled: %w", err)
	}

	if config.Template(selected) == config.TemplateRemote {
		err := huh.NewInput().
			Title("Remote repository URL").
			Value(&initRemote).
			Validate(func(s string) error {
				if s == "" {
					return errors.New("URL is required")
				}
				return nil
			}).
			Run()
		if err != nil {
			return "", fmt.Errorf("remote input cancelled: %w", err)
		}
	}
	return config.Template(selected), nil
}
