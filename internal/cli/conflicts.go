package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/template"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/bolasblack/tasksync/internal/coordinator"
	tsync "github.com/bolasblack/tasksync/internal/sync"
	"github.com/bolasblack/tasksync/internal/util"
)

var (
	conflictsTemplate string
	conflictsKeep     string
)

var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "Inspect and resolve sync conflicts",
}

var conflictsCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check for sync conflicts",
	Long:  "Check for sync conflicts. Exit 0 if no conflicts, exit 1 if conflicts exist.",
	RunE:  runConflictsCheck,
}

var conflictsResolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve sync conflicts interactively",
	Long: `Walk through sync conflicts one by one and choose which version to keep.

A running 'tsync watch' resumes syncing once every conflict is resolved.`,
	RunE: runConflictsResolve,
}

func init() {
	conflictsCheckCmd.Flags().StringVar(&conflictsTemplate, "template", "", "Go template for output format")
	conflictsResolveCmd.Flags().StringVar(&conflictsKeep, "keep", "", "Resolve every conflict without prompting: local or remote")

	conflictsCmd.AddCommand(conflictsCheckCmd)
	conflictsCmd.AddCommand(conflictsResolveCmd)
}

type conflictsCheckData struct {
	Conflicts []tsync.ConflictInfo `json:"conflicts"`
	Count     int                  `json:"count"`
}

func runConflictsCheck(cmd *cobra.Command, args []string) error {
	dir, err := taskDir()
	if err != nil {
		return err
	}

	deps := newCLIDeps()
	cache, err := tsync.ReadCache(deps.Env.Fs, dir)
	if err != nil {
		return fmt.Errorf("failed to check sync conflicts: %w", err)
	}
	var conflicts []tsync.ConflictInfo
	if cache != nil {
		conflicts = cache.Conflicts
	}

	if conflictsTemplate != "" {
		data := conflictsCheckData{Conflicts: conflicts, Count: len(conflicts)}
		if err := renderConflictsTemplate(cmd, conflictsTemplate, data); err != nil {
			return err
		}
	} else if len(conflicts) == 0 {
		_, _ = fmt.Fprintln(out(cmd), "No sync conflicts.")
	} else {
		tsync.RenderBanner(conflicts, out(cmd))
	}

	if len(conflicts) > 0 {
		return fmt.Errorf("%d sync conflicts found", len(conflicts))
	}
	return nil
}

func renderConflictsTemplate(cmd *cobra.Command, tplStr string, data conflictsCheckData) error {
	funcMap := template.FuncMap{
		"json": func(v any) (string, error) {
			b, err := json.MarshalIndent(v, "", "  ")
			if err != nil {
				return "", err
			}
			return string(b), nil
		},
	}

	tpl, err := template.New("conflicts").Funcs(funcMap).Parse(tplStr)
	if err != nil {
		return fmt.Errorf("invalid template: %w", err)
	}

	return tpl.Execute(out(cmd), data)
}

func runConflictsResolve(cmd *cobra.Command, args []string) error {
	dir, err := taskDir()
	if err != nil {
		return err
	}

	deps := newCLIDeps()
	env := deps.Env
	w := out(cmd)

	cfg, err := loadRequiredConfig(env, dir)
	if err != nil {
		return err
	}

	promptFn, err := resolvePrompt(deps)
	if err != nil {
		return err
	}

	client, err := coordinator.GitClientFactory(env.Fs, env.Cmd, deps.Getenv)(dir, coordinator.SyncConfig(cfg).Remote)
	if err != nil {
		return err
	}
	resolver, ok := client.(tsync.Resolver)
	if !ok {
		return errors.New("git client cannot resolve conflicts")
	}

	conflicts, err := currentConflicts(cmd, env, dir, client, deps.Now())
	if err != nil {
		return err
	}
	if len(conflicts) == 0 {
		_, _ = fmt.Fprintln(w, "No sync conflicts.")
		return nil
	}

	_, _ = fmt.Fprintf(w, "%d sync conflicts found:\n\n", len(conflicts))

	result, err := tsync.ResolveAllInteractive(tsync.ResolveParams{
		Ctx:       cmd.Context(),
		Fs:        env.Fs,
		Resolver:  resolver,
		Root:      dir,
		Conflicts: conflicts,
		PromptFn:  promptFn,
		W:         w,
		Now:       deps.Now,
	})
	if err != nil {
		return err
	}
	if result.Done() {
		_, _ = fmt.Fprintln(w, "Run 'tsync sync' to publish the resolution, or let 'tsync watch' pick it up.")
	}
	return nil
}

// currentConflicts returns the cached conflicts plus unmerged paths the
// cache does not know about yet.
func currentConflicts(cmd *cobra.Command, env *util.Env, dir string, client tsync.Client, now time.Time) ([]tsync.ConflictInfo, error) {
	cache, err := tsync.ReadCache(env.Fs, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read sync conflicts: %w", err)
	}
	var conflicts []tsync.ConflictInfo
	known := map[string]bool{}
	if cache != nil {
		for _, c := range cache.Conflicts {
			conflicts = append(conflicts, c)
			known[c.Path] = true
		}
	}

	ws, err := client.Status(cmd.Context())
	if err != nil {
		return nil, fmt.Errorf("failed to read repository status: %w", err)
	}
	for _, p := range ws.Conflicted {
		if !known[p] {
			conflicts = append(conflicts, tsync.ConflictInfo{Path: p, Kind: tsync.ConflictMerge, DetectedAt: now})
		}
	}
	return conflicts, nil
}

// resolvePrompt picks the prompt: fixed by --keep, otherwise huh on a terminal.
func resolvePrompt(deps *cliDeps) (tsync.ResolvePromptFunc, error) {
	switch conflictsKeep {
	case "":
	case string(tsync.ResolveChoiceLocal), string(tsync.ResolveChoiceRemote):
		choice := tsync.ResolveChoice(conflictsKeep)
		return func(tsync.ConflictInfo, int, int) (tsync.ResolveChoice, error) { return choice, nil }, nil
	default:
		return nil, fmt.Errorf("invalid --keep %q: want local or remote", conflictsKeep)
	}
	if !deps.Interactive() {
		return nil, errors.New("conflicts resolve needs a terminal: use --keep local or --keep remote")
	}
	return huhResolvePrompt, nil
}

// huhResolvePrompt uses charmbracelet/huh for interactive conflict resolution.
func huhResolvePrompt(conflict tsync.ConflictInfo, index, total int) (tsync.ResolveChoice, error) {
	var choice string
	err := huh.NewSelect[string]().
		Title("How to resolve?").
		Options(
			huh.NewOption("Keep local version", string(tsync.ResolveChoiceLocal)),
			huh.NewOption("Take remote version", string(tsync.ResolveChoiceRemote)),
			huh.NewOption("Skip", string(tsync.ResolveChoiceSkip)),
		).
		Value(&choice).
		Run()
	if err != nil {
		return "", err
	}
	return tsync.ResolveChoice(choice), nil
}
