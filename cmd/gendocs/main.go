// Command gendocs generates the tsync command reference, man pages and shell
// completions.
package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"

	"github.com/bolasblack/tasksync/internal/cli"
)

const usage = "Usage: gendocs <markdown|man|completions> [output dir]"

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	cmd := cli.GetRootCmd()
	cmd.DisableAutoGenTag = true

	out := func(def string) string {
		if len(os.Args) > 2 {
			return os.Args[2]
		}
		return def
	}

	switch os.Args[1] {
	case "markdown":
		generateMarkdown(cmd, out("docs/commands"))
	case "man":
		generateMan(cmd, out("out/man"))
	case "completions":
		generateCompletions(cmd, out("out/completions"))
	default:
		fmt.Printf("Unknown format: %s\n%s\n", os.Args[1], usage)
		os.Exit(1)
	}
}

// commandIndex maps doc file base names (tsync_conflicts_check) to commands.
func commandIndex(root *cobra.Command) map[string]*cobra.Command {
	index := make(map[string]*cobra.Command)
	var walk func(c *cobra.Command)
	walk = func(c *cobra.Command) {
		index[strings.ReplaceAll(c.CommandPath(), " ", "_")] = c
		for _, sub := range c.Commands() {
			if sub.IsAvailableCommand() {
				walk(sub)
			}
		}
	}
	walk(root)
	return index
}

func generateMarkdown(cmd *cobra.Command, dir string) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Fatalf("Failed to create directory: %v", err)
	}

	index := commandIndex(cmd)
	now := time.Now().Format("2006-01-02")

	// Front matter for the docs site: top-level commands sort before
	// their subcommands.
	filePrepender := func(filename string) string {
		base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
		title := strings.ReplaceAll(base, "_", " ")
		description := ""
		if c, ok := index[base]; ok {
			description = c.Short
		}
		weight := strings.Count(base, "_")
		return fmt.Sprintf("---\ntitle: %q\ndescription: %q\ndate: %s\nweight: %d\n---\n\n", title, description, now, weight)
	}

	linkHandler := func(name string) string {
		base := strings.TrimSuffix(name, filepath.Ext(name))
		return "./" + base + ".md"
	}

	if err := doc.GenMarkdownTreeCustom(cmd, dir, filePrepender, linkHandler); err != nil {
		log.Fatalf("Failed to generate markdown: %v", err)
	}

	fmt.Printf("Generated markdown for %d commands in %s/\n", len(index), dir)
}

func generateCompletions(cmd *cobra.Command, dir string) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Fatalf("Failed to create directory: %v", err)
	}

	gens := map[string]func(*os.File) error{
		"tsync.bash": func(f *os.File) error { return cmd.GenBashCompletionV2(f, true) },
		"tsync.zsh":  func(f *os.File) error { return cmd.GenZshCompletion(f) },
		"tsync.fish": func(f *os.File) error { return cmd.GenFishCompletion(f, true) },
		"tsync.ps1":  func(f *os.File) error { return cmd.GenPowerShellCompletionWithDesc(f) },
	}
	for name, gen := range gens {
		writeCompletion(filepath.Join(dir, name), gen)
	}

	fmt.Printf("Generated shell completions in %s/\n", dir)
}

func writeCompletion(path string, gen func(*os.File) error) {
	f, err := os.Create(path)
	if err != nil {
		log.Fatalf("Failed to create %s: %v", path, err)
	}
	if err := gen(f); err != nil {
		_ = f.Close()
		log.Fatalf("Failed to generate %s: %v", path, err)
	}
	if err := f.Close(); err != nil {
		log.Fatalf("Failed to close %s: %v", path, err)
	}
}

func generateMan(cmd *cobra.Command, dir string) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Fatalf("Failed to create directory: %v", err)
	}

	now := time.Now()
	header := &doc.GenManHeader{
		Title:   "TSYNC",
		Section: "1",
		Date:    &now,
		Source:  "tasksync " + cli.Version,
		Manual:  "tasksync Manual",
	}

	if err := doc.GenManTree(cmd, header, dir); err != nil {
		log.Fatalf("Failed to generate man pages: %v", err)
	}

	fmt.Printf("Generated man pages in %s/\n", dir)
}
