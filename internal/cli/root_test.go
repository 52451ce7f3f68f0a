package cli

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
)

func TestRootCommandHasSubcommands(t *testing.T) {
	expectedCommands := []string{
		"init",
		"status",
		"sync",
		"watch",
		"conflicts",
	}

	actualCommands := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		actualCommands[cmd.Name()] = true
	}

	for _, expected := range expectedCommands {
		if !actualCommands[expected] {
			t.Errorf("expected subcommand %q not found in root command", expected)
		}
	}
}

func TestConflictsCommandHasSubcommands(t *testing.T) {
	found := map[string]bool{}
	for _, cmd := range conflictsCmd.Commands() {
		found[cmd.Name()] = true
	}
	for _, name := range []string{"check", "resolve"} {
		if !found[name] {
			t.Errorf("expected %q under conflicts", name)
		}
	}
}

func TestRootCommandInfo(t *testing.T) {
	if rootCmd.Use != "tsync" {
		t.Errorf("expected root command use to be 'tsync', got %q", rootCmd.Use)
	}

	if rootCmd.Short == "" {
		t.Error("root command should have a short description")
	}

	if rootCmd.Long == "" {
		t.Error("root command should have a long description")
	}

	for _, name := range []string{"dir", "verbose"} {
		if rootCmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("expected persistent flag --%s", name)
		}
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	quiet := newLogger(&buf, false)
	if quiet.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug should be off without --verbose")
	}

	verbose := newLogger(&buf, true)
	if !verbose.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug should be on with --verbose")
	}

	verbose.Info("hello", "key", "value")
	if bytes.Contains(buf.Bytes(), []byte("\033[")) {
		t.Errorf("expected no color for a non-terminal writer: %q", buf.String())
	}
	if !bytes.Contains(buf.Bytes(), []byte("hello")) {
		t.Errorf("expected message in output: %q", buf.String())
	}
}
