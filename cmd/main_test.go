package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()
	want := []string{"init", "ingest", "query", "serve", "reconcile", "snapshot"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("subcommand %s missing", name)
		}
	}
}

func TestIngest_DryRun(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "paper.txt")
	text := "Abstract\nWe study things.\f1 Introduction\nMore text about the study."
	if err := os.WriteFile(path, []byte(text), 0600); err != nil {
		t.Fatal(err)
	}

	root := newRootCmd()
	root.SetArgs([]string{"--config", filepath.Join(dir, "none.yaml"), "ingest", "--dry-run", "--file", path})
	if err := root.Execute(); err != nil {
		t.Fatal(err)
	}
}

func TestIngest_DryRunNeedsFile(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "none.yaml"), "ingest", "--dry-run"})
	if err := root.Execute(); err == nil {
		t.Fatal("expected error")
	}
}

func TestQuery_NeedsQuestion(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"query"})
	if err := root.Execute(); err == nil {
		t.Fatal("expected error")
	}
}
