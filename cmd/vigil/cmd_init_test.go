package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vigil/pkg/bundle"
)

func TestInit_CreatesStarterBundle(t *testing.T) {
	home := t.TempDir()
	t.Setenv("VIGIL_HOME", home)

	out, err := execRoot(t, "init")
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if !strings.Contains(out, "created") {
		t.Errorf("output: %q", out)
	}

	// The starter bundle must load, resolve, and validate cleanly.
	cfg, err := bundle.Load(filepath.Join(home, "observers.yaml"))
	if err != nil {
		t.Fatalf("starter bundle invalid: %v", err)
	}
	if err := cfg.ResolveObservers(home); err != nil {
		t.Fatalf("starter observer definition invalid: %v", err)
	}
	if len(cfg.EnabledObservers()) != 2 {
		t.Errorf("expected 2 starter observers, got %d", len(cfg.EnabledObservers()))
	}
	if cfg.Observers[0].Name != "security-auditor" {
		t.Errorf("file-referenced observer not resolved: %+v", cfg.Observers[0])
	}
	if cfg.Observers[0].Focus == "" {
		t.Error("observer focus missing after resolve")
	}
}

func TestInit_IsIdempotent(t *testing.T) {
	home := t.TempDir()
	t.Setenv("VIGIL_HOME", home)

	if _, err := execRoot(t, "init"); err != nil {
		t.Fatalf("first init: %v", err)
	}

	marker := filepath.Join(home, "observers.yaml")
	if err := os.WriteFile(marker, []byte("# customized\n"), 0o644); err != nil {
		t.Fatalf("customize: %v", err)
	}

	out, err := execRoot(t, "init")
	if err != nil {
		t.Fatalf("second init: %v", err)
	}
	if !strings.Contains(out, "already initialized") {
		t.Errorf("output: %q", out)
	}

	data, err := os.ReadFile(marker)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "# customized\n" {
		t.Error("init must never overwrite existing files")
	}
}
