package bundle

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleConfig = `
execution:
  max_concurrent: 3
  timeout_per_observer: 45
  on_timeout: skip
observers:
  - name: security-auditor
    focus: Review code for security issues.
    model: claude-sonnet-4-5
    watch:
      - type: files
        paths: ["**/*.py", "**/*.go"]
  - name: dialogue-reviewer
    watch:
      - type: conversation
        include_tool_calls: false
    focus: Review the conversation for misunderstandings.
`

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if len(cfg.Hooks) != 1 || cfg.Hooks[0].Trigger != DefaultTrigger {
		t.Errorf("expected default hook, got %+v", cfg.Hooks)
	}
	if cfg.Hooks[0].Priority != 5 {
		t.Errorf("expected default priority 5, got %d", cfg.Hooks[0].Priority)
	}
	if cfg.Execution.Mode != "parallel_sync" {
		t.Errorf("expected default mode, got %q", cfg.Execution.Mode)
	}
	if cfg.Execution.MaxConcurrent != 3 {
		t.Errorf("expected max_concurrent 3, got %d", cfg.Execution.MaxConcurrent)
	}
	if got := cfg.Execution.ObserverTimeout(); got != 45*time.Second {
		t.Errorf("expected 45s timeout, got %v", got)
	}
}

func TestParse_WatchDefaults(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	files := cfg.Observers[0].Watch[0]
	if files.Type != WatchFiles {
		t.Errorf("expected files watch, got %q", files.Type)
	}
	if !files.IncludeToolCalls || !files.IncludeReasoning {
		t.Error("include flags should default to true")
	}

	conv := cfg.Observers[1].Watch[0]
	if conv.Type != WatchConversation {
		t.Errorf("expected conversation watch, got %q", conv.Type)
	}
	if conv.IncludeToolCalls {
		t.Error("include_tool_calls: false should be honored")
	}
	if !conv.IncludeReasoning {
		t.Error("include_reasoning should default to true")
	}
}

func TestParse_EnabledDefault(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	for _, obs := range cfg.Observers {
		if !obs.Enabled {
			t.Errorf("observer %q should be enabled by default", obs.Name)
		}
	}

	disabled := strings.Replace(sampleConfig, "name: security-auditor", "name: security-auditor\n    enabled: false", 1)
	cfg, err = Parse([]byte(disabled))
	if err != nil {
		t.Fatalf("parse disabled: %v", err)
	}
	if cfg.Observers[0].Enabled {
		t.Error("enabled: false should be honored")
	}
	if got := cfg.EnabledObservers(); len(got) != 1 || got[0].Name != "dialogue-reviewer" {
		t.Errorf("expected only dialogue-reviewer enabled, got %+v", got)
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			"unknown watch type",
			"observers:\n  - name: x\n    watch:\n      - type: sockets\n",
			"unknown watch type",
		},
		{
			"files watch without paths",
			"observers:\n  - name: x\n    watch:\n      - type: files\n",
			"no paths",
		},
		{
			"observer without watch",
			"observers:\n  - name: x\n",
			"no watch targets",
		},
		{
			"duplicate names",
			"observers:\n  - name: x\n    watch: [{type: conversation}]\n  - name: x\n    watch: [{type: conversation}]\n",
			"duplicate observer name",
		},
		{
			"negative concurrency",
			"execution:\n  max_concurrent: -1\n",
			"max_concurrent",
		},
		{
			"bad timeout policy",
			"execution:\n  on_timeout: retry\n",
			"on_timeout",
		},
		{
			"unsupported mode",
			"execution:\n  mode: serial\n",
			"execution mode",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestObserverTimeoutOverride(t *testing.T) {
	obs := ObserverConfig{Timeout: 10}
	if got := obs.TimeoutDuration(30 * time.Second); got != 10*time.Second {
		t.Errorf("expected observer override, got %v", got)
	}
	obs.Timeout = 0
	if got := obs.TimeoutDuration(30 * time.Second); got != 30*time.Second {
		t.Errorf("expected fallback, got %v", got)
	}
}

func TestParseObserverFile(t *testing.T) {
	def := `---
name: security-auditor
model: claude-sonnet-4-5
timeout: 60
tools: [read_file]
---

Review every change for security problems: injection, secrets,
unsafe deserialization.
`
	obs, err := ParseObserverFile([]byte(def))
	if err != nil {
		t.Fatalf("parse observer file: %v", err)
	}
	if obs.Name != "security-auditor" || obs.Model != "claude-sonnet-4-5" || obs.Timeout != 60 {
		t.Errorf("frontmatter mismatch: %+v", obs)
	}
	if !strings.HasPrefix(obs.Focus, "Review every change") {
		t.Errorf("expected body as focus, got %q", obs.Focus)
	}
	if len(obs.Tools) != 1 || obs.Tools[0] != "read_file" {
		t.Errorf("tools mismatch: %v", obs.Tools)
	}
}

func TestParseObserverFile_Errors(t *testing.T) {
	if _, err := ParseObserverFile([]byte("no frontmatter here")); err == nil {
		t.Error("expected error for missing frontmatter")
	}
	if _, err := ParseObserverFile([]byte("---\nname: x\nno terminator")); err == nil {
		t.Error("expected error for unterminated frontmatter")
	}
	if _, err := ParseObserverFile([]byte("---\nmodel: m\n---\nbody")); err == nil {
		t.Error("expected error for missing name")
	}
}

func TestResolveObservers(t *testing.T) {
	dir := t.TempDir()
	def := `---
name: style-critic
model: claude-haiku-4
timeout: 20
---
Flag style regressions.
`
	if err := os.WriteFile(filepath.Join(dir, "style.md"), []byte(def), 0o644); err != nil {
		t.Fatalf("write observer file: %v", err)
	}

	cfg, err := Parse([]byte(`
observers:
  - file: style.md
    timeout: 90
    watch:
      - type: files
        paths: ["**/*.go"]
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := cfg.ResolveObservers(dir); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	obs := cfg.Observers[0]
	if obs.Name != "style-critic" {
		t.Errorf("expected name from definition, got %q", obs.Name)
	}
	if obs.Model != "claude-haiku-4" {
		t.Errorf("expected model from definition, got %q", obs.Model)
	}
	if obs.Timeout != 90 {
		t.Errorf("entry timeout override should win, got %d", obs.Timeout)
	}
	if len(obs.Watch) != 1 || obs.Watch[0].Type != WatchFiles {
		t.Errorf("watch should come from the entry, got %+v", obs.Watch)
	}
	if obs.Focus != "Flag style regressions." {
		t.Errorf("focus mismatch: %q", obs.Focus)
	}
}

func TestApplyLocalOverrides(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, ".vigil"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	overrides := "[execution]\nmax_concurrent = 2\non_timeout = \"fail\"\n"
	if err := os.WriteFile(filepath.Join(dir, ".vigil", "config.toml"), []byte(overrides), 0o644); err != nil {
		t.Fatalf("write overrides: %v", err)
	}

	cfg, err := Parse([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := ApplyLocalOverrides(cfg, dir); err != nil {
		t.Fatalf("apply overrides: %v", err)
	}

	if cfg.Execution.MaxConcurrent != 2 {
		t.Errorf("expected override max_concurrent 2, got %d", cfg.Execution.MaxConcurrent)
	}
	if cfg.Execution.OnTimeout != TimeoutFail {
		t.Errorf("expected on_timeout fail, got %q", cfg.Execution.OnTimeout)
	}
	// Untouched field keeps the bundle value.
	if cfg.Execution.TimeoutPerObserver != 45 {
		t.Errorf("timeout_per_observer should be unchanged, got %d", cfg.Execution.TimeoutPerObserver)
	}
}

func TestApplyLocalOverrides_MissingFileIsNoop(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := ApplyLocalOverrides(cfg, t.TempDir()); err != nil {
		t.Fatalf("missing overrides file should be a no-op: %v", err)
	}
}
