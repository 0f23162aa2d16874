package dispatch

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vigil/pkg/bundle"
	"vigil/pkg/detect"
	"vigil/pkg/session"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestBuilder_FilesSection(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "auth.py", "password = 'hunter2'\n")
	writeFile(t, dir, "src/db.py", "conn = connect()\n")

	b := &Builder{Root: dir}
	obs := fileObserver("sec", 0)
	changed := map[string]bool{
		detect.FileKey("auth.py"):    true,
		detect.FileKey("src/db.py"):  true,
		detect.FileKey("README.md"):  true, // not matched by **/*.py
		detect.ConversationKey:       true, // observer has no conversation watch
	}

	content, err := b.Build(obs, changed)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !strings.Contains(content, "## Files") {
		t.Error("missing files section")
	}
	if !strings.Contains(content, "### auth.py") || !strings.Contains(content, "password = 'hunter2'") {
		t.Error("matched file content missing")
	}
	if !strings.Contains(content, "### src/db.py") {
		t.Error("nested matched file missing")
	}
	if strings.Contains(content, "README.md") {
		t.Error("unmatched path leaked into content")
	}
	if strings.Contains(content, "## Conversation") {
		t.Error("file-only observer must not see the conversation")
	}
}

func TestBuilder_FileTruncation(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "big.py", strings.Repeat("x = 1\n", 20000))

	b := &Builder{Root: dir}
	content, err := b.Build(fileObserver("sec", 0), map[string]bool{detect.FileKey("big.py"): true})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !strings.Contains(content, "(truncated)") {
		t.Error("oversized file should be truncated")
	}
	if len(content) > maxFileBytes+1000 {
		t.Errorf("content length %d far exceeds the per-file cap", len(content))
	}
}

func TestBuilder_UnreadableFileNoted(t *testing.T) {
	b := &Builder{Root: t.TempDir()}
	content, err := b.Build(fileObserver("sec", 0), map[string]bool{detect.FileKey("gone.py"): true})
	if err != nil {
		t.Fatalf("unreadable file must not fail the unit: %v", err)
	}
	if !strings.Contains(content, "unreadable") {
		t.Error("missing unreadable note")
	}
}

func TestBuilder_ConversationSection(t *testing.T) {
	msgs := []session.Message{
		{Role: "user", Content: "fix the login bug"},
		{Role: "assistant", Content: "on it"},
		{Role: "tool", Content: "grep auth.py"},
	}
	b := &Builder{Root: t.TempDir(), Messages: msgs}

	obs := bundle.ObserverConfig{
		Name:    "conv",
		Watch:   []bundle.WatchTarget{{Type: bundle.WatchConversation, IncludeToolCalls: true, IncludeReasoning: true}},
		Enabled: true,
	}
	content, err := b.Build(obs, map[string]bool{detect.ConversationKey: true})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !strings.Contains(content, "## Conversation") {
		t.Error("missing conversation section")
	}
	if !strings.Contains(content, "[user] fix the login bug") {
		t.Error("missing user message")
	}
	if !strings.Contains(content, "grep auth.py") {
		t.Error("tool call should be included when enabled")
	}
}

func TestBuilder_ExcludesToolCalls(t *testing.T) {
	msgs := []session.Message{
		{Role: "user", Content: "hello"},
		{Role: "tool", Content: "grep auth.py"},
	}
	b := &Builder{Root: t.TempDir(), Messages: msgs}

	obs := bundle.ObserverConfig{
		Name:    "conv",
		Watch:   []bundle.WatchTarget{{Type: bundle.WatchConversation, IncludeToolCalls: false, IncludeReasoning: true}},
		Enabled: true,
	}
	content, err := b.Build(obs, map[string]bool{detect.ConversationKey: true})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if strings.Contains(content, "grep auth.py") {
		t.Error("tool call leaked despite include_tool_calls false")
	}
}

func TestBuilder_RecentMessageWindow(t *testing.T) {
	var msgs []session.Message
	for i := 0; i < 30; i++ {
		msgs = append(msgs, session.Message{Role: "user", Content: strings.Repeat("m", i+1)})
	}
	b := &Builder{Root: t.TempDir(), Messages: msgs}

	obs := bundle.ObserverConfig{
		Name:    "conv",
		Watch:   []bundle.WatchTarget{{Type: bundle.WatchConversation, IncludeToolCalls: true, IncludeReasoning: true}},
		Enabled: true,
	}
	content, err := b.Build(obs, map[string]bool{detect.ConversationKey: true})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if got := strings.Count(content, "[user]"); got != maxRecentMessages {
		t.Errorf("expected the last %d messages, got %d", maxRecentMessages, got)
	}
	// The window keeps the newest messages.
	if !strings.Contains(content, strings.Repeat("m", 30)) {
		t.Error("newest message missing from window")
	}
}

func TestBuilder_NoContent(t *testing.T) {
	b := &Builder{Root: t.TempDir()}
	if _, err := b.Build(fileObserver("sec", 0), map[string]bool{detect.ConversationKey: true}); err == nil {
		t.Error("observer with nothing to review should error")
	}
}

func TestBuildPrompt(t *testing.T) {
	req := Request{
		Observer: bundle.ObserverConfig{Name: "security-auditor", Focus: "Find injection risks."},
		Content:  "## Files\n\n### db.py\n\n```\nq = \"SELECT \" + user\n```",
	}
	prompt := BuildPrompt(req)

	for _, want := range []string{"security-auditor", "Find injection risks.", "db.py", `"observations"`, `"resolved"`} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if strings.Contains(prompt, "Previously Reported Issues") {
		t.Error("no open observations, section should be absent")
	}
}
