package hooks

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"vigil/pkg/bundle"
	"vigil/pkg/dispatch"
	"vigil/pkg/eventlog"
	"vigil/pkg/observation"
	"vigil/pkg/session"
)

// scriptedInvoker returns canned output per observer name and records calls.
type scriptedInvoker struct {
	outputs map[string]string
	errs    map[string]error
	calls   []string
}

func (s *scriptedInvoker) Invoke(_ context.Context, req dispatch.Request) (string, error) {
	s.calls = append(s.calls, req.Observer.Name)
	if err := s.errs[req.Observer.Name]; err != nil {
		return "", err
	}
	out, ok := s.outputs[req.Observer.Name]
	if !ok {
		out = `{"observations": []}`
	}
	return out, nil
}

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	if _, err := db.Exec(observation.SchemaDDL); err != nil {
		t.Fatalf("exec schema: %v", err)
	}
	return db
}

func testConfig(t *testing.T, yaml string) *bundle.Config {
	t.Helper()
	cfg, err := bundle.Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	return cfg
}

const singleObserverYAML = `
observers:
  - name: security-auditor
    focus: Find security issues.
    watch:
      - type: files
        paths: ["**/*.py"]
`

func writeWorkDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func TestRunner_Handles(t *testing.T) {
	r := NewRunner(testConfig(t, singleObserverYAML), setupDB(t), &scriptedInvoker{})
	if !r.Handles(bundle.DefaultTrigger) {
		t.Error("default hook should handle the default trigger")
	}
	if r.Handles("session:start") {
		t.Error("unconfigured trigger must not be handled")
	}
}

func TestRunner_FullCycle(t *testing.T) {
	db := setupDB(t)
	inv := &scriptedInvoker{outputs: map[string]string{
		"security-auditor": `{"observations": [{"content": "hardcoded password", "severity": "critical", "source_ref": "auth.py"}]}`,
	}}
	r := NewRunner(testConfig(t, singleObserverYAML), db, inv)
	dir := writeWorkDir(t, map[string]string{"auth.py": "password = 'hunter2'\n"})
	ctx := context.Background()

	summary, err := r.Run(ctx, Event{Name: bundle.DefaultTrigger, WorkDir: dir})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(summary.Created) != 1 {
		t.Fatalf("expected 1 observation, got %d", len(summary.Created))
	}

	store := observation.NewStore(db)
	open, err := store.Open(ctx)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if len(open) != 1 || open[0].Severity != observation.SeverityCritical {
		t.Errorf("stored observation wrong: %+v", open)
	}

	// Unchanged tree: next cycle is a no-op.
	second, err := r.Run(ctx, Event{Name: bundle.DefaultTrigger, WorkDir: dir})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(second.Created) != 0 || len(second.Observers) != 0 {
		t.Errorf("unchanged tree should not dispatch, got %+v", second.Observers)
	}
	if len(inv.calls) != 1 {
		t.Errorf("invoker called %d times, want 1", len(inv.calls))
	}
}

func TestRunner_FailedObserverRetriggers(t *testing.T) {
	db := setupDB(t)
	inv := &scriptedInvoker{errs: map[string]error{
		"security-auditor": errors.New("claude exited 1"),
	}}
	r := NewRunner(testConfig(t, singleObserverYAML), db, inv)
	dir := writeWorkDir(t, map[string]string{"auth.py": "x = 1\n"})
	ctx := context.Background()

	first, err := r.Run(ctx, Event{Name: bundle.DefaultTrigger, WorkDir: dir})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if len(first.Failures()) != 1 {
		t.Fatalf("expected 1 failure, got %d", len(first.Failures()))
	}

	// The file did not change, but the failed observer's fingerprint was held
	// back, so the same change fires again.
	inv.errs = nil
	second, err := r.Run(ctx, Event{Name: bundle.DefaultTrigger, WorkDir: dir})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(second.Observers) != 1 || second.Observers[0].Status != dispatch.StatusOK {
		t.Errorf("failed observer should re-run on next cycle: %+v", second.Observers)
	}

	// Third cycle: work succeeded, fingerprint committed, no re-trigger.
	third, err := r.Run(ctx, Event{Name: bundle.DefaultTrigger, WorkDir: dir})
	if err != nil {
		t.Fatalf("third run: %v", err)
	}
	if len(third.Observers) != 0 {
		t.Errorf("committed fingerprint must not re-trigger: %+v", third.Observers)
	}
}

func TestRunner_TimeoutPolicyFail(t *testing.T) {
	cfg := testConfig(t, singleObserverYAML+`
execution:
  on_timeout: fail
`)
	inv := &scriptedInvoker{errs: map[string]error{
		"security-auditor": errors.New("claude exited 1"),
	}}
	r := NewRunner(cfg, setupDB(t), inv)
	dir := writeWorkDir(t, map[string]string{"auth.py": "x = 1\n"})

	summary, err := r.Run(context.Background(), Event{Name: bundle.DefaultTrigger, WorkDir: dir})
	if err == nil {
		t.Fatal("fail policy must surface unit failures")
	}
	if summary == nil || len(summary.Failures()) != 1 {
		t.Errorf("summary should still report the cycle: %+v", summary)
	}
}

func TestRunner_SiblingAppliesDespiteFailure(t *testing.T) {
	cfg := testConfig(t, `
observers:
  - name: broken
    focus: a
    watch:
      - type: files
        paths: ["**/*.py"]
  - name: healthy
    focus: b
    watch:
      - type: files
        paths: ["**/*.py"]
`)
	db := setupDB(t)
	inv := &scriptedInvoker{
		errs: map[string]error{"broken": errors.New("boom")},
		outputs: map[string]string{
			"healthy": `{"observations": [{"content": "x", "severity": "low", "source_ref": "auth.py"}]}`,
		},
	}
	r := NewRunner(cfg, db, inv)
	dir := writeWorkDir(t, map[string]string{"auth.py": "x = 1\n"})

	summary, err := r.Run(context.Background(), Event{Name: bundle.DefaultTrigger, WorkDir: dir})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(summary.Created) != 1 {
		t.Errorf("healthy observer's payload must apply, got %d created", len(summary.Created))
	}
}

func TestRunner_EmptyTranscriptIsNoOp(t *testing.T) {
	cfg := testConfig(t, `
observers:
  - name: conversation-reviewer
    focus: Review the discussion.
    watch:
      - type: conversation
`)
	inv := &scriptedInvoker{}
	r := NewRunner(cfg, setupDB(t), inv)
	dir := t.TempDir()
	ctx := context.Background()

	// No transcript yet: the conversation target has nothing to review, so
	// the cycle must be a no-op rather than dispatching an observer that can
	// only fail and hold its fingerprint back forever.
	for i := 0; i < 2; i++ {
		summary, err := r.Run(ctx, Event{Name: bundle.DefaultTrigger, WorkDir: dir})
		if err != nil {
			t.Fatalf("run %d: %v", i+1, err)
		}
		if len(summary.Observers) != 0 {
			t.Fatalf("run %d dispatched with empty transcript: %+v", i+1, summary.Observers)
		}
	}
	if len(inv.calls) != 0 {
		t.Errorf("invoker called %d times, want 0", len(inv.calls))
	}

	// Once messages exist the conversation target fires normally.
	summary, err := r.Run(ctx, Event{
		Name:     bundle.DefaultTrigger,
		WorkDir:  dir,
		Messages: []session.Message{{Role: "user", Content: "fix the login bug"}},
	})
	if err != nil {
		t.Fatalf("run with transcript: %v", err)
	}
	if len(summary.Observers) != 1 || summary.Observers[0].Status != dispatch.StatusOK {
		t.Errorf("non-empty transcript should dispatch: %+v", summary.Observers)
	}
}

func TestRunner_EventLogWritten(t *testing.T) {
	db := setupDB(t)
	inv := &scriptedInvoker{}
	r := NewRunner(testConfig(t, singleObserverYAML), db, inv)
	dir := writeWorkDir(t, map[string]string{"auth.py": "x = 1\n"})
	ctx := context.Background()

	if _, err := r.Run(ctx, Event{Name: bundle.DefaultTrigger, WorkDir: dir}); err != nil {
		t.Fatalf("run: %v", err)
	}

	events, err := eventlog.NewLog(db).Query(ctx, eventlog.QueryOpts{})
	if err != nil {
		t.Fatalf("query events: %v", err)
	}
	var sawStart, sawComplete, sawObserver bool
	for _, e := range events {
		switch e.Type {
		case eventlog.TypeCycleStart:
			sawStart = true
		case eventlog.TypeCycleComplete:
			sawComplete = true
		case eventlog.TypeObserverOK:
			sawObserver = e.Observer == "security-auditor"
		}
	}
	if !sawStart || !sawComplete || !sawObserver {
		t.Errorf("missing lifecycle events: start=%v complete=%v observer=%v", sawStart, sawComplete, sawObserver)
	}
}
