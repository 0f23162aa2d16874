// Package hooks runs the trigger cycle: an event fires, changed watch targets
// are detected, matched observers execute, and their results reconcile into
// the observation store. Fingerprints advance only for targets that were
// actually inspected by observers that completed, so failed work re-triggers
// on the next cycle.
package hooks

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"vigil/pkg/bundle"
	"vigil/pkg/detect"
	"vigil/pkg/dispatch"
	"vigil/pkg/eventlog"
	"vigil/pkg/observation"
	"vigil/pkg/reconcile"
	"vigil/pkg/session"
)

// Event is one trigger firing: the event name, the session transcript at that
// moment, and the working tree to inspect.
type Event struct {
	Name     string
	Messages []session.Message
	WorkDir  string
}

// Runner owns one session's orchestration state and executes trigger cycles
// serially. Cycles for the same session must not overlap; the caller
// serializes them.
type Runner struct {
	cfg      *bundle.Config
	invoker  dispatch.Invoker
	obsStore *observation.Store
	fpStore  *detect.Store
	events   *eventlog.Log
}

// NewRunner wires a runner over the session database.
func NewRunner(cfg *bundle.Config, db *sql.DB, invoker dispatch.Invoker) *Runner {
	return &Runner{
		cfg:      cfg,
		invoker:  invoker,
		obsStore: observation.NewStore(db),
		fpStore:  detect.NewStore(db),
		events:   eventlog.NewLog(db),
	}
}

// Handles reports whether any configured hook listens for the event.
func (r *Runner) Handles(eventName string) bool {
	for _, h := range r.cfg.Hooks {
		if h.Trigger == eventName {
			return true
		}
	}
	return false
}

// Run executes one trigger cycle. A cycle with no changed targets returns an
// empty summary. The returned error reflects the on_timeout policy: under
// skip, unit failures live only on the summary; under fail, they surface here
// after every sibling has completed and applied.
func (r *Runner) Run(ctx context.Context, ev Event) (*reconcile.Summary, error) {
	if err := r.events.Append(ctx, eventlog.TypeCycleStart, "", "trigger="+ev.Name); err != nil {
		return nil, err
	}

	observers := r.cfg.EnabledObservers()
	detector := detect.NewDetector(r.fpStore, ev.WorkDir)
	changes, err := detector.Detect(ctx, observers, ev.Messages)
	if err != nil {
		return nil, fmt.Errorf("detect changes: %w", err)
	}
	if changes.Empty() {
		log.Debug().Str("trigger", ev.Name).Msg("no changed targets, cycle is a no-op")
		if err := r.events.Append(ctx, eventlog.TypeCycleComplete, "", "no changes"); err != nil {
			return nil, err
		}
		return reconcile.NewSummary(), nil
	}

	open, err := r.obsStore.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("load open observations: %w", err)
	}

	builder := &dispatch.Builder{Root: ev.WorkDir, Messages: ev.Messages}
	dispatcher := dispatch.NewDispatcher(r.invoker, builder)
	results := dispatcher.Run(ctx, observers, changes.Keys, open, r.cfg.Execution)

	reconciler := reconcile.NewReconciler(r.obsStore)
	summary, err := reconciler.Apply(ctx, results, open)
	if err != nil {
		return nil, fmt.Errorf("apply results: %w", err)
	}

	if err := r.commitFingerprints(ctx, observers, changes, summary); err != nil {
		return nil, err
	}
	r.logOutcomes(ctx, summary)

	detail := fmt.Sprintf("created=%d resolved=%d", len(summary.Created), len(summary.ResolvedIDs))
	if err := r.events.Append(ctx, eventlog.TypeCycleComplete, "", detail); err != nil {
		return nil, err
	}
	return summary, summary.Err(r.cfg.Execution.OnTimeout == bundle.TimeoutFail)
}

// commitFingerprints advances the fingerprints of inspected targets, except
// targets watched by an observer that timed out or failed. Those stay at
// their previous value so the same change fires again next cycle.
func (r *Runner) commitFingerprints(ctx context.Context, observers []bundle.ObserverConfig, changes *detect.Changes, summary *reconcile.Summary) error {
	failed := make(map[string]bool)
	for _, o := range summary.Failures() {
		failed[o.Observer] = true
	}

	commit := make(map[string]detect.Fingerprint, len(changes.Fingerprints))
	for key, fp := range changes.Fingerprints {
		if changes.Keys[key] && r.retainedByFailure(observers, failed, key) {
			log.Debug().Str("key", key).Msg("fingerprint held back for re-trigger")
			continue
		}
		commit[key] = fp
	}
	if err := r.fpStore.Commit(ctx, commit); err != nil {
		return fmt.Errorf("commit fingerprints: %w", err)
	}
	return nil
}

// retainedByFailure reports whether a changed key is watched by any failed
// observer.
func (r *Runner) retainedByFailure(observers []bundle.ObserverConfig, failed map[string]bool, key string) bool {
	if len(failed) == 0 {
		return false
	}
	single := map[string]bool{key: true}
	for _, obs := range observers {
		if failed[obs.Name] && detect.Matches(obs.Watch, single) {
			return true
		}
	}
	return false
}

func (r *Runner) logOutcomes(ctx context.Context, summary *reconcile.Summary) {
	for _, o := range summary.Observers {
		var eventType, detail string
		switch o.Status {
		case dispatch.StatusOK:
			eventType = eventlog.TypeObserverOK
			detail = fmt.Sprintf("created=%d resolved=%d elapsed=%s", o.Created, o.Resolved, o.Elapsed.Round(time.Millisecond))
		case dispatch.StatusTimeout:
			eventType = eventlog.TypeTimeout
			detail = o.Err.Error()
		default:
			eventType = eventlog.TypeObserverFail
			detail = o.Err.Error()
		}
		if err := r.events.Append(ctx, eventType, o.Observer, detail); err != nil {
			log.Warn().Str("observer", o.Observer).Err(err).Msg("event log append failed")
		}
	}
}
