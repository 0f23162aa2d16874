// Package reconcile applies observer results to the observation store. Each
// observer's payload is applied in one transaction: either all of its new
// observations and resolutions land, or none do. A failed apply for one
// observer never blocks another's.
package reconcile

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"vigil/pkg/dispatch"
	"vigil/pkg/observation"
)

// Reconciler turns dispatch results into store mutations.
type Reconciler struct {
	store *observation.Store
}

// NewReconciler creates a reconciler over the given store.
func NewReconciler(store *observation.Store) *Reconciler {
	return &Reconciler{store: store}
}

// Apply writes every successful observer payload to the store. Findings that
// structurally duplicate an already-open observation, or an earlier finding in
// the same cycle, are skipped. Resolutions referencing missing or already
// resolved observations are logged and skipped; they never abort the
// transaction. Timed-out and failed units contribute nothing but still appear
// on the summary.
func (r *Reconciler) Apply(ctx context.Context, results []dispatch.Result, open []observation.Observation) (*Summary, error) {
	summary := NewSummary()

	seen := make(map[string]bool, len(open))
	for _, o := range open {
		seen[observationKey(o)] = true
	}

	for _, res := range results {
		outcome := ObserverOutcome{Observer: res.Observer, Status: res.Status, Elapsed: res.Elapsed}
		if res.Status != dispatch.StatusOK {
			outcome.Err = res.Err
			summary.Observers = append(summary.Observers, outcome)
			continue
		}

		created, resolved, err := r.applyOne(ctx, res, seen)
		if err != nil {
			outcome.Status = dispatch.StatusFailed
			outcome.Err = fmt.Errorf("apply %s: %w", res.Observer, err)
			log.Error().Str("observer", res.Observer).Err(err).Msg("apply failed, payload rolled back")
			summary.Observers = append(summary.Observers, outcome)
			continue
		}

		outcome.Created = len(created)
		outcome.Resolved = len(resolved)
		summary.Observers = append(summary.Observers, outcome)
		for _, o := range created {
			summary.Created = append(summary.Created, o)
			summary.BySeverity[o.Severity]++
		}
		summary.ResolvedIDs = append(summary.ResolvedIDs, resolved...)
	}
	return summary, nil
}

// applyOne applies a single observer payload atomically.
func (r *Reconciler) applyOne(ctx context.Context, res dispatch.Result, seen map[string]bool) ([]observation.Observation, []string, error) {
	tx, err := r.store.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	var created []observation.Observation
	for _, f := range res.Payload.Observations {
		key := findingKey(res.Observer, f)
		if seen[key] {
			log.Debug().Str("observer", res.Observer).Str("key", key).Msg("duplicate finding skipped")
			continue
		}

		obs, err := tx.Create(ctx, observation.CreateParams{
			Observer:   res.Observer,
			Content:    f.Content,
			Severity:   f.Severity,
			SourceType: sourceTypeOf(f.SourceRef),
			SourceRef:  f.SourceRef,
			Category:   f.Category,
			Suggestion: f.Suggestion,
		})
		if err != nil {
			return nil, nil, err
		}
		seen[key] = true
		created = append(created, *obs)
	}

	var resolvedIDs []string
	for _, resolution := range res.Payload.Resolved {
		if _, err := tx.Resolve(ctx, resolution.ID, resolution.Reason); err != nil {
			var notFound *observation.NotFoundError
			var alreadyResolved *observation.AlreadyResolvedError
			if errors.As(err, &notFound) || errors.As(err, &alreadyResolved) {
				log.Warn().Str("observer", res.Observer).Str("id", resolution.ID).Err(err).Msg("resolution skipped")
				continue
			}
			return nil, nil, err
		}
		resolvedIDs = append(resolvedIDs, resolution.ID)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return created, resolvedIDs, nil
}

// sourceTypeOf classifies a source reference.
func sourceTypeOf(ref string) observation.SourceType {
	switch {
	case ref == "":
		return observation.SourceUnknown
	case ref == "conversation" || strings.HasPrefix(ref, "conversation:"):
		return observation.SourceConversation
	default:
		return observation.SourceFile
	}
}

// findingKey builds the structural identity of a finding. Two findings with
// the same key describe the same issue even when their prose differs.
func findingKey(observer string, f dispatch.Finding) string {
	if f.SourceRef != "" {
		return strings.Join([]string{observer, "ref", f.SourceRef, string(f.Severity)}, ":")
	}
	if f.Category != "" {
		return strings.Join([]string{observer, "cat", f.Category, string(f.Severity)}, ":")
	}
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(f.Content))))
	return observer + ":content:" + hex.EncodeToString(sum[:8])
}

// observationKey is findingKey for an already-stored observation.
func observationKey(o observation.Observation) string {
	return findingKey(o.Observer, dispatch.Finding{
		Content:   o.Content,
		Severity:  o.Severity,
		SourceRef: o.SourceRef,
		Category:  o.Category,
	})
}
