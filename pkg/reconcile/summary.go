package reconcile

import (
	"fmt"
	"strings"
	"time"

	"vigil/pkg/dispatch"
	"vigil/pkg/observation"
)

// ObserverOutcome records how one dispatched observer unit ended.
type ObserverOutcome struct {
	Observer string
	Status   dispatch.Status
	Created  int
	Resolved int
	Elapsed  time.Duration
	Err      error
}

// Summary is the outcome of one reconciliation cycle.
type Summary struct {
	Created     []observation.Observation
	ResolvedIDs []string
	BySeverity  map[observation.Severity]int
	Observers   []ObserverOutcome
}

// NewSummary returns an empty summary.
func NewSummary() *Summary {
	return &Summary{BySeverity: make(map[observation.Severity]int)}
}

// Failures returns the outcomes of units that did not complete cleanly.
func (s *Summary) Failures() []ObserverOutcome {
	var out []ObserverOutcome
	for _, o := range s.Observers {
		if o.Status != dispatch.StatusOK {
			out = append(out, o)
		}
	}
	return out
}

// Err aggregates unit failures under the fail timeout policy. Under skip it
// always returns nil: failed and timed-out units were already recorded on the
// summary and deliberately do not fail the cycle.
func (s *Summary) Err(failOnTimeout bool) error {
	if !failOnTimeout {
		return nil
	}
	failures := s.Failures()
	if len(failures) == 0 {
		return nil
	}
	names := make([]string, len(failures))
	for i, f := range failures {
		names[i] = fmt.Sprintf("%s (%s)", f.Observer, f.Status)
	}
	return fmt.Errorf("%d observer(s) did not complete: %s", len(failures), strings.Join(names, ", "))
}

// Format renders the summary as terminal text: totals, severity counts, and
// the highest-severity new observations.
func (s *Summary) Format() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "%d new, %d resolved", len(s.Created), len(s.ResolvedIDs))
	if parts := s.severityParts(); len(parts) > 0 {
		fmt.Fprintf(&sb, " (%s)", strings.Join(parts, ", "))
	}
	sb.WriteString("\n")

	for _, top := range s.topCreated(3) {
		ref := top.SourceRef
		if ref == "" {
			ref = string(top.SourceType)
		}
		fmt.Fprintf(&sb, "  [%s] %s: %s (%s)\n", top.Severity, top.Observer, top.Content, ref)
	}

	for _, f := range s.Failures() {
		fmt.Fprintf(&sb, "  ! %s %s after %s\n", f.Observer, f.Status, f.Elapsed.Round(time.Millisecond))
	}
	return sb.String()
}

func (s *Summary) severityParts() []string {
	var parts []string
	for _, sev := range observation.Severities {
		if n := s.BySeverity[sev]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, sev))
		}
	}
	return parts
}

// topCreated returns up to n new observations, most severe first, preserving
// creation order within a severity.
func (s *Summary) topCreated(n int) []observation.Observation {
	out := make([]observation.Observation, 0, n)
	for _, sev := range observation.Severities {
		for _, o := range s.Created {
			if o.Severity != sev {
				continue
			}
			out = append(out, o)
			if len(out) == n {
				return out
			}
		}
	}
	return out
}
