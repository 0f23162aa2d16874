// Package observation defines the observation data model and its SQLite-backed
// store. An observation is a single finding reported by an observer: free-text
// content, a severity, a source reference, and a lifecycle status that moves
// open → acknowledged → resolved (or open → resolved directly).
package observation

import (
	"fmt"
	"time"
)

// Severity classifies how urgent an observation is.
type Severity string

// Severity levels, ordered by urgency (critical highest).
const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Severities lists all levels from most to least urgent.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo}

// Rank returns a sortable urgency rank; higher means more urgent.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// ParseSeverity validates a severity string from config or observer output.
func ParseSeverity(s string) (Severity, error) {
	switch Severity(s) {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo:
		return Severity(s), nil
	}
	return "", fmt.Errorf("unknown severity %q", s)
}

// Status is the lifecycle state of an observation.
type Status string

// Status values. Resolved is terminal: a resolved observation never returns
// to open or acknowledged; a recurrence is a new observation.
const (
	StatusOpen         Status = "open"
	StatusAcknowledged Status = "acknowledged"
	StatusResolved     Status = "resolved"
)

// ParseStatus validates a status string.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusOpen, StatusAcknowledged, StatusResolved:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// SourceType identifies what kind of content an observation refers to.
type SourceType string

// Source types.
const (
	SourceFile         SourceType = "file"
	SourceConversation SourceType = "conversation"
	SourceMixed        SourceType = "mixed"
	SourceUnknown      SourceType = "unknown"
)

// Observation is a stored finding. ID is assigned by the store on creation
// and never changes.
type Observation struct {
	ID             string     `json:"id"`
	Observer       string     `json:"observer"`
	Content        string     `json:"content"`
	Severity       Severity   `json:"severity"`
	Status         Status     `json:"status"`
	SourceType     SourceType `json:"source_type"`
	SourceRef      string     `json:"source_ref,omitempty"`
	Category       string     `json:"category,omitempty"`
	Suggestion     string     `json:"suggestion,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	ResolutionNote string     `json:"resolution_note,omitempty"`
}
