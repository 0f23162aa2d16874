package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"vigil/pkg/observation"
	"vigil/pkg/reconcile"
)

// Severity colors shared with vigil-dash.
var severityColors = map[observation.Severity]lipgloss.Color{
	observation.SeverityCritical: lipgloss.Color("9"),
	observation.SeverityHigh:     lipgloss.Color("208"),
	observation.SeverityMedium:   lipgloss.Color("11"),
	observation.SeverityLow:      lipgloss.Color("12"),
	observation.SeverityInfo:     lipgloss.Color("8"),
}

// colorEnabled reports whether stdout is a terminal that should get styling.
func colorEnabled() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// styledSeverity renders a severity label, colored on terminals.
func styledSeverity(sev observation.Severity) string {
	if !colorEnabled() {
		return string(sev)
	}
	return lipgloss.NewStyle().Foreground(severityColors[sev]).Render(string(sev))
}

// renderSummary formats a cycle summary for the terminal.
func renderSummary(s *reconcile.Summary) string {
	plain := s.Format()
	if !colorEnabled() {
		return plain
	}
	for _, sev := range observation.Severities {
		plain = strings.ReplaceAll(plain, "["+string(sev)+"]", "["+styledSeverity(sev)+"]")
	}
	return plain
}

// formatObservationsTable renders observations as a fixed-width table.
func formatObservationsTable(results []observation.Observation) string {
	if len(results) == 0 {
		return "No observations found.\n"
	}

	const maxContent = 60

	var b strings.Builder
	fmt.Fprintf(&b, "%-10s %-10s %-14s %-20s %-62s %s\n", "ID", "SEVERITY", "STATUS", "OBSERVER", "CONTENT", "SOURCE")
	for _, o := range results {
		content := truncateContent(strings.ReplaceAll(o.Content, "\n", " "), maxContent)
		// Plain severity here: ANSI codes would break the column alignment.
		fmt.Fprintf(&b, "%-10s %-10s %-14s %-20s %-62s %s\n",
			shortID(o.ID), o.Severity, o.Status, o.Observer, content, o.SourceRef)
	}
	return b.String()
}

// truncateContent truncates s to maxLen runes, appending "..." if truncated.
// Cutting on rune boundaries keeps multi-byte content intact.
func truncateContent(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}

// shortID returns the first uuid segment, enough to disambiguate in a session.
func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}
