package main

import (
	"github.com/charmbracelet/lipgloss"

	"vigil/pkg/observation"
)

// Theme defines the visual styling for the vigil dashboard.
type Theme struct {
	Primary  lipgloss.Color
	Success  lipgloss.Color
	Warning  lipgloss.Color
	Error    lipgloss.Color
	Muted    lipgloss.Color
	Severity map[observation.Severity]lipgloss.Color
}

// DefaultTheme returns the default theme for vigil dash.
func DefaultTheme() Theme {
	return Theme{
		Primary: lipgloss.Color("12"),  // Blue
		Success: lipgloss.Color("10"),  // Green
		Warning: lipgloss.Color("11"),  // Yellow
		Error:   lipgloss.Color("9"),   // Red
		Muted:   lipgloss.Color("240"), // Gray
		Severity: map[observation.Severity]lipgloss.Color{
			observation.SeverityCritical: lipgloss.Color("9"),
			observation.SeverityHigh:     lipgloss.Color("208"),
			observation.SeverityMedium:   lipgloss.Color("11"),
			observation.SeverityLow:      lipgloss.Color("12"),
			observation.SeverityInfo:     lipgloss.Color("8"),
		},
	}
}

// severityStyle returns a foreground style for the given severity.
func (t Theme) severityStyle(sev observation.Severity) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Severity[sev])
}
