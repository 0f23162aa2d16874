// Package main implements the vigil-dash interactive observation dashboard.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
)

// sessionDBPath returns the session database path from env or default.
func sessionDBPath() string {
	if v := os.Getenv("VIGIL_DB_PATH"); v != "" {
		return v
	}
	if v := os.Getenv("VIGIL_HOME"); v != "" {
		return filepath.Join(v, "session.db")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".vigil", "session.db")
}

func main() {
	p := tea.NewProgram(newModel(sessionDBPath()), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running dashboard: %v\n", err)
		os.Exit(1)
	}
}
