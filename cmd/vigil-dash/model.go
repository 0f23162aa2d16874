package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"vigil/pkg/observation"
)

// tickMsg is sent on every refresh interval.
type tickMsg time.Time

// snapshotMsg carries a fetched snapshot; Err is set when the fetch failed
// (for instance before the first cycle has created the database).
type snapshotMsg struct {
	Snapshot *snapshot
	Err      error
}

// tickCmd returns a command that sends a tickMsg after 2 seconds.
func tickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// fetchCmd returns a tea.Cmd that reads a fresh snapshot.
func fetchCmd(dbPath string, status observation.Status) tea.Cmd {
	return func() tea.Msg {
		snap, err := fetchSnapshot(context.Background(), dbPath, status)
		return snapshotMsg{Snapshot: snap, Err: err}
	}
}

// statusCycle is the order the status filter steps through on "s".
var statusCycle = []observation.Status{
	observation.StatusOpen,
	observation.StatusAcknowledged,
	observation.StatusResolved,
	"", // all
}

// Model is the Bubble Tea model for the vigil dashboard.
type Model struct {
	dbPath string
	theme  Theme

	table        table.Model
	snap         *snapshot
	statusFilter int
	width        int
	height       int
	err          error
}

// newModel creates a new Model showing open observations.
func newModel(dbPath string) Model {
	columns := []table.Column{
		{Title: "ID", Width: 8},
		{Title: "Severity", Width: 9},
		{Title: "Status", Width: 13},
		{Title: "Observer", Width: 20},
		{Title: "Content", Width: 56},
		{Title: "Source", Width: 24},
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(15),
	)
	styles := table.DefaultStyles()
	styles.Selected = styles.Selected.Foreground(lipgloss.Color("0")).Background(lipgloss.Color("12"))
	t.SetStyles(styles)

	return Model{dbPath: dbPath, theme: DefaultTheme(), table: t}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		fetchCmd(m.dbPath, m.currentStatus()),
		watchSessionDB(m.dbPath),
		tickCmd(),
	)
}

func (m Model) currentStatus() observation.Status {
	return statusCycle[m.statusFilter]
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, fetchCmd(m.dbPath, m.currentStatus())
		case "s":
			m.statusFilter = (m.statusFilter + 1) % len(statusCycle)
			return m, fetchCmd(m.dbPath, m.currentStatus())
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetHeight(maxInt(5, m.height-8))

	case snapshotMsg:
		m.err = msg.Err
		if msg.Snapshot != nil {
			m.snap = msg.Snapshot
			m.table.SetRows(observationRows(msg.Snapshot.Observations))
		}

	case fsChangeMsg:
		return m, tea.Batch(fetchCmd(m.dbPath, m.currentStatus()), watchSessionDB(m.dbPath))

	case tickMsg:
		return m, tea.Batch(fetchCmd(m.dbPath, m.currentStatus()), tickCmd())
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// observationRows converts observations into table rows.
func observationRows(observations []observation.Observation) []table.Row {
	rows := make([]table.Row, 0, len(observations))
	for _, o := range observations {
		content := strings.ReplaceAll(o.Content, "\n", " ")
		rows = append(rows, table.Row{
			shortID(o.ID),
			string(o.Severity),
			string(o.Status),
			o.Observer,
			content,
			o.SourceRef,
		})
	}
	return rows
}

// shortID returns the first uuid segment.
func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.headerView())
	b.WriteString("\n\n")
	b.WriteString(m.table.View())
	b.WriteString("\n\n")
	b.WriteString(m.footerView())
	return b.String()
}

// headerView renders the title line and open counts by severity.
func (m Model) headerView() string {
	title := lipgloss.NewStyle().Bold(true).Foreground(m.theme.Primary).Render("vigil")

	filter := "all"
	if s := m.currentStatus(); s != "" {
		filter = string(s)
	}
	line := fmt.Sprintf("%s  showing: %s", title, filter)

	if m.snap != nil {
		var parts []string
		for _, sev := range observation.Severities {
			if n := m.snap.BySeverity[sev]; n > 0 {
				parts = append(parts, m.theme.severityStyle(sev).Render(fmt.Sprintf("%d %s", n, sev)))
			}
		}
		if len(parts) > 0 {
			line += "  |  open: " + strings.Join(parts, "  ")
		}
	}
	return line
}

// footerView renders recent cycle events and the key help line.
func (m Model) footerView() string {
	muted := lipgloss.NewStyle().Foreground(m.theme.Muted)

	var b strings.Builder
	if m.err != nil {
		b.WriteString(lipgloss.NewStyle().Foreground(m.theme.Error).Render(m.err.Error()))
		b.WriteString("\n")
	}
	if m.snap != nil {
		for _, e := range m.snap.Events {
			line := fmt.Sprintf("%s %s", e.CreatedAt.Local().Format("15:04:05"), e.Type)
			if e.Observer != "" {
				line += " " + e.Observer
			}
			if e.Detail != "" {
				line += "  " + e.Detail
			}
			b.WriteString(muted.Render(line))
			b.WriteString("\n")
		}
	}
	b.WriteString(muted.Render("j/k: move  s: cycle status filter  r: refresh  q: quit"))
	return b.String()
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
