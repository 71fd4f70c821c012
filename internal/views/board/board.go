// Package board renders the patient board: one row per patient, most
// urgent first.
package board

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/vitalwatch/monitor/internal/status"
	"github.com/vitalwatch/monitor/internal/theme"
)

// Row is one patient line.
type Row struct {
	Summary status.Summary
	Phase   string
}

// Model holds the board state.
type Model struct {
	Width    int
	Stale    bool
	rows     []Row
	selected int
}

// New creates an empty board.
func New() Model {
	return Model{}
}

// SetRows replaces the rows, keeping the cursor on the same patient when
// it is still present.
func (m *Model) SetRows(rows []Row) {
	prev, hadPrev := m.Selected()
	m.rows = rows
	m.selected = 0
	if !hadPrev {
		return
	}
	for i, r := range rows {
		if r.Summary.Patient.ID == prev.Summary.Patient.ID {
			m.selected = i
			return
		}
	}
}

func (m Model) Len() int { return len(m.rows) }

// Selected returns the row under the cursor.
func (m Model) Selected() (Row, bool) {
	if m.selected < 0 || m.selected >= len(m.rows) {
		return Row{}, false
	}
	return m.rows[m.selected], true
}

// Move shifts the cursor by delta, wrapping at both ends.
func (m *Model) Move(delta int) {
	n := len(m.rows)
	if n == 0 {
		return
	}
	m.selected = ((m.selected+delta)%n + n) % n
}

// View renders the board.
func (m Model) View(now time.Time) string {
	header := theme.StyleHeader.Render(fmt.Sprintf("  %-6s %-22s %4s  %-11s %-10s %-9s %s",
		"ROOM", "PATIENT", "AGE", "STATUS", "SESSION", "SINCE", "ALERTS"))
	lines := []string{header}

	if len(m.rows) == 0 {
		lines = append(lines, theme.StyleDimmed.Render("  No patients"))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	for i, r := range m.rows {
		prefix := "  "
		if i == m.selected {
			prefix = "> "
		}
		lines = append(lines, prefix+m.renderRow(r, now))
	}
	if m.Stale {
		lines = append(lines, theme.StyleNotice.Render("  Showing last synced data; sign in to refresh."))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m Model) renderRow(r Row, now time.Time) string {
	s := r.Summary
	p := s.Patient

	phase := lipgloss.NewStyle().Foreground(theme.PhaseColor(r.Phase)).Width(10).
		Render(theme.PhaseGlyph(r.Phase) + " " + r.Phase)

	since := "-"
	if s.Active != nil && r.Phase == "active" {
		since = formatAge(now.Sub(s.Active.StartTime))
	}

	alerts := theme.StyleDimmed.Render("none")
	if s.AlertCount() > 0 {
		var parts []string
		if s.Critical > 0 {
			parts = append(parts, lipgloss.NewStyle().Foreground(theme.ColorCritical).Render(fmt.Sprintf("%dC", s.Critical)))
		}
		if s.High > 0 {
			parts = append(parts, lipgloss.NewStyle().Foreground(theme.ColorHigh).Render(fmt.Sprintf("%dH", s.High)))
		}
		if s.Moderate > 0 {
			parts = append(parts, lipgloss.NewStyle().Foreground(theme.ColorModerate).Render(fmt.Sprintf("%dM", s.Moderate)))
		}
		alerts = strings.Join(parts, " ")
		if s.Latest != nil {
			alerts += theme.StyleDimmed.Render("  " + truncate(s.Latest.Message, 32))
		}
	}

	return fmt.Sprintf("%-6s %-22s %4d  %s %s %-9s %s",
		truncate(p.RoomNumber, 6),
		truncate(p.Name, 22),
		p.Age,
		theme.LevelBadge(s.Level.String()),
		phase,
		since,
		alerts,
	)
}

func formatAge(d time.Duration) string {
	switch {
	case d < 0:
		return "0s"
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
