// Package detail renders the patient flyout: identity, clinical notes,
// session history and alerts.
package detail

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/vitalwatch/monitor/internal/client"
	"github.com/vitalwatch/monitor/internal/status"
	"github.com/vitalwatch/monitor/internal/theme"
)

const (
	panelWidth = 72
	labelWidth = 14
	maxAlerts  = 8
)

var (
	stylePanel = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(theme.ColorBorder).
			Padding(0, 1)

	styleLabel = lipgloss.NewStyle().
			Foreground(theme.ColorDimmed).
			Width(labelWidth)

	styleValue = lipgloss.NewStyle().
			Foreground(theme.ColorBright)

	styleTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.ColorBright)

	styleSectionHeader = lipgloss.NewStyle().
				Bold(true).
				Foreground(theme.ColorDimmed)
)

// Model holds the state for the detail overlay.
type Model struct {
	Summary  status.Summary
	Phase    string
	Sessions []client.MonitoringSession
	Alerts   []client.Alert
	// Style is the glamour style used for the notes block.
	Style string
}

// New builds the overlay for one patient from a snapshot. Alerts are
// limited to those raised in the patient's sessions.
func New(sum status.Summary, phase string, sessions []client.MonitoringSession, alerts []client.Alert) Model {
	own := make(map[int]bool)
	var mine []client.MonitoringSession
	for _, s := range sessions {
		if s.PatientID == sum.Patient.ID {
			own[s.ID] = true
			mine = append(mine, s)
		}
	}
	var linked []client.Alert
	for _, a := range alerts {
		if own[a.SessionID] {
			linked = append(linked, a)
		}
	}
	sort.SliceStable(linked, func(i, j int) bool {
		return linked[i].Timestamp.After(linked[j].Timestamp)
	})
	return Model{Summary: sum, Phase: phase, Sessions: mine, Alerts: linked, Style: "dark"}
}

// View renders the detail panel.
func (m Model) View(now time.Time) string {
	return stylePanel.Width(panelWidth).Render(m.renderInner(now))
}

func (m Model) renderInner(now time.Time) string {
	var b strings.Builder
	p := m.Summary.Patient

	b.WriteString(styleTitle.Render("Patient: "+p.Name) + "\n")
	b.WriteString(strings.Repeat("─", panelWidth-4) + "\n")

	writeRow(&b, "ID", fmt.Sprintf("%d", p.ID))
	writeRow(&b, "Room", p.RoomNumber)
	writeRow(&b, "Age / Gender", fmt.Sprintf("%d / %s", p.Age, p.Gender))
	writeRow(&b, "Status", theme.LevelBadge(m.Summary.Level.String()))
	writeRow(&b, "Monitoring", lipgloss.NewStyle().Foreground(theme.PhaseColor(m.Phase)).Render(m.Phase))

	if notes := m.renderNotes(); notes != "" {
		b.WriteString("\n" + notes)
	}

	b.WriteString("\n")
	b.WriteString(styleSectionHeader.Render(fmt.Sprintf("Sessions (%d)", len(m.Sessions))) + "\n")
	if len(m.Sessions) == 0 {
		b.WriteString(theme.StyleDimmed.Render("  never monitored") + "\n")
	}
	for i := len(m.Sessions) - 1; i >= 0; i-- {
		s := m.Sessions[i]
		phase := "stopped"
		if s.IsActive() {
			phase = "active"
		}
		b.WriteString(fmt.Sprintf("  #%-5d %s  started %s\n",
			s.ID,
			lipgloss.NewStyle().Foreground(theme.PhaseColor(phase)).Width(8).Render(phase),
			formatAge(now, s.StartTime),
		))
	}

	b.WriteString("\n")
	b.WriteString(styleSectionHeader.Render(fmt.Sprintf("Alerts (%d)", len(m.Alerts))) + "\n")
	if len(m.Alerts) == 0 {
		b.WriteString(theme.StyleDimmed.Render("  none") + "\n")
	}
	for i, a := range m.Alerts {
		if i == maxAlerts {
			b.WriteString(theme.StyleDimmed.Render(fmt.Sprintf("  … %d older", len(m.Alerts)-maxAlerts)) + "\n")
			break
		}
		sev := lipgloss.NewStyle().Foreground(theme.SeverityColor(string(a.Severity))).Width(9).Render(string(a.Severity))
		ack := " "
		if a.Acknowledged {
			ack = "✓"
		}
		b.WriteString(fmt.Sprintf("  %s %s %s  %s\n", ack, sev, theme.StyleDimmed.Render(formatAge(now, a.Timestamp)), a.Message))
	}

	b.WriteString("\n")
	b.WriteString(theme.StyleDimmed.Render("[s] start  [x] stop  [esc] close"))
	return b.String()
}

// renderNotes renders the optional clinical fields as markdown.
func (m Model) renderNotes() string {
	p := m.Summary.Patient
	var md strings.Builder
	if p.Condition != nil && *p.Condition != "" {
		fmt.Fprintf(&md, "**Condition:** %s\n\n", *p.Condition)
	}
	if p.EmergencyContact != nil && *p.EmergencyContact != "" {
		fmt.Fprintf(&md, "**Emergency contact:** %s\n", *p.EmergencyContact)
	}
	if md.Len() == 0 {
		return ""
	}

	style := m.Style
	if style == "" {
		style = "dark"
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(panelWidth-6),
	)
	if err != nil {
		return md.String()
	}
	out, err := r.Render(md.String())
	if err != nil {
		return md.String()
	}
	return strings.Trim(out, "\n")
}

func writeRow(b *strings.Builder, label, value string) {
	b.WriteString(styleLabel.Render(label+":") + styleValue.Render(value) + "\n")
}

func formatAge(now, t time.Time) string {
	d := now.Sub(t)
	switch {
	case d < 0:
		return "just now"
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm %ds ago", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh %dm ago", int(d.Hours()), int(d.Minutes())%60)
	}
}
