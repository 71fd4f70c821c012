// Package debug provides the scrollable sync log overlay: one line per
// poll tick, hint, sign-in change and action failure.
package debug

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/vitalwatch/monitor/internal/poller"
	"github.com/vitalwatch/monitor/internal/theme"
)

const maxEntries = 200

// Entry kinds.
const (
	KindTick   = "tick"
	KindHint   = "hint"
	KindAuth   = "auth"
	KindAction = "act"
	KindError  = "err"
)

// Entry is a single log line.
type Entry struct {
	Time    time.Time
	Kind    string
	Message string
}

// Model holds the log buffer and scroll position.
type Model struct {
	Entries []Entry
	Offset  int // lines scrolled up from the newest entry
	now     func() time.Time
}

// New creates an empty debug model.
func New() Model {
	return Model{now: time.Now}
}

// Add appends an entry, trims the buffer and jumps back to the newest line.
func (m *Model) Add(kind, message string) {
	now := time.Now
	if m.now != nil {
		now = m.now
	}
	m.Entries = append(m.Entries, Entry{Time: now(), Kind: kind, Message: message})
	if len(m.Entries) > maxEntries {
		m.Entries = m.Entries[len(m.Entries)-maxEntries:]
	}
	m.Offset = 0
}

// AddReport logs a finished poll tick.
func (m *Model) AddReport(r poller.Report) {
	if r.Skipped {
		m.Add(KindTick, "skipped: not signed in")
		return
	}
	var parts []string
	for _, res := range r.Results {
		parts = append(parts, fmt.Sprintf("%s=%s", res.Feed, res.Outcome))
	}
	msg := fmt.Sprintf("#%d %s (%s)", r.Seq, strings.Join(parts, " "), r.Finished.Sub(r.Started).Round(time.Millisecond))
	kind := KindTick
	if r.AuthLost {
		kind = KindAuth
		msg += " authorization lost"
	} else if r.Err() != nil {
		kind = KindError
	}
	m.Add(kind, msg)
}

// ScrollUp moves the viewport toward older entries.
func (m *Model) ScrollUp(n int) {
	m.Offset = min(m.Offset+n, max(len(m.Entries)-1, 0))
}

// ScrollDown moves the viewport toward newer entries.
func (m *Model) ScrollDown(n int) {
	m.Offset = max(m.Offset-n, 0)
}

func panelStyle(width int) lipgloss.Style {
	return lipgloss.NewStyle().
		Width(width).
		Padding(1, 2).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder)
}

// View renders the log as an overlay panel.
func (m Model) View(width, height int) string {
	innerW := max(width-4, 20)
	visible := max(height-6, 3)

	title := theme.StyleHeader.Render(" SYNC LOG ")
	help := theme.StyleDimmed.Render(fmt.Sprintf("j/k:scroll  esc:close  %d entries", len(m.Entries)))

	if len(m.Entries) == 0 {
		body := theme.StyleDimmed.Render("  Nothing logged yet.")
		return panelStyle(innerW).Render(lipgloss.JoinVertical(lipgloss.Left, title, "", body, "", help))
	}

	end := max(len(m.Entries)-m.Offset, 0)
	start := max(end-visible, 0)

	lines := make([]string, 0, end-start)
	for _, e := range m.Entries[start:end] {
		ts := theme.StyleDimmed.Render(e.Time.Format("15:04:05.000"))
		kind := lipgloss.NewStyle().Foreground(kindColor(e.Kind)).Width(5).Render(e.Kind)
		msg := e.Message
		if limit := innerW - 22; limit > 3 && len(msg) > limit {
			msg = msg[:limit-3] + "..."
		}
		lines = append(lines, fmt.Sprintf("%s %s %s", ts, kind, msg))
	}

	more := ""
	if m.Offset > 0 {
		more = theme.StyleDimmed.Render(fmt.Sprintf(" ↓ %d newer", m.Offset))
	}
	return panelStyle(innerW).Render(lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(lines, "\n"), more, help))
}

func kindColor(kind string) lipgloss.Color {
	switch kind {
	case KindTick:
		return theme.ColorActive
	case KindHint:
		return theme.ColorStarting
	case KindAuth:
		return theme.ColorWarning
	case KindError:
		return theme.ColorDanger
	default:
		return theme.ColorDimmed
	}
}
