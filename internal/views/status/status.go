// Package status renders the top status bar: sign-in state, freshness,
// feed health, dashboard counters and the countdown to the next poll.
package status

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/harmonica"
	"github.com/charmbracelet/lipgloss"

	"github.com/vitalwatch/monitor/internal/client"
	"github.com/vitalwatch/monitor/internal/poller"
	"github.com/vitalwatch/monitor/internal/theme"
)

// FPS is the countdown animation rate. The app schedules frames at this
// rate while the bar is visible.
const FPS = 10

const countdownWidth = 12

// Model holds the status bar state.
type Model struct {
	Width         int
	Authenticated bool
	Username      string
	// Stale is set when the caches are frozen after an authorization loss.
	Stale     bool
	Interval  time.Duration
	LastTick  time.Time
	Health    []poller.FeedHealth
	Stats     client.DashboardStats
	HasStats  bool
	Anomalies int
	Notice    string
	NoticeErr bool

	spring harmonica.Spring
	pos    float64
	vel    float64
}

// New creates a status bar model.
func New(interval time.Duration) Model {
	return Model{
		Interval: interval,
		spring:   harmonica.NewSpring(harmonica.FPS(FPS), 6.0, 1.0),
	}
}

// SetNotice shows a one-line message; isErr colors it as a failure.
func (m *Model) SetNotice(msg string, isErr bool) {
	m.Notice = msg
	m.NoticeErr = isErr
}

// Remaining returns the fraction of the poll interval still to go, in
// [0, 1]. It is 0 when no tick has completed yet.
func (m Model) Remaining(now time.Time) float64 {
	if m.Interval <= 0 || m.LastTick.IsZero() {
		return 0
	}
	left := m.Interval - now.Sub(m.LastTick)
	if left <= 0 {
		return 0
	}
	return float64(left) / float64(m.Interval)
}

// Animate advances the countdown spring one frame toward the remaining
// fraction.
func (m *Model) Animate(now time.Time) {
	m.pos, m.vel = m.spring.Update(m.pos, m.vel, m.Remaining(now))
}

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}
	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")

	parts := []string{m.renderAuth()}
	if m.HasStats {
		parts = append(parts, fmt.Sprintf("%d patients  %d active  %d unack",
			m.Stats.TotalPatients, m.Stats.ActiveSessions, m.Stats.UnacknowledgedAlerts))
		if m.Stats.SystemStatus != "" {
			parts = append(parts, "system: "+m.Stats.SystemStatus)
		}
	}
	if h := m.renderHealth(); h != "" {
		parts = append(parts, h)
	}
	if m.Anomalies > 0 {
		parts = append(parts, theme.StyleNotice.Render(fmt.Sprintf("⚠ %d integrity anomalies", m.Anomalies)))
	}
	if m.Authenticated {
		parts = append(parts, m.renderCountdown())
	}

	content := strings.Join(parts, sep)
	if m.Notice != "" {
		style := theme.StyleNotice
		if m.NoticeErr {
			style = theme.StyleError
		}
		content += "\n" + style.Render(m.Notice)
	}

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}

func (m Model) renderAuth() string {
	switch {
	case m.Authenticated:
		label := "● Signed in"
		if m.Username != "" {
			label += " as " + m.Username
		}
		return lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render(label)
	case m.Stale:
		return lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("○ Session expired, data is stale")
	default:
		return lipgloss.NewStyle().Foreground(theme.ColorDimmed).Render("○ Signed out")
	}
}

func (m Model) renderHealth() string {
	var out []string
	for _, h := range m.Health {
		if h.Status == poller.StatusHealthy {
			continue
		}
		out = append(out, lipgloss.NewStyle().Foreground(theme.HealthColor(string(h.Status))).Render(
			fmt.Sprintf("%s: %s", h.Feed, h.Status),
		))
	}
	return strings.Join(out, "  ")
}

func (m Model) renderCountdown() string {
	frac := m.pos
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	filled := int(frac*countdownWidth + 0.5)
	bar := lipgloss.NewStyle().Foreground(theme.ColorActive).Render(strings.Repeat("█", filled)) +
		theme.StyleDimmed.Render(strings.Repeat("░", countdownWidth-filled))
	last := "never"
	if !m.LastTick.IsZero() {
		last = m.LastTick.Format("15:04:05")
	}
	return fmt.Sprintf("sync %s %s", last, bar)
}
