// Package theme provides the Lip Gloss palette and shared styles for the
// ward dashboard. It is a leaf package with no internal imports so every
// view can use it without cycles.
package theme

import "github.com/charmbracelet/lipgloss"

// Clinical level colors.
var (
	ColorCritical = lipgloss.Color("#dc2626")
	ColorHigh     = lipgloss.Color("#ea580c")
	ColorModerate = lipgloss.Color("#d97706")
	ColorStable   = lipgloss.Color("#16a34a")
	ColorUnknown  = lipgloss.Color("#9ca3af")
)

// Session phase colors.
var (
	ColorActive   = lipgloss.Color("#2563eb")
	ColorStarting = lipgloss.Color("#7c3aed")
	ColorStopping = lipgloss.Color("#854d0e")
	ColorIdle     = lipgloss.Color("#4b5563")
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorBg      = lipgloss.Color("#111827")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
)

// LevelColor returns the color for a clinical level name.
func LevelColor(level string) lipgloss.Color {
	switch level {
	case "critical":
		return ColorCritical
	case "high":
		return ColorHigh
	case "moderate":
		return ColorModerate
	case "stable":
		return ColorStable
	default:
		return ColorUnknown
	}
}

// SeverityColor colors a raw alert severity. Severities outside the known
// three render like moderate ones, matching how they count.
func SeverityColor(severity string) lipgloss.Color {
	switch severity {
	case "critical":
		return ColorCritical
	case "high":
		return ColorHigh
	default:
		return ColorModerate
	}
}

// PhaseColor returns the color for a session phase name.
func PhaseColor(phase string) lipgloss.Color {
	switch phase {
	case "active":
		return ColorActive
	case "starting":
		return ColorStarting
	case "stopping":
		return ColorStopping
	default:
		return ColorIdle
	}
}

// HealthColor returns the color for a feed health status.
func HealthColor(status string) lipgloss.Color {
	switch status {
	case "healthy":
		return ColorHealthy
	case "degraded":
		return ColorWarning
	case "failed":
		return ColorDanger
	default:
		return ColorDimmed
	}
}

// LevelBadge renders a fixed-width level badge.
func LevelBadge(level string) string {
	glyph := LevelGlyph(level)
	return lipgloss.NewStyle().
		Foreground(LevelColor(level)).
		Bold(level == "critical").
		Width(11).
		Render(glyph + " " + level)
}

// LevelGlyph returns a Unicode glyph for a clinical level.
func LevelGlyph(level string) string {
	switch level {
	case "critical":
		return "✗"
	case "high":
		return "▲"
	case "moderate":
		return "◆"
	case "stable":
		return "●"
	default:
		return "·"
	}
}

// PhaseGlyph returns a Unicode glyph for a session phase.
func PhaseGlyph(phase string) string {
	switch phase {
	case "active":
		return "◉"
	case "starting":
		return "◎"
	case "stopping":
		return "◌"
	default:
		return "○"
	}
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
			Foreground(ColorDimmed)

	StyleSelected = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleError = lipgloss.NewStyle().
			Foreground(ColorDanger)

	StyleNotice = lipgloss.NewStyle().
			Foreground(ColorWarning)
)
