// Package help renders the keyboard and legend overlay from markdown.
package help

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/vitalwatch/monitor/internal/theme"
)

const legend = `
## Status

| Level | Meaning |
|---|---|
| critical | at least one critical alert in any session |
| high | a high alert, no critical |
| moderate | any other alert |
| stable | no alerts |

Alerts from stopped sessions still count.

## Monitoring

*starting* and *stopping* last until the next poll confirms the change.
Nothing on the board changes until the backend reports it.
`

// Markdown builds the help document for the given bindings.
func Markdown(bindings []key.Binding) string {
	var b strings.Builder
	b.WriteString("# VitalWatch\n\n## Keys\n\n| Key | Action |\n|---|---|\n")
	for _, kb := range bindings {
		h := kb.Help()
		if h.Key == "" {
			continue
		}
		fmt.Fprintf(&b, "| `%s` | %s |\n", h.Key, h.Desc)
	}
	b.WriteString(legend)
	return b.String()
}

// Model caches the rendered document per width.
type Model struct {
	bindings []key.Binding
	style    string
	width    int
	rendered string
}

// New creates the overlay. style is a glamour standard style name
// ("dark", "light", "notty").
func New(bindings []key.Binding, style string) Model {
	if style == "" {
		style = "dark"
	}
	return Model{bindings: bindings, style: style}
}

// View renders the overlay at the given width.
func (m *Model) View(width int) string {
	wrap := max(width-8, 40)
	if m.rendered == "" || m.width != wrap {
		m.width = wrap
		m.rendered = m.render(wrap)
	}
	return lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(theme.ColorBorder).
		Padding(0, 1).
		Render(m.rendered + "\n" + theme.StyleDimmed.Render("esc:close"))
}

func (m Model) render(wrap int) string {
	md := Markdown(m.bindings)
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(m.style),
		glamour.WithWordWrap(wrap),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return strings.Trim(out, "\n")
}
