// Package form provides the sign-in and add-patient forms built on
// bubbles text inputs.
package form

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/vitalwatch/monitor/internal/client"
	"github.com/vitalwatch/monitor/internal/theme"
)

// Kind tells the app which form produced a message.
type Kind int

const (
	KindLogin Kind = iota
	KindPatient
)

// SubmitMsg is emitted when the user submits the form.
type SubmitMsg struct {
	Kind   Kind
	Values map[string]string
}

// CancelMsg is emitted when the user leaves the form with esc.
type CancelMsg struct {
	Kind Kind
}

// Field keys.
const (
	FieldUsername  = "username"
	FieldPassword  = "password"
	FieldName      = "name"
	FieldAge       = "age"
	FieldGender    = "gender"
	FieldRoom      = "room_number"
	FieldCondition = "condition"
	FieldContact   = "emergency_contact"
)

type field struct {
	key   string
	label string
	input textinput.Model
}

// Model is a vertical list of labelled inputs.
type Model struct {
	Kind    Kind
	Title   string
	Err     string
	Busy    bool
	fields  []field
	focus   int
	canQuit bool
}

func newField(key, label, placeholder string, limit int) field {
	in := textinput.New()
	in.Placeholder = placeholder
	in.CharLimit = limit
	in.Prompt = "› "
	return field{key: key, label: label, input: in}
}

// NewLogin builds the sign-in form, prefilled with username.
func NewLogin(username string) Model {
	user := newField(FieldUsername, "Username", "nurse", 64)
	user.input.SetValue(username)
	pass := newField(FieldPassword, "Password", "", 128)
	pass.input.EchoMode = textinput.EchoPassword
	pass.input.EchoCharacter = '•'

	m := Model{Kind: KindLogin, Title: "Sign in", fields: []field{user, pass}}
	if username != "" {
		m.focus = 1
	}
	m.fields[m.focus].input.Focus()
	return m
}

// NewPatient builds the add-patient form.
func NewPatient() Model {
	m := Model{
		Kind:    KindPatient,
		Title:   "Add patient",
		canQuit: true,
		fields: []field{
			newField(FieldName, "Name", "Full name", 80),
			newField(FieldAge, "Age", "years", 3),
			newField(FieldGender, "Gender", "F / M / X", 16),
			newField(FieldRoom, "Room", "e.g. 204B", 16),
			newField(FieldCondition, "Condition", "optional", 200),
			newField(FieldContact, "Emergency contact", "optional", 120),
		},
	}
	m.fields[0].input.Focus()
	return m
}

// Values returns the trimmed value of every field by key.
func (m Model) Values() map[string]string {
	out := make(map[string]string, len(m.fields))
	for _, f := range m.fields {
		out[f.key] = strings.TrimSpace(f.input.Value())
	}
	return out
}

// Focused returns the key of the focused field.
func (m Model) Focused() string {
	return m.fields[m.focus].key
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok {
		switch k.String() {
		case "esc":
			if m.canQuit {
				kind := m.Kind
				return m, func() tea.Msg { return CancelMsg{Kind: kind} }
			}
			return m, nil
		case "tab", "down":
			return m.move(1), nil
		case "shift+tab", "up":
			return m.move(-1), nil
		case "enter":
			if m.focus < len(m.fields)-1 {
				return m.move(1), nil
			}
			if m.Busy {
				return m, nil
			}
			kind, values := m.Kind, m.Values()
			return m, func() tea.Msg { return SubmitMsg{Kind: kind, Values: values} }
		}
	}

	var cmd tea.Cmd
	m.fields[m.focus].input, cmd = m.fields[m.focus].input.Update(msg)
	return m, cmd
}

func (m Model) move(delta int) Model {
	m.fields[m.focus].input.Blur()
	n := len(m.fields)
	m.focus = ((m.focus+delta)%n + n) % n
	m.fields[m.focus].input.Focus()
	return m
}

// ClearSecret empties the password field after a failed sign-in.
func (m *Model) ClearSecret() {
	for i := range m.fields {
		if m.fields[i].key == FieldPassword {
			m.fields[i].input.SetValue("")
			m.fields[i].input.Focus()
			if m.focus != i {
				m.fields[m.focus].input.Blur()
				m.focus = i
			}
		}
	}
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(theme.StyleHeader.Render(m.Title) + "\n\n")
	for i, f := range m.fields {
		label := theme.StyleDimmed.Width(20).Render(f.label)
		if i == m.focus {
			label = theme.StyleSelected.Width(20).Render(f.label)
		}
		b.WriteString(label + f.input.View() + "\n")
	}
	if m.Busy {
		b.WriteString("\n" + theme.StyleDimmed.Render("Working…"))
	}
	if m.Err != "" {
		b.WriteString("\n" + theme.StyleError.Render(m.Err))
	}
	help := "tab:next  enter:submit"
	if m.canQuit {
		help += "  esc:cancel"
	} else {
		help += "  ctrl+c:quit"
	}
	b.WriteString("\n\n" + theme.StyleDimmed.Render(help))

	return lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(theme.ColorBorder).
		Padding(1, 2).
		Render(b.String())
}

// ToNewPatient converts add-patient form values into a request body.
// Only the age needs parsing here; the remaining checks run in the
// monitoring controller.
func ToNewPatient(values map[string]string) (client.NewPatient, error) {
	age, err := strconv.Atoi(values[FieldAge])
	if err != nil {
		return client.NewPatient{}, fmt.Errorf("age must be a whole number")
	}
	p := client.NewPatient{
		Name:       values[FieldName],
		Age:        age,
		Gender:     values[FieldGender],
		RoomNumber: values[FieldRoom],
	}
	if v := values[FieldCondition]; v != "" {
		p.Condition = &v
	}
	if v := values[FieldContact]; v != "" {
		p.EmergencyContact = &v
	}
	return p, nil
}
