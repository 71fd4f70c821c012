package help

import (
	"strings"
	"testing"

	"github.com/charmbracelet/bubbles/key"
)

var bindings = []key.Binding{
	key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "start monitoring")),
	key.NewBinding(key.WithKeys("x")), // no help, skipped
}

func TestMarkdownListsBindings(t *testing.T) {
	md := Markdown(bindings)
	if !strings.Contains(md, "| `s` | start monitoring |") {
		t.Errorf("binding row missing:\n%s", md)
	}
	if strings.Count(md, "| `") != 1 {
		t.Error("bindings without help should be skipped")
	}
	if !strings.Contains(md, "stopped sessions still count") {
		t.Error("legend missing")
	}
}

func TestViewRendersAndCaches(t *testing.T) {
	m := New(bindings, "notty")
	v := m.View(100)
	if !strings.Contains(v, "monitoring") {
		t.Errorf("rendered help missing binding text:\n%s", v)
	}
	first := m.rendered
	m.View(100)
	if m.rendered != first {
		t.Error("same width should reuse the rendered document")
	}
}
