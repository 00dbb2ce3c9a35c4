package cli

import (
	"reflect"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/matzehuels/mybget/pkg/manager"
)

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case " ":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(m tea.Model, keys ...string) tea.Model {
	for _, k := range keys {
		m, _ = m.Update(key(k))
	}
	return m
}

func TestModulePicker(t *testing.T) {
	mods := []manager.Module{{ID: "KJV"}, {ID: "RST"}, {ID: "TSK"}}

	tests := []struct {
		name string
		keys []string
		want []string
	}{
		{"enter picks cursor", []string{"down", "enter"}, []string{"RST"}},
		{"marked modules in list order", []string{"down", "down", " ", "up", "up", " ", "enter"}, []string{"KJV", "TSK"}},
		{"unmark", []string{" ", " ", "down", "enter"}, []string{"RST"}},
		{"cursor stops at end", []string{"down", "down", "down", "enter"}, []string{"TSK"}},
		{"quit", []string{"x", "q"}, nil},
		{"escape", []string{"esc"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			final := press(NewModulePickerModel(mods), tt.keys...).(ModulePickerModel)
			if !reflect.DeepEqual(final.Selected, tt.want) {
				t.Errorf("Selected = %v, want %v", final.Selected, tt.want)
			}
		})
	}
}

func TestModulePickerView(t *testing.T) {
	m := NewModulePickerModel([]manager.Module{{ID: "KJV"}, {ID: "RST"}})
	m = press(m, " ").(ModulePickerModel)

	view := m.View()
	for _, want := range []string{"KJV", "RST", "[x]", "1 marked"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestConfirmModel(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"y", true},
		{"Y", true},
		{"n", false},
		{"enter", false},
	}

	for _, tt := range tests {
		final := press(ConfirmModel{Prompt: "Sure?"}, tt.key).(ConfirmModel)
		if final.Confirmed != tt.want {
			t.Errorf("key %q: Confirmed = %v, want %v", tt.key, final.Confirmed, tt.want)
		}
	}
}
