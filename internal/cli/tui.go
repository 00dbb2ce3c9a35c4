package cli

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/matzehuels/mybget/pkg/install"
	"github.com/matzehuels/mybget/pkg/manager"
)

var listDimStyle = lipgloss.NewStyle().Foreground(colorDim)

// =============================================================================
// ModulePickerModel - Interactive module selection
// =============================================================================

// ModulePickerModel is the bubbletea model for picking modules to install.
// Space toggles a module, enter confirms the marked modules (or the one
// under the cursor when none are marked).
type ModulePickerModel struct {
	Modules  []manager.Module
	Cursor   int
	Marked   map[int]bool
	Selected []string
	Height   int
	Offset   int
}

// NewModulePickerModel creates a picker over mods.
func NewModulePickerModel(mods []manager.Module) ModulePickerModel {
	return ModulePickerModel{
		Modules: mods,
		Marked:  make(map[int]bool),
		Height:  15,
	}
}

func (m ModulePickerModel) Init() tea.Cmd {
	return nil
}

func (m ModulePickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.Selected = nil
			return m, tea.Quit
		case "up", "k":
			if m.Cursor > 0 {
				m.Cursor--
				if m.Cursor < m.Offset {
					m.Offset = m.Cursor
				}
			}
		case "down", "j":
			if m.Cursor < len(m.Modules)-1 {
				m.Cursor++
				if m.Cursor >= m.Offset+m.Height {
					m.Offset = m.Cursor - m.Height + 1
				}
			}
		case " ", "x":
			if len(m.Modules) > 0 {
				m.Marked[m.Cursor] = !m.Marked[m.Cursor]
			}
		case "enter":
			if len(m.Modules) == 0 {
				return m, tea.Quit
			}
			for i, mod := range m.Modules {
				if m.Marked[i] {
					m.Selected = append(m.Selected, mod.ID)
				}
			}
			if len(m.Selected) == 0 {
				m.Selected = []string{m.Modules[m.Cursor].ID}
			}
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.Height = max(msg.Height-8, 5)
	}
	return m, nil
}

func (m ModulePickerModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("Select Modules"))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render("↑/↓ navigate  ␣ mark  ⏎ install  q quit"))
	b.WriteString("\n\n")

	end := min(m.Offset+m.Height, len(m.Modules))

	rows := [][]string{}
	for i := m.Offset; i < end; i++ {
		mod := m.Modules[i]
		cursor := "  "
		if i == m.Cursor {
			cursor = "▸ "
		}
		mark := "[ ]"
		if m.Marked[i] {
			mark = "[x]"
		}
		rows = append(rows, []string{
			cursor + mark,
			mod.ID,
			mod.Language(),
			mod.ModuleType(),
			truncate(mod.Description(), 50),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("", "Name", "Lang", "Type", "Description").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return styleHeader
			}
			idx := m.Offset + row
			if idx >= len(m.Modules) {
				return lipgloss.NewStyle()
			}
			base := lipgloss.NewStyle()
			if m.Modules[idx].Status.Kind != install.NotInstalled {
				base = base.Foreground(colorDim)
			}
			if idx == m.Cursor {
				return base.Foreground(colorCyan).Bold(true)
			}
			if m.Marked[idx] {
				return base.Foreground(colorGreen)
			}
			return base
		})

	b.WriteString(t.Render())
	b.WriteString("\n\n")
	marked := 0
	for _, v := range m.Marked {
		if v {
			marked++
		}
	}
	b.WriteString(listDimStyle.Render(fmt.Sprintf("  [%d/%d] %d marked", m.Cursor+1, len(m.Modules), marked)))

	return b.String()
}

// pickModules runs the picker and returns the chosen module IDs. An empty
// result means the user quit.
func pickModules(mods []manager.Module) ([]string, error) {
	final, err := tea.NewProgram(NewModulePickerModel(mods)).Run()
	if err != nil {
		return nil, err
	}
	return final.(ModulePickerModel).Selected, nil
}

// =============================================================================
// ConfirmModel - Yes/no prompt
// =============================================================================

// ConfirmModel asks a yes/no question. Anything but y answers no.
type ConfirmModel struct {
	Prompt    string
	Confirmed bool
	answered  bool
}

func (m ConfirmModel) Init() tea.Cmd {
	return nil
}

func (m ConfirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "y", "Y":
			m.Confirmed = true
		}
		m.answered = true
		return m, tea.Quit
	}
	return m, nil
}

func (m ConfirmModel) View() string {
	if m.answered {
		return ""
	}
	return StyleWarning.Render(iconWarning+" "+m.Prompt) + " " + listDimStyle.Render("[y/N]") + " "
}

// confirm asks prompt on the terminal.
func confirm(prompt string) (bool, error) {
	final, err := tea.NewProgram(ConfirmModel{Prompt: prompt}).Run()
	if err != nil {
		return false, err
	}
	return final.(ConfirmModel).Confirmed, nil
}
