package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/matzehuels/mybget/pkg/install"
	"github.com/matzehuels/mybget/pkg/manager"
	"github.com/matzehuels/mybget/pkg/source"
	"github.com/matzehuels/mybget/pkg/version"
)

// =============================================================================
// Color Palette
// =============================================================================

var (
	colorCyan   = lipgloss.Color("36")  // Teal - primary actions
	colorGreen  = lipgloss.Color("35")  // Green - success
	colorYellow = lipgloss.Color("220") // Amber - warnings
	colorRed    = lipgloss.Color("167") // Soft red - errors
	colorBlue   = lipgloss.Color("75")  // Light blue - links
	colorWhite  = lipgloss.Color("255") // Bright white - values
	colorGray   = lipgloss.Color("245") // Gray - secondary text
	colorDim    = lipgloss.Color("240") // Dim gray - muted text
)

// =============================================================================
// Public Styles
// =============================================================================

var (
	// StyleTitle for main headings.
	StyleTitle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)

	// StyleLink for URLs.
	StyleLink = lipgloss.NewStyle().Foreground(colorBlue).Underline(true)

	// StyleDim for secondary/muted text.
	StyleDim = lipgloss.NewStyle().Foreground(colorDim)

	// StyleValue for data values.
	StyleValue = lipgloss.NewStyle().Foreground(colorWhite)

	// StyleSuccess for success messages.
	StyleSuccess = lipgloss.NewStyle().Foreground(colorGreen)

	// StyleWarning for warning messages.
	StyleWarning = lipgloss.NewStyle().Foreground(colorYellow)
)

var (
	styleIconSuccess = lipgloss.NewStyle().Foreground(colorGreen)
	styleIconError   = lipgloss.NewStyle().Foreground(colorRed)
	styleIconWarning = lipgloss.NewStyle().Foreground(colorYellow)
	styleIconInfo    = lipgloss.NewStyle().Foreground(colorGray)
	styleIconSpinner = lipgloss.NewStyle().Foreground(colorCyan)

	styleCommand = lipgloss.NewStyle().Foreground(colorBlue)
	styleHeader  = lipgloss.NewStyle().Foreground(colorGray).Bold(true)
)

const (
	iconSuccess = "✓"
	iconError   = "✗"
	iconWarning = "!"
	iconInfo    = "›"
	iconArrow   = "→"
)

// =============================================================================
// Status Output
// =============================================================================

// printSuccess prints a success message.
func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Println(styleIconSuccess.Render(iconSuccess) + " " + msg)
}

// printError prints an error message.
func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Println(styleIconError.Render(iconError) + " " + msg)
}

// printWarning prints a warning message.
func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Println(styleIconWarning.Render(iconWarning) + " " + StyleWarning.Render(msg))
}

// printInfo prints an info/status message.
func printInfo(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Println(styleIconInfo.Render(iconInfo) + " " + msg)
}

// printDetail prints a detail line (indented).
func printDetail(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Println("  " + StyleDim.Render(msg))
}

// printFile prints an installed or removed file.
func printFile(path string) {
	fmt.Println("  " + StyleDim.Render(iconArrow) + " " + StyleValue.Render(path))
}

// printKeyValue prints a labeled value.
func printKeyValue(key, value string) {
	keyStyle := lipgloss.NewStyle().Foreground(colorGray).Width(14)
	fmt.Println(keyStyle.Render(key) + " " + StyleValue.Render(value))
}

// printNextStep prints a suggested next command.
func printNextStep(description, cmd string) {
	fmt.Println(StyleDim.Render(description+":") + " " + styleCommand.Render(cmd))
}

// =============================================================================
// Tables
// =============================================================================

// newTable returns a table in the shared rounded style.
func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return styleHeader
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
}

// stateLabel renders the install state of a module for listings.
func stateLabel(st install.Status) string {
	switch st.Kind {
	case install.Installed:
		return StyleSuccess.Render(st.Installed)
	case install.Upgradable:
		return StyleWarning.Render(st.Installed + " " + iconArrow + " " + st.Latest)
	case install.Orphaned:
		return StyleDim.Render("orphaned")
	}
	if st.Untracked {
		return StyleDim.Render("untracked")
	}
	return ""
}

// moduleRows returns one row per module: name, language, type, latest
// version, install state and description.
func moduleRows(mods []manager.Module) [][]string {
	rows := make([][]string, 0, len(mods))
	for _, m := range mods {
		latest := m.Status.Latest
		if m.Entry != nil {
			latest = m.Entry.LatestVersion
		}
		rows = append(rows, []string{
			m.ID,
			m.Language(),
			m.ModuleType(),
			latest,
			stateLabel(m.Status),
			truncate(m.Description(), 60),
		})
	}
	return rows
}

// moduleTable renders modules as a table.
func moduleTable(mods []manager.Module) string {
	return newTable("Name", "Lang", "Type", "Latest", "Installed", "Description").
		Rows(moduleRows(mods)...).
		Render()
}

// versionTable renders the versions of one module, marking the installed
// one.
func versionTable(vl *manager.VersionList) string {
	rows := make([][]string, 0, len(vl.Versions))
	for _, ref := range vl.Versions {
		mark := ""
		if ref.Version == vl.Installed {
			mark = StyleSuccess.Render(iconSuccess)
		}
		size := ""
		if ref.SizeBytes != nil {
			size = formatSize(*ref.SizeBytes)
		}
		rows = append(rows, []string{mark, versionLabel(ref.Version), ref.SourceID, size, ref.DownloadURL})
	}
	return newTable("", "Version", "Source", "Size", "URL").Rows(rows...).Render()
}

// versionLabel flags versions that do not order as dates.
func versionLabel(v string) string {
	switch {
	case !version.Valid(v):
		return StyleWarning.Render(fmt.Sprintf("%q (malformed)", v))
	case !version.IsDate(v):
		return v + StyleDim.Render(" (tag)")
	default:
		return v
	}
}

// sourceTable renders configured sources with their last update status.
func sourceTable(sources []source.Source) string {
	rows := make([][]string, 0, len(sources))
	for _, s := range sources {
		fetched := ""
		if !s.LastFetchedAt.IsZero() {
			fetched = s.LastFetchedAt.Local().Format("2006-01-02 15:04")
		}
		rows = append(rows, []string{
			s.ID,
			string(s.Kind),
			fmt.Sprint(s.Priority),
			sourceStatusLabel(s),
			fetched,
			s.URL,
		})
	}
	return newTable("Source", "Kind", "Priority", "Status", "Fetched", "URL").Rows(rows...).Render()
}

func sourceStatusLabel(s source.Source) string {
	switch {
	case s.LoadErr != nil:
		return StyleWarning.Render("invalid")
	case s.Status == source.StatusOK:
		return StyleSuccess.Render(string(s.Status))
	case s.Status == "":
		return StyleDim.Render("never")
	}
	return StyleWarning.Render(string(s.Status))
}

// =============================================================================
// Utilities
// =============================================================================

// truncate shortens s to at most n runes, marking the cut with "…".
func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// formatSize renders a byte count with a binary unit.
func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
