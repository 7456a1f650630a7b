package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/chalkboard/interp/internal/tui/theme"
)

const toolbarSeparator = "  "

// KeyHint is one `[key] Label` entry of the footer.
type KeyHint struct {
	Key     string
	Label   string
	Enabled bool
}

// RenderToolbar renders hints separated by two spaces, truncated to width when width > 0.
func RenderToolbar(hints []KeyHint, width int) string {
	if len(hints) == 0 {
		return ""
	}

	parts := make([]string, 0, len(hints))
	used := 0
	for _, hint := range hints {
		plain := "[" + hint.Key + "] " + hint.Label
		extra := len(plain)
		if len(parts) > 0 {
			extra += len(toolbarSeparator)
		}
		if width > 0 && used+extra > width {
			break
		}
		used += extra
		parts = append(parts, renderHint(hint))
	}

	return strings.Join(parts, toolbarSeparator)
}

func renderHint(hint KeyHint) string {
	keyStyle := lipgloss.NewStyle().Foreground(theme.AmberColor)
	labelStyle := lipgloss.NewStyle().Foreground(theme.ChalkColor)
	if !hint.Enabled {
		keyStyle = lipgloss.NewStyle().Foreground(theme.SlateColor)
		labelStyle = keyStyle
	}
	return keyStyle.Render("["+hint.Key+"]") + " " + labelStyle.Render(hint.Label)
}
