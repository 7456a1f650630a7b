package views

import (
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/chalkboard/interp/internal/tui/theme"
)

const (
	helpOverlayDefaultWidth      = 100
	helpOverlayDefaultHeight     = 30
	helpOverlayStandardWidthPct  = 0.70
	helpOverlayCompactWidthPct   = 0.90
	helpOverlayCompactThreshold  = 100
	helpOverlayMinimumModalWidth = 50
)

// HelpIntro is the markdown shown above the key sections.
const HelpIntro = `## Console

Commands are sent to the interpreter exactly as typed; multi-statement lines
and scripts are fine. Plot commands render off-screen and the image path is
shown in the transcript.

- ` + "`clc`" + ` clears the transcript
- ` + "`exit`" + ` or ` + "`quit`" + ` closes the console
`

// HelpSection is one titled group of key bindings.
type HelpSection struct {
	Title    string
	Bindings []key.Binding
}

// HelpOverlayConfig contains all rendering inputs for the help overlay.
type HelpOverlayConfig struct {
	Width    int
	Height   int
	Intro    string
	Sections []HelpSection
}

// HelpOverlayClosesOn reports whether msg dismisses the overlay.
func HelpOverlayClosesOn(msg tea.KeyMsg) bool {
	switch strings.ToLower(strings.TrimSpace(msg.String())) {
	case "f1", "esc", "q":
		return true
	default:
		return false
	}
}

// RenderHelpOverlay renders the keyboard shortcut modal.
func RenderHelpOverlay(config HelpOverlayConfig) string {
	width := config.Width
	if width <= 0 {
		width = helpOverlayDefaultWidth
	}
	height := config.Height
	if height <= 0 {
		height = helpOverlayDefaultHeight
	}

	modalWidth := int(float64(width) * helpOverlayStandardWidthPct)
	if width < helpOverlayCompactThreshold {
		modalWidth = int(float64(width) * helpOverlayCompactWidthPct)
	}
	if modalWidth < helpOverlayMinimumModalWidth {
		modalWidth = helpOverlayMinimumModalWidth
	}
	if modalWidth > width {
		modalWidth = width
	}
	contentWidth := max(24, modalWidth-4)

	helpModel := help.New()
	helpModel.Width = contentWidth
	helpModel.ShowAll = true

	blocks := []string{
		lipgloss.NewStyle().
			Foreground(theme.AmberColor).
			Bold(true).
			Align(lipgloss.Center).
			Width(contentWidth).
			Render("KEYBOARD SHORTCUTS"),
	}

	intro := config.Intro
	if intro == "" {
		intro = HelpIntro
	}
	blocks = append(blocks, strings.TrimRight(renderMarkdown(intro, contentWidth), "\n"))

	for _, section := range config.Sections {
		header := lipgloss.NewStyle().Foreground(theme.SkyColor).Bold(true).Render(strings.ToUpper(section.Title))
		body := strings.TrimSpace(helpModel.FullHelpView([][]key.Binding{section.Bindings}))
		if body == "" {
			body = "No shortcuts defined."
		}
		blocks = append(blocks, header, body)
	}

	rule := lipgloss.NewStyle().Foreground(theme.SlateColor).Render(strings.Repeat("─", contentWidth))
	blocks = append(blocks, rule, theme.HintStyle.Align(lipgloss.Center).Width(contentWidth).Render("Press F1 or Escape to close"))

	modal := lipgloss.NewStyle().
		Width(modalWidth).
		Border(lipgloss.DoubleBorder()).
		BorderForeground(theme.SkyColor).
		Padding(0, 1).
		Render(lipgloss.JoinVertical(lipgloss.Left, blocks...))

	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, modal)
}

func renderMarkdown(markdown string, width int) string {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(max(40, width)),
	)
	if err != nil {
		return markdown
	}
	rendered, err := renderer.Render(markdown)
	if err != nil {
		return markdown
	}
	return rendered
}
