package components

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/chalkboard/interp/internal/tui/theme"
)

const (
	confirmDialogDefaultWidth      = 100
	confirmDialogDefaultHeight     = 24
	confirmDialogWidthPct          = 0.5
	confirmDialogMinimumModalWidth = 52

	// confirmDialogHint must fit the minimum content width on one line.
	confirmDialogHint = "Left/Right select  Enter confirm  Esc cancel"
)

// ConfirmAction captures direct keyboard intents in the confirm dialog.
type ConfirmAction string

const (
	// ConfirmActionNone indicates no action key matched.
	ConfirmActionNone ConfirmAction = ""
	// ConfirmActionSelectConfirm highlights the confirm button.
	ConfirmActionSelectConfirm ConfirmAction = "select_confirm"
	// ConfirmActionSelectCancel highlights the cancel button.
	ConfirmActionSelectCancel ConfirmAction = "select_cancel"
	// ConfirmActionSubmit accepts the current selection.
	ConfirmActionSubmit ConfirmAction = "submit"
	// ConfirmActionDismiss cancels the dialog.
	ConfirmActionDismiss ConfirmAction = "dismiss"
)

// ConfirmDialogConfig defines the render payload of a confirm modal.
type ConfirmDialogConfig struct {
	Width           int
	Height          int
	Title           string
	Message         string
	ConfirmLabel    string
	CancelLabel     string
	ConfirmSelected bool
}

// ConfirmActionForKey resolves keyboard actions for the confirm modal.
func ConfirmActionForKey(msg tea.KeyMsg) ConfirmAction {
	switch strings.ToLower(strings.TrimSpace(msg.String())) {
	case "left", "h", "y":
		return ConfirmActionSelectConfirm
	case "right", "l", "n", "tab":
		return ConfirmActionSelectCancel
	case "enter":
		return ConfirmActionSubmit
	case "esc", "ctrl+c":
		return ConfirmActionDismiss
	default:
		return ConfirmActionNone
	}
}

// ApplyConfirmAction returns the new selection and, once finished, the decision.
func ApplyConfirmAction(selected bool, action ConfirmAction) (next bool, finished bool, confirmed bool) {
	switch action {
	case ConfirmActionSelectConfirm:
		return true, false, false
	case ConfirmActionSelectCancel:
		return false, false, false
	case ConfirmActionSubmit:
		return selected, true, selected
	case ConfirmActionDismiss:
		return selected, true, false
	default:
		return selected, false, false
	}
}

// RenderConfirmDialog renders a centered confirm modal.
func RenderConfirmDialog(config ConfirmDialogConfig) string {
	width := config.Width
	if width <= 0 {
		width = confirmDialogDefaultWidth
	}
	height := config.Height
	if height <= 0 {
		height = confirmDialogDefaultHeight
	}

	modalWidth := int(float64(width) * confirmDialogWidthPct)
	if modalWidth < confirmDialogMinimumModalWidth {
		modalWidth = confirmDialogMinimumModalWidth
	}
	if modalWidth > width {
		modalWidth = width
	}
	contentWidth := max(20, modalWidth-6)

	title := strings.TrimSpace(config.Title)
	if title == "" {
		title = "RESTART SESSION?"
	}
	message := strings.TrimSpace(config.Message)
	if message == "" {
		message = "The interpreter will be stopped and started again. Workspace variables are lost."
	}
	confirmLabel := strings.TrimSpace(config.ConfirmLabel)
	if confirmLabel == "" {
		confirmLabel = "Restart"
	}
	cancelLabel := strings.TrimSpace(config.CancelLabel)
	if cancelLabel == "" {
		cancelLabel = "Cancel"
	}

	value := config.ConfirmSelected
	field := huh.NewConfirm().
		Title("Proceed?").
		Affirmative(confirmLabel).
		Negative(cancelLabel).
		Value(&value)
	_ = field.Init()
	buttons := strings.TrimSpace(field.View())
	if buttons == "" {
		buttons = confirmLabel + " / " + cancelLabel
	}

	body := lipgloss.JoinVertical(
		lipgloss.Left,
		lipgloss.NewStyle().Foreground(theme.AmberColor).Bold(true).Align(lipgloss.Center).Width(contentWidth).Render(theme.IconAlert+" "+title),
		lipgloss.NewStyle().Foreground(theme.ChalkColor).Align(lipgloss.Center).Width(contentWidth).Render(message),
		"",
		buttons,
		theme.HintStyle.Align(lipgloss.Center).Width(contentWidth).Render(confirmDialogHint),
	)

	modal := theme.OverlayBorder.
		Padding(1, 2).
		Width(modalWidth).
		Render(body)

	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, modal)
}
