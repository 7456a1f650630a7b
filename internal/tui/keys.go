package tui

import (
	"github.com/charmbracelet/bubbles/key"

	"github.com/chalkboard/interp/internal/tui/components"
	"github.com/chalkboard/interp/internal/tui/views"
)

// KeyMap holds the console key bindings.
type KeyMap struct {
	Submit      key.Binding
	HistoryUp   key.Binding
	HistoryDown key.Binding
	PageUp      key.Binding
	PageDown    key.Binding
	Start       key.Binding
	Restart     key.Binding
	ClearView   key.Binding
	Help        key.Binding
	AskHelp     key.Binding
	Quit        key.Binding
}

// DefaultKeyMap returns the console bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Submit:      key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "run command")),
		HistoryUp:   key.NewBinding(key.WithKeys("up"), key.WithHelp("↑", "previous command")),
		HistoryDown: key.NewBinding(key.WithKeys("down"), key.WithHelp("↓", "next command")),
		PageUp:      key.NewBinding(key.WithKeys("pgup"), key.WithHelp("pgup", "scroll up")),
		PageDown:    key.NewBinding(key.WithKeys("pgdown"), key.WithHelp("pgdn", "scroll down")),
		Start:       key.NewBinding(key.WithKeys("ctrl+s"), key.WithHelp("ctrl+s", "start interpreter")),
		Restart:     key.NewBinding(key.WithKeys("ctrl+r"), key.WithHelp("ctrl+r", "restart session")),
		ClearView:   key.NewBinding(key.WithKeys("ctrl+l"), key.WithHelp("ctrl+l", "clear transcript")),
		Help:        key.NewBinding(key.WithKeys("f1"), key.WithHelp("f1", "keyboard help")),
		AskHelp:     key.NewBinding(key.WithKeys("f2"), key.WithHelp("f2", "interpreter help")),
		Quit:        key.NewBinding(key.WithKeys("ctrl+c", "ctrl+d"), key.WithHelp("ctrl+c", "quit")),
	}
}

// HelpSections groups the bindings for the help overlay.
func (k KeyMap) HelpSections() []views.HelpSection {
	return []views.HelpSection{
		{Title: "Input", Bindings: []key.Binding{k.Submit, k.HistoryUp, k.HistoryDown, k.AskHelp}},
		{Title: "Transcript", Bindings: []key.Binding{k.PageUp, k.PageDown, k.ClearView}},
		{Title: "Session", Bindings: []key.Binding{k.Start, k.Restart, k.Help, k.Quit}},
	}
}

func (k KeyMap) toolbar(live bool) []components.KeyHint {
	return []components.KeyHint{
		{Key: k.Submit.Help().Key, Label: "Run", Enabled: live},
		{Key: k.Start.Help().Key, Label: "Start", Enabled: !live},
		{Key: k.Restart.Help().Key, Label: "Restart", Enabled: true},
		{Key: k.Help.Help().Key, Label: "Help", Enabled: true},
		{Key: k.Quit.Help().Key, Label: "Quit", Enabled: true},
	}
}
