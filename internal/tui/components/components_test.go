package components

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"

	"github.com/chalkboard/interp/internal/state"
	"github.com/chalkboard/interp/internal/tui/theme"
)

func TestRenderStateBadge(t *testing.T) {
	t.Parallel()

	cases := map[state.State]string{
		state.Idle:     theme.IconIdle + " IDLE",
		state.Starting: theme.IconBusy + " STARTING",
		state.Running:  theme.IconRunning + " RUNNING",
		state.Stopping: theme.IconBusy + " STOPPING",
		state.Crashed:  theme.IconCrashed + " CRASHED",
		state.State("odd"): theme.IconAlert + " UNKNOWN",
	}
	for current, want := range cases {
		if got := ansi.Strip(RenderStateBadge(current)); got != want {
			t.Fatalf("badge for %q = %q, want %q", current, got, want)
		}
	}

	if got := ansi.Strip(RenderStateBadge(state.Running, WithBadgeIcon(false), WithBadgeBold(true))); got != "RUNNING" {
		t.Fatalf("badge without icon = %q", got)
	}
}

func TestRenderToolbarTruncatesToWidth(t *testing.T) {
	t.Parallel()

	hints := []KeyHint{
		{Key: "enter", Label: "Run", Enabled: true},
		{Key: "ctrl+r", Label: "Restart", Enabled: false},
		{Key: "f1", Label: "Help", Enabled: true},
	}

	full := ansi.Strip(RenderToolbar(hints, 0))
	if full != "[enter] Run  [ctrl+r] Restart  [f1] Help" {
		t.Fatalf("toolbar = %q", full)
	}

	short := ansi.Strip(RenderToolbar(hints, 24))
	if short != "[enter] Run" {
		t.Fatalf("truncated toolbar = %q", short)
	}
	if RenderToolbar(nil, 10) != "" {
		t.Fatal("empty toolbar should render nothing")
	}
}

func TestTranscriptBoundsAndClears(t *testing.T) {
	t.Parallel()

	transcript := NewTranscript(2)
	transcript.Append(TranscriptLine{Kind: LineEcho, Text: "octave:> a = 1"})
	transcript.Append(TranscriptLine{Kind: LineOutput, Text: "a = 1"})
	transcript.Append(TranscriptLine{Kind: LineArtifact, Text: "/tmp/p.png"})

	lines := transcript.Lines()
	if len(lines) != 2 || lines[0].Text != "a = 1" {
		t.Fatalf("lines = %+v", lines)
	}

	rendered := ansi.Strip(transcript.Render(0))
	if !strings.Contains(rendered, theme.IconArtifact+" /tmp/p.png") {
		t.Fatalf("rendered transcript = %q", rendered)
	}

	transcript.Clear()
	if transcript.Len() != 0 {
		t.Fatalf("len after clear = %d", transcript.Len())
	}
	if !strings.Contains(ansi.Strip(transcript.Render(40)), "Type a command") {
		t.Fatal("empty transcript should show placeholder")
	}
}

func TestConfirmActions(t *testing.T) {
	t.Parallel()

	cases := []struct {
		key  tea.KeyMsg
		want ConfirmAction
	}{
		{key: tea.KeyMsg{Type: tea.KeyLeft}, want: ConfirmActionSelectConfirm},
		{key: tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'y'}}, want: ConfirmActionSelectConfirm},
		{key: tea.KeyMsg{Type: tea.KeyRight}, want: ConfirmActionSelectCancel},
		{key: tea.KeyMsg{Type: tea.KeyEnter}, want: ConfirmActionSubmit},
		{key: tea.KeyMsg{Type: tea.KeyEsc}, want: ConfirmActionDismiss},
		{key: tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'x'}}, want: ConfirmActionNone},
	}
	for _, testCase := range cases {
		if got := ConfirmActionForKey(testCase.key); got != testCase.want {
			t.Fatalf("action for %q = %q, want %q", testCase.key.String(), got, testCase.want)
		}
	}

	next, finished, confirmed := ApplyConfirmAction(false, ConfirmActionSelectConfirm)
	if !next || finished || confirmed {
		t.Fatalf("select confirm = %v %v %v", next, finished, confirmed)
	}
	_, finished, confirmed = ApplyConfirmAction(true, ConfirmActionSubmit)
	if !finished || !confirmed {
		t.Fatal("submit with confirm selected should confirm")
	}
	_, finished, confirmed = ApplyConfirmAction(true, ConfirmActionDismiss)
	if !finished || confirmed {
		t.Fatal("dismiss should cancel")
	}
}

func TestRenderConfirmDialogDefaults(t *testing.T) {
	t.Parallel()

	rendered := ansi.Strip(RenderConfirmDialog(ConfirmDialogConfig{Width: 100, Height: 20, ConfirmSelected: true}))
	for _, expected := range []string{"RESTART SESSION?", "Restart", "Cancel", "Esc cancel", "╔"} {
		if !strings.Contains(rendered, expected) {
			t.Fatalf("confirm dialog missing %q\n%s", expected, rendered)
		}
	}
}

func TestConfirmDialogHintStaysOnOneLine(t *testing.T) {
	t.Parallel()

	for _, width := range []int{52, 60, 100, 160} {
		rendered := ansi.Strip(RenderConfirmDialog(ConfirmDialogConfig{Width: width, Height: 20}))
		if !strings.Contains(rendered, confirmDialogHint) {
			t.Fatalf("width %d: hint wrapped or missing\n%s", width, rendered)
		}
	}
}
