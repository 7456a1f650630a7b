package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/chalkboard/interp/internal/tui/theme"
)

// LineKind selects how a transcript line is styled.
type LineKind int

const (
	// LineOutput is ordinary interpreter output.
	LineOutput LineKind = iota
	// LineEcho is the echoed command.
	LineEcho
	// LineError is an interpreter error or a session failure.
	LineError
	// LineArtifact announces a produced artifact.
	LineArtifact
	// LineNotice is a session banner such as a restart notice.
	LineNotice
)

// TranscriptLine is one rendered row of the console transcript.
type TranscriptLine struct {
	Kind LineKind
	Text string
}

// Transcript is a bounded list of lines, oldest first.
type Transcript struct {
	limit int
	lines []TranscriptLine
}

// NewTranscript keeps at most limit lines. limit <= 0 means 1000.
func NewTranscript(limit int) *Transcript {
	if limit <= 0 {
		limit = 1000
	}
	return &Transcript{limit: limit}
}

// Append adds a line, dropping the oldest beyond the limit.
func (t *Transcript) Append(line TranscriptLine) {
	t.lines = append(t.lines, line)
	if overflow := len(t.lines) - t.limit; overflow > 0 {
		t.lines = append([]TranscriptLine(nil), t.lines[overflow:]...)
	}
}

// Clear removes every line.
func (t *Transcript) Clear() {
	t.lines = nil
}

// Lines returns a copy of the retained lines.
func (t *Transcript) Lines() []TranscriptLine {
	return append([]TranscriptLine(nil), t.lines...)
}

// Len returns the number of retained lines.
func (t *Transcript) Len() int {
	return len(t.lines)
}

// Render styles every line for a viewport of the given width.
func (t *Transcript) Render(width int) string {
	if len(t.lines) == 0 {
		return theme.HintStyle.Render("Type a command and press Enter.")
	}
	rendered := make([]string, 0, len(t.lines))
	for _, line := range t.lines {
		rendered = append(rendered, RenderTranscriptLine(line, width))
	}
	return strings.Join(rendered, "\n")
}

// RenderTranscriptLine styles one line, wrapping it to width when width > 0.
func RenderTranscriptLine(line TranscriptLine, width int) string {
	style := lineStyle(line.Kind)
	text := line.Text
	if line.Kind == LineArtifact {
		text = theme.IconArtifact + " " + text
	}
	if width > 0 {
		style = style.Width(width)
	}
	return style.Render(text)
}

func lineStyle(kind LineKind) lipgloss.Style {
	switch kind {
	case LineEcho:
		return theme.EchoStyle
	case LineError:
		return theme.ErrorStyle
	case LineArtifact:
		return theme.ArtifactStyle
	case LineNotice:
		return theme.NoticeStyle
	default:
		return theme.TextStyle
	}
}
