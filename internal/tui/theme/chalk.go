package theme

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Palette entries hold a dark-background hex, a light-background hex and the
// ANSI256/ANSI fallbacks.
const (
	// Chalk is the primary text color.
	Chalk = "#ECEFF1"
	// ChalkLight is Chalk on light terminals.
	ChalkLight = "#263238"
	// Slate is the muted neutral for chrome and hints.
	Slate = "#607D8B"
	// Amber marks the echo prompt and active controls.
	Amber = "#FFB74D"
	// Sky marks artifacts and informational notices.
	Sky = "#81D4FA"
	// Coral marks errors and crashed sessions.
	Coral = "#FF8A80"
	// Mint marks a running session.
	Mint = "#A5D6A7"
	// Lemon marks transitional states.
	Lemon = "#FFF59D"
	// Board is the header background.
	Board = "#263238"
)

const (
	// IconRunning marks a live interpreter.
	IconRunning = "●"
	// IconIdle marks no interpreter.
	IconIdle = "○"
	// IconBusy marks a start or stop in progress.
	IconBusy = "◌"
	// IconCrashed marks an interpreter that died.
	IconCrashed = "✗"
	// IconArtifact prefixes artifact lines.
	IconArtifact = "▣"
	// IconAlert marks notices.
	IconAlert = "⚠"
)

// Profile-aware palette colors.
var (
	ChalkColor = paletteColor(Chalk, ChalkLight, "255", "15")
	SlateColor = paletteColor(Slate, Slate, "66", "8")
	AmberColor = paletteColor(Amber, "#E65100", "215", "11")
	SkyColor   = paletteColor(Sky, "#0277BD", "117", "14")
	CoralColor = paletteColor(Coral, "#C62828", "210", "9")
	MintColor  = paletteColor(Mint, "#2E7D32", "151", "10")
	LemonColor = paletteColor(Lemon, "#F9A825", "229", "11")
	BoardColor = paletteColor(Board, "#CFD8DC", "236", "0")
)

var (
	// TextStyle renders ordinary interpreter output.
	TextStyle = lipgloss.NewStyle().Foreground(ChalkColor)
	// EchoStyle renders the echoed command line.
	EchoStyle = lipgloss.NewStyle().Foreground(AmberColor).Bold(true)
	// ErrorStyle renders interpreter and session errors.
	ErrorStyle = lipgloss.NewStyle().Foreground(CoralColor)
	// ArtifactStyle renders artifact notices.
	ArtifactStyle = lipgloss.NewStyle().Foreground(SkyColor)
	// NoticeStyle renders session notices such as restart banners.
	NoticeStyle = lipgloss.NewStyle().Foreground(LemonColor).Italic(true)
	// HintStyle renders key hints and placeholders.
	HintStyle = lipgloss.NewStyle().Foreground(SlateColor).Faint(true)
	// HeaderStyle renders the title bar.
	HeaderStyle = lipgloss.NewStyle().Foreground(ChalkColor).Background(BoardColor).Bold(true).Padding(0, 1)
)

var (
	// TranscriptBorder frames the transcript viewport.
	TranscriptBorder = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(SlateColor)

	// OverlayBorder is the modal border style.
	OverlayBorder = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(AmberColor)
)

var colorProfileFn = lipgloss.ColorProfile

func paletteColor(dark, light, ansi256, ansi string) lipgloss.TerminalColor {
	switch colorProfileFn() {
	case termenv.TrueColor:
		return lipgloss.AdaptiveColor{Light: light, Dark: dark}
	case termenv.ANSI256, termenv.ANSI:
		return lipgloss.CompleteAdaptiveColor{
			Light: lipgloss.CompleteColor{TrueColor: light, ANSI256: ansi256, ANSI: ansi},
			Dark:  lipgloss.CompleteColor{TrueColor: dark, ANSI256: ansi256, ANSI: ansi},
		}
	default:
		return lipgloss.NoColor{}
	}
}
