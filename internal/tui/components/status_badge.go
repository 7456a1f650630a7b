package components

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/chalkboard/interp/internal/state"
	"github.com/chalkboard/interp/internal/tui/theme"
)

// BadgeOpt configures optional rendering behavior for StateBadge.
type BadgeOpt func(*badgeOptions)

type badgeOptions struct {
	showIcon bool
	bold     bool
}

type badgeVariant struct {
	icon  string
	label string
	color lipgloss.TerminalColor
}

var stateBadgeVariants = map[state.State]badgeVariant{
	state.Idle:     {icon: theme.IconIdle, label: "IDLE", color: theme.SlateColor},
	state.Starting: {icon: theme.IconBusy, label: "STARTING", color: theme.LemonColor},
	state.Running:  {icon: theme.IconRunning, label: "RUNNING", color: theme.MintColor},
	state.Stopping: {icon: theme.IconBusy, label: "STOPPING", color: theme.LemonColor},
	state.Crashed:  {icon: theme.IconCrashed, label: "CRASHED", color: theme.CoralColor},
}

// WithBadgeIcon controls whether the icon is shown (default: true).
func WithBadgeIcon(show bool) BadgeOpt {
	return func(options *badgeOptions) {
		options.showIcon = show
	}
}

// WithBadgeBold controls whether the badge text is bold (default: false).
func WithBadgeBold(bold bool) BadgeOpt {
	return func(options *badgeOptions) {
		options.bold = bold
	}
}

// RenderStateBadge renders `[icon] LABEL` for a session state.
func RenderStateBadge(current state.State, opts ...BadgeOpt) string {
	options := badgeOptions{showIcon: true}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	variant, ok := stateBadgeVariants[current]
	if !ok {
		variant = badgeVariant{icon: theme.IconAlert, label: "UNKNOWN", color: theme.SlateColor}
	}

	content := variant.label
	if options.showIcon {
		content = variant.icon + " " + variant.label
	}

	return lipgloss.NewStyle().
		Foreground(variant.color).
		Bold(options.bold).
		Render(content)
}
