package tui

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/chalkboard/interp/internal/session"
	"github.com/chalkboard/interp/internal/state"
	"github.com/chalkboard/interp/internal/tui/components"
	"github.com/chalkboard/interp/internal/tui/theme"
	"github.com/chalkboard/interp/internal/tui/views"
)

const (
	defaultTitle       = "interp"
	defaultWidth       = 100
	defaultHeight      = 30
	eventBufferSize    = 256
	chromeHeight       = 6
	minViewportHeight  = 3
	helpCommand        = "help"
	transcriptBorderSz = 2
)

// Session is the part of the session manager the console drives.
type Session interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Restart(ctx context.Context) error
	Submit(ctx context.Context, raw string) error
	Subscribe(handler func(session.Event)) func()
	State() state.State
	PID() int
	Transcript() []session.Event
	HistoryUp() (string, bool)
	HistoryDown() (string, bool)
	ResetHistoryCursor()
}

// Options configures the console.
type Options struct {
	Context context.Context
	Title   string
	// EchoPrompt identifies echoed commands in the transcript.
	EchoPrompt      string
	TranscriptLimit int
	// AutoStart starts the interpreter from Init.
	AutoStart bool
	// OnSubmit observes every command accepted by the session, e.g. to persist history.
	OnSubmit func(raw string)
}

// ConfigChangedMsg tells the console a config file changed on disk.
type ConfigChangedMsg struct {
	Path string
}

type overlayKind int

const (
	overlayNone overlayKind = iota
	overlayHelp
	overlayConfirmRestart
)

type eventMsg struct {
	event session.Event
}

type eventsClosedMsg struct{}

type sessionResultMsg struct {
	op  string
	err error
}

// Console is the root Bubble Tea model of the interpreter console.
type Console struct {
	ctx     context.Context
	session Session
	keys    KeyMap
	opts    Options

	input      textinput.Model
	viewport   viewport.Model
	transcript *components.Transcript

	events      chan session.Event
	unsubscribe func()

	width  int
	height int

	overlay         overlayKind
	confirmSelected bool

	current  state.State
	pid      int
	status   string
	quitting bool
}

// NewConsole builds a console attached to sess. The transcript is seeded with
// the session's retained lines.
func NewConsole(sess Session, opts Options) *Console {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(opts.Title) == "" {
		opts.Title = defaultTitle
	}
	if opts.EchoPrompt == "" {
		opts.EchoPrompt = session.DefaultEchoPrompt
	}

	input := textinput.New()
	input.Prompt = theme.EchoStyle.Render(opts.EchoPrompt)
	input.Placeholder = "enter a command"
	input.Focus()

	c := &Console{
		ctx:        ctx,
		session:    sess,
		keys:       DefaultKeyMap(),
		opts:       opts,
		input:      input,
		viewport:   viewport.New(defaultWidth-transcriptBorderSz, defaultHeight-chromeHeight),
		transcript: components.NewTranscript(opts.TranscriptLimit),
		events:     make(chan session.Event, eventBufferSize),
		width:      defaultWidth,
		height:     defaultHeight,
	}

	for _, event := range sess.Transcript() {
		c.apply(event)
	}
	c.unsubscribe = sess.Subscribe(func(event session.Event) {
		select {
		case c.events <- event:
		case <-ctx.Done():
		}
	})
	c.refreshSession()
	c.syncViewport(true)
	return c
}

// Init satisfies tea.Model.
func (c *Console) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, c.waitForEvent()}
	if c.opts.AutoStart {
		cmds = append(cmds, c.sessionCmd("start", c.session.Start))
	}
	return tea.Batch(cmds...)
}

// Close detaches the console from the session.
func (c *Console) Close() {
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
}

// Quitting reports whether the user asked to leave.
func (c *Console) Quitting() bool {
	return c.quitting
}

// Lines returns the transcript lines currently shown.
func (c *Console) Lines() []components.TranscriptLine {
	return c.transcript.Lines()
}

// Status returns the notice shown under the input.
func (c *Console) Status() string {
	return c.status
}

// Update handles session events, command results and keys.
func (c *Console) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		c.resize(typed.Width, typed.Height)
		return c, nil
	case eventMsg:
		c.apply(typed.event)
		c.refreshSession()
		c.syncViewport(false)
		return c, c.waitForEvent()
	case eventsClosedMsg:
		return c, nil
	case sessionResultMsg:
		c.refreshSession()
		switch {
		case typed.err == nil:
			c.status = ""
		case !errors.Is(typed.err, context.Canceled):
			c.status = fmt.Sprintf("%s failed: %v", typed.op, typed.err)
		}
		return c, nil
	case ConfigChangedMsg:
		c.status = fmt.Sprintf("config changed (%s); restart the session to apply", filepath.Base(typed.Path))
		return c, nil
	case tea.KeyMsg:
		return c.handleKey(typed)
	}

	var cmd tea.Cmd
	c.input, cmd = c.input.Update(msg)
	return c, cmd
}

func (c *Console) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch c.overlay {
	case overlayHelp:
		if views.HelpOverlayClosesOn(msg) {
			c.overlay = overlayNone
		}
		return c, nil
	case overlayConfirmRestart:
		next, finished, confirmed := components.ApplyConfirmAction(c.confirmSelected, components.ConfirmActionForKey(msg))
		c.confirmSelected = next
		if !finished {
			return c, nil
		}
		c.overlay = overlayNone
		if confirmed {
			return c, c.sessionCmd("restart", c.session.Restart)
		}
		return c, nil
	}

	switch {
	case key.Matches(msg, c.keys.Quit):
		return c.quit()
	case key.Matches(msg, c.keys.Submit):
		return c.submit()
	case key.Matches(msg, c.keys.HistoryUp):
		if entry, ok := c.session.HistoryUp(); ok {
			c.setInput(entry)
		}
		return c, nil
	case key.Matches(msg, c.keys.HistoryDown):
		if entry, ok := c.session.HistoryDown(); ok {
			c.setInput(entry)
		}
		return c, nil
	case key.Matches(msg, c.keys.PageUp):
		c.viewport.HalfViewUp()
		return c, nil
	case key.Matches(msg, c.keys.PageDown):
		c.viewport.HalfViewDown()
		return c, nil
	case key.Matches(msg, c.keys.ClearView):
		c.transcript.Clear()
		c.syncViewport(true)
		return c, nil
	case key.Matches(msg, c.keys.Start):
		c.refreshSession()
		if c.current.Live() {
			return c, nil
		}
		return c, c.sessionCmd("start", c.session.Start)
	case key.Matches(msg, c.keys.Restart):
		c.overlay = overlayConfirmRestart
		c.confirmSelected = true
		return c, nil
	case key.Matches(msg, c.keys.Help):
		c.overlay = overlayHelp
		return c, nil
	case key.Matches(msg, c.keys.AskHelp):
		c.send(helpCommand)
		return c, nil
	}

	var cmd tea.Cmd
	c.input, cmd = c.input.Update(msg)
	return c, cmd
}

func (c *Console) submit() (tea.Model, tea.Cmd) {
	raw := c.input.Value()
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return c, nil
	}
	switch strings.ToLower(trimmed) {
	case "exit", "quit":
		return c.quit()
	}
	c.setInput("")
	c.session.ResetHistoryCursor()
	c.send(raw)
	return c, nil
}

func (c *Console) send(raw string) {
	err := c.session.Submit(c.ctx, raw)
	switch {
	case err == nil:
		c.status = ""
		if c.opts.OnSubmit != nil {
			c.opts.OnSubmit(raw)
		}
	case errors.Is(err, session.ErrNotRunning):
		c.status = "interpreter is not running; press ctrl+s to start it"
	default:
		c.status = err.Error()
	}
}

func (c *Console) quit() (tea.Model, tea.Cmd) {
	c.quitting = true
	return c, tea.Quit
}

func (c *Console) setInput(value string) {
	c.input.SetValue(value)
	c.input.CursorEnd()
}

func (c *Console) sessionCmd(op string, fn func(context.Context) error) tea.Cmd {
	ctx := c.ctx
	return func() tea.Msg {
		return sessionResultMsg{op: op, err: fn(ctx)}
	}
}

func (c *Console) waitForEvent() tea.Cmd {
	events := c.events
	ctx := c.ctx
	return func() tea.Msg {
		select {
		case event := <-events:
			return eventMsg{event: event}
		case <-ctx.Done():
			return eventsClosedMsg{}
		}
	}
}

func (c *Console) refreshSession() {
	c.current = c.session.State()
	c.pid = c.session.PID()
}

func (c *Console) apply(event session.Event) {
	switch event.Kind {
	case session.EventClear:
		c.transcript.Clear()
	case session.EventText:
		c.transcript.Append(components.TranscriptLine{Kind: c.classify(event.Text), Text: event.Text})
	case session.EventArtifactReady:
		c.transcript.Append(components.TranscriptLine{Kind: components.LineArtifact, Text: "plot written to " + event.Path})
	case session.EventArtifact:
		c.transcript.Append(components.TranscriptLine{
			Kind: components.LineArtifact,
			Text: fmt.Sprintf("plot loaded: %s (%s, %d bytes)", event.Path, event.MIME, len(event.Data)),
		})
	}
}

func (c *Console) classify(text string) components.LineKind {
	switch {
	case strings.HasPrefix(text, c.opts.EchoPrompt):
		return components.LineEcho
	case text == session.RestartBanner || text == session.RestartedBanner:
		return components.LineNotice
	case strings.HasPrefix(text, "error:"),
		strings.HasPrefix(text, "Failed to "),
		strings.HasPrefix(text, "Interpreter exited"),
		strings.HasPrefix(text, "Interpreter stopped"):
		return components.LineError
	case strings.HasPrefix(text, "warning:"):
		return components.LineNotice
	default:
		return components.LineOutput
	}
}

func (c *Console) resize(width, height int) {
	c.width = width
	c.height = height
	c.viewport.Width = max(10, width-transcriptBorderSz)
	c.viewport.Height = max(minViewportHeight, height-chromeHeight)
	c.input.Width = max(10, width-lipgloss.Width(c.input.Prompt)-1)
	c.syncViewport(true)
}

func (c *Console) syncViewport(forceBottom bool) {
	atBottom := c.viewport.AtBottom()
	c.viewport.SetContent(c.transcript.Render(c.viewport.Width))
	if forceBottom || atBottom {
		c.viewport.GotoBottom()
	}
}

// View renders the console.
func (c *Console) View() string {
	if c.quitting {
		return ""
	}
	switch c.overlay {
	case overlayHelp:
		return views.RenderHelpOverlay(views.HelpOverlayConfig{
			Width:    c.width,
			Height:   c.height,
			Sections: c.keys.HelpSections(),
		})
	case overlayConfirmRestart:
		return components.RenderConfirmDialog(components.ConfirmDialogConfig{
			Width:           c.width,
			Height:          c.height,
			ConfirmSelected: c.confirmSelected,
		})
	}

	header := c.renderHeader()
	body := theme.TranscriptBorder.Width(max(10, c.width-transcriptBorderSz)).Render(c.viewport.View())
	status := theme.HintStyle.Render(c.status)
	footer := components.RenderToolbar(c.keys.toolbar(c.current == state.Running), c.width)

	return lipgloss.JoinVertical(lipgloss.Left, header, body, c.input.View(), status, footer)
}

func (c *Console) renderHeader() string {
	badge := components.RenderStateBadge(c.current, components.WithBadgeBold(true))
	details := ""
	if c.pid > 0 {
		details = fmt.Sprintf("pid %d", c.pid)
	}
	left := theme.HeaderStyle.Render(c.opts.Title)
	right := strings.TrimSpace(badge + "  " + theme.HintStyle.Render(details))
	gap := max(1, c.width-lipgloss.Width(left)-lipgloss.Width(right))
	return left + strings.Repeat(" ", gap) + right
}
