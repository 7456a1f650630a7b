package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/chalkboard/interp/internal/artifact"
	"github.com/chalkboard/interp/internal/demux"
	"github.com/chalkboard/interp/internal/events"
	"github.com/chalkboard/interp/internal/history"
	"github.com/chalkboard/interp/internal/process"
	"github.com/chalkboard/interp/internal/state"
	"github.com/chalkboard/interp/internal/telemetry/invariants"
	"github.com/chalkboard/interp/internal/wrapper"
)

const (
	// DefaultEchoPrompt prefixes the transcript echo of every submitted command.
	DefaultEchoPrompt = "octave:> "
	// DefaultTranscriptLimit is the number of Text events kept for late subscribers.
	DefaultTranscriptLimit = 1000
	// DefaultRestartDelay lets OS handles of the previous process settle.
	DefaultRestartDelay = time.Second
	// DefaultStopGrace is the wait after a termination request before killing.
	DefaultStopGrace = 3 * time.Second
	// DefaultKillWait is the wait after a kill before assuming the process is gone.
	DefaultKillWait = 2 * time.Second
	// DefaultStartupProbe is how long a fresh process must survive to count as started.
	DefaultStartupProbe = 150 * time.Millisecond
	// DefaultDrainTimeout bounds the wait for output readers after exit.
	DefaultDrainTimeout = 2 * time.Second

	// RestartBanner is emitted before a restart stops the current process.
	RestartBanner = "--- Restarting session ---"
	// RestartedBanner is emitted once a restart has brought up the new process.
	RestartedBanner = "Session restarted."

	readBufferSize = 32 * 1024
)

// LaunchBuilder resolves the launch configuration for each start.
type LaunchBuilder interface {
	Build(ctx context.Context) (process.LaunchConfig, error)
}

// CommandWrapper converts raw commands into interpreter input.
type CommandWrapper interface {
	Wrap(raw string) string
	ClearsScreen(raw string) bool
}

// Options configures a session manager.
type Options struct {
	Builder LaunchBuilder
	Spawner process.Spawner
	Wrapper CommandWrapper
	// Fetcher loads announced artifacts. Nil disables fetching; ArtifactReady
	// events are still published.
	Fetcher artifact.Fetcher

	Marker          string
	PromptPatterns  []*regexp.Regexp
	EchoPrompt      string
	HistoryLimit    int
	TranscriptLimit int

	RestartDelay time.Duration
	StopGrace    time.Duration
	KillWait     time.Duration
	StartupProbe time.Duration
	DrainTimeout time.Duration

	Logger *log.Logger
	Tracer trace.Tracer
	// Sleep overrides the restart settling wait.
	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
}

// Manager owns the single interpreter session of the application: its process,
// state machine, history and subscriber fan-out.
type Manager struct {
	id      string
	builder LaunchBuilder
	spawner process.Spawner
	wrapper CommandWrapper
	fetcher artifact.Fetcher

	marker       string
	prompts      []*regexp.Regexp
	echoPrompt   string
	restartDelay time.Duration
	stopGrace    time.Duration
	killWait     time.Duration
	startupProbe time.Duration
	drainTimeout time.Duration

	logger *log.Logger
	tracer trace.Tracer
	sleep  func(ctx context.Context, d time.Duration) error
	now    func() time.Time

	// opMu serializes Start, Stop, Restart and Close.
	opMu sync.Mutex

	// mu guards the state machine, the current run, history and closed.
	// Lock order is mu before pubMu.
	mu      sync.Mutex
	machine *state.Machine
	run     *run
	history *history.History
	closed  bool

	pubMu      sync.Mutex
	seq        uint64
	transcript *transcript
	bus        *events.Bus[Event]

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a manager in the Idle state.
func New(opts Options) (*Manager, error) {
	if opts.Builder == nil {
		return nil, errors.New("launch builder is required")
	}

	spawner := opts.Spawner
	if spawner == nil {
		spawner = process.NewExecSpawner()
	}

	marker := opts.Marker
	if strings.TrimSpace(marker) == "" {
		marker = wrapper.DefaultMarker
	}

	cmdWrapper := opts.Wrapper
	if cmdWrapper == nil {
		cmdWrapper = wrapper.New(wrapper.Options{Marker: marker})
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer("interp/session")
	}

	echoPrompt := opts.EchoPrompt
	if echoPrompt == "" {
		echoPrompt = DefaultEchoPrompt
	}

	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		id:           id,
		builder:      opts.Builder,
		spawner:      spawner,
		wrapper:      cmdWrapper,
		fetcher:      opts.Fetcher,
		marker:       marker,
		prompts:      opts.PromptPatterns,
		echoPrompt:   echoPrompt,
		restartDelay: durationOr(opts.RestartDelay, DefaultRestartDelay),
		stopGrace:    durationOr(opts.StopGrace, DefaultStopGrace),
		killWait:     durationOr(opts.KillWait, DefaultKillWait),
		startupProbe: durationOr(opts.StartupProbe, DefaultStartupProbe),
		drainTimeout: durationOr(opts.DrainTimeout, DefaultDrainTimeout),
		logger:       logger.With("session_id", id),
		tracer:       tracer,
		sleep:        sleep,
		now:          now,
		history:      history.New(opts.HistoryLimit),
		transcript:   newTranscript(opts.TranscriptLimit),
		bus:          events.New[Event](events.WithLogger(logger), events.WithName("session")),
		ctx:          ctx,
		cancel:       cancel,
	}
	m.machine = state.NewMachine(id, state.WithTracer(tracer), state.WithClock(now))
	return m, nil
}

// ID returns the session identifier used in logs and spans.
func (m *Manager) ID() string {
	return m.id
}

// State returns the current lifecycle state.
func (m *Manager) State() state.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.machine.Current()
}

// PID returns the pid of the owned process, or 0.
func (m *Manager) PID() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.run == nil {
		return 0
	}
	return m.run.handle.PID()
}

// Transitions returns every lifecycle transition so far.
func (m *Manager) Transitions() []state.TransitionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.machine.History()
}

// Subscribe registers handler for every subsequent event and returns a
// function removing it. Each handler runs on its own goroutine and sees events
// in publish order.
func (m *Manager) Subscribe(handler func(Event)) func() {
	return m.bus.Subscribe(handler)
}

// Transcript returns the retained Text events, oldest first.
func (m *Manager) Transcript() []Event {
	m.pubMu.Lock()
	defer m.pubMu.Unlock()
	return m.transcript.snapshot()
}

// History returns the submitted commands, oldest first.
func (m *Manager) History() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.history.Entries()
}

// SeedHistory replaces the history, typically with entries restored from disk.
func (m *Manager) SeedHistory(entries []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history.Seed(entries)
}

// HistoryUp recalls the previous command.
func (m *Manager) HistoryUp() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.history.Up()
}

// HistoryDown recalls the next command; past the newest it returns "" and leaves recall.
func (m *Manager) HistoryDown() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.history.Down()
}

// HistoryBrowsing reports whether the recall cursor is active.
func (m *Manager) HistoryBrowsing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.history.Browsing()
}

// ResetHistoryCursor leaves recall mode.
func (m *Manager) ResetHistoryCursor() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history.Reset()
}

// Start launches the interpreter. It is a no-op while Starting or Running.
// Failures leave the session Crashed, publish one Text event and return a
// *SpawnError.
func (m *Manager) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := m.tracer.Start(ctx, "session.start", trace.WithAttributes(attribute.String("session_id", m.id)))
	defer span.End()

	m.opMu.Lock()
	defer m.opMu.Unlock()

	err := m.startLocked(ctx, span)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (m *Manager) startLocked(ctx context.Context, span trace.Span) error {
	started := time.Now()
	defer func() {
		span.SetAttributes(attribute.Int64("duration_ms", time.Since(started).Milliseconds()))
	}()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if current := m.machine.Current(); current.Live() {
		m.mu.Unlock()
		m.logger.Info("start ignored; session already live", "state", current)
		span.SetAttributes(attribute.Bool("already_live", true))
		return nil
	}
	prior := m.run
	m.mu.Unlock()

	if prior != nil {
		m.reap(prior)
	}

	m.mu.Lock()
	livePID := 0
	if m.run != nil {
		livePID = m.run.handle.PID()
	}
	invariants.CheckSingleProcess(ctx, "session.start", livePID)
	err := m.machine.Transition(ctx, state.Starting, "start requested")
	m.mu.Unlock()
	if err != nil {
		return err
	}
	m.logger.Info("starting interpreter")

	cfg, err := m.builder.Build(ctx)
	if err != nil {
		return m.failStart(ctx, &SpawnError{Op: "resolve", Err: err})
	}

	handle, err := m.spawner.Spawn(ctx, cfg)
	if err != nil {
		return m.failStart(ctx, &SpawnError{Op: "spawn", Err: err})
	}
	span.SetAttributes(attribute.Int("pid", handle.PID()))

	r := m.newRun(handle)
	m.mu.Lock()
	m.run = r
	m.mu.Unlock()
	r.begin()

	if m.startupProbe > 0 {
		probe := time.NewTimer(m.startupProbe)
		select {
		case <-r.exited:
		case <-probe.C:
		case <-ctx.Done():
		}
		probe.Stop()
	}

	m.mu.Lock()
	if r.finished {
		status := r.status
		m.mu.Unlock()
		return m.failStart(ctx, &SpawnError{Op: "startup", Err: &UnexpectedExit{Status: status}})
	}
	err = m.machine.Transition(ctx, state.Running, "process alive")
	m.mu.Unlock()
	if err != nil {
		return err
	}

	m.logger.Info("interpreter running", "pid", handle.PID(), "path", cfg.Path)
	return nil
}

func (m *Manager) failStart(ctx context.Context, err *SpawnError) error {
	m.mu.Lock()
	if transitionErr := m.machine.Transition(ctx, state.Crashed, err.Op+" failed"); transitionErr != nil {
		m.logger.Warn("crash transition rejected", "error", transitionErr)
	}
	m.mu.Unlock()

	m.logger.Error("interpreter failed to start", "op", err.Op, "error", err.Err)
	m.publishText("Failed to start interpreter: " + err.Err.Error())
	return err
}

// reap discards a run left behind by a crash before a new start.
func (m *Manager) reap(r *run) {
	m.mu.Lock()
	r.stopRequested = true
	finished := r.finished
	m.mu.Unlock()

	if !finished {
		_ = r.handle.Kill()
		if !waitClosed(r.exited, m.killWait) {
			m.logger.Warn("crashed process did not exit after kill; abandoning", "pid", r.handle.PID())
			r.silence()
		}
	}

	m.mu.Lock()
	if m.run == r {
		m.run = nil
	}
	m.mu.Unlock()
}

// Submit sends raw to the interpreter. It returns once the write is queued.
func (m *Manager) Submit(ctx context.Context, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return ErrEmptyCommand
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := m.tracer.Start(ctx, "session.submit", trace.WithAttributes(
		attribute.String("session_id", m.id),
		attribute.Int("command_bytes", len(raw)),
	))
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.machine.Current() != state.Running || m.run == nil {
		span.SetStatus(codes.Error, ErrNotRunning.Error())
		return ErrNotRunning
	}
	r := m.run

	m.history.Add(raw)
	invariants.CheckHistoryBounded(ctx, "session.submit", m.history.Len(), m.history.Limit())

	wire := m.wrapper.Wrap(raw)
	clears := m.wrapper.ClearsScreen(raw)

	m.pubMu.Lock()
	if clears {
		m.publishLocked(Event{Kind: EventClear})
	}
	m.publishLocked(Event{Kind: EventText, Text: m.echoPrompt + raw})
	r.input.Publish([]byte(wire + "\n"))
	m.pubMu.Unlock()

	m.logger.Info("command submitted", "bytes", len(raw), "wire_bytes", len(wire), "clear", clears)
	m.logger.Debug("command text", "raw", raw)
	return nil
}

// Stop ends the interpreter and returns the session to Idle. It escalates from
// a termination request to a kill, and after the kill wait assumes the process
// is gone. It is a no-op when Idle.
func (m *Manager) Stop(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := m.tracer.Start(ctx, "session.stop", trace.WithAttributes(attribute.String("session_id", m.id)))
	defer span.End()

	m.opMu.Lock()
	defer m.opMu.Unlock()

	err := m.stopLocked(ctx, span)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (m *Manager) stopLocked(ctx context.Context, span trace.Span) error {
	started := time.Now()
	defer func() {
		span.SetAttributes(attribute.Int64("duration_ms", time.Since(started).Milliseconds()))
	}()

	m.mu.Lock()
	if m.machine.Current() == state.Idle {
		m.mu.Unlock()
		return nil
	}
	r := m.run
	finished := false
	if r != nil {
		r.stopRequested = true
		finished = r.finished
	}
	if err := m.machine.Transition(ctx, state.Stopping, "stop requested"); err != nil {
		m.mu.Unlock()
		return err
	}
	m.mu.Unlock()

	var stopErr error
	if r != nil {
		span.SetAttributes(attribute.Int("pid", r.handle.PID()))
		if finished {
			waitClosed(r.exited, m.drainTimeout)
		} else {
			stopErr = m.terminate(ctx, r)
		}
	}

	m.mu.Lock()
	if m.run == r {
		m.run = nil
	}
	err := m.machine.Transition(ctx, state.Idle, "process exited")
	if r != nil && r.finished {
		span.SetAttributes(attribute.Int("exit_code", r.status.Code))
	}
	m.mu.Unlock()
	if err != nil {
		return err
	}

	m.logger.Info("interpreter stopped")
	return stopErr
}

func (m *Manager) terminate(ctx context.Context, r *run) error {
	select {
	case <-r.exited:
		return nil
	default:
	}

	pid := r.handle.PID()
	if err := r.handle.Terminate(); err != nil {
		m.logger.Warn("terminate request failed", "pid", pid, "error", err)
	}
	if done, err := waitClosedContext(ctx, r.exited, m.stopGrace); done {
		return nil
	} else if err != nil {
		_ = r.handle.Kill()
		r.silence()
		return err
	}

	m.logger.Warn("interpreter ignored termination; killing", "pid", pid, "grace", m.stopGrace)
	if err := r.handle.Kill(); err != nil {
		m.logger.Warn("kill failed", "pid", pid, "error", err)
	}
	if done, err := waitClosedContext(ctx, r.exited, m.killWait); done {
		return nil
	} else if err != nil {
		r.silence()
		return err
	}

	m.logger.Warn("no exit notification after kill; assuming killed", "pid", pid)
	r.silence()
	return nil
}

// Restart stops the session, waits the settling delay and starts it again.
func (m *Manager) Restart(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := m.tracer.Start(ctx, "session.restart", trace.WithAttributes(attribute.String("session_id", m.id)))
	defer span.End()

	m.opMu.Lock()
	defer m.opMu.Unlock()

	fail := func(err error) error {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return fail(ErrClosed)
	}

	m.publishText(RestartBanner)
	if err := m.stopLocked(ctx, span); err != nil {
		return fail(err)
	}
	if err := m.sleep(ctx, m.restartDelay); err != nil {
		return fail(err)
	}
	if err := m.startLocked(ctx, span); err != nil {
		return fail(err)
	}
	m.publishText(RestartedBanner)
	return nil
}

// Close stops the session and shuts down event delivery after draining it.
func (m *Manager) Close(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	_, span := m.tracer.Start(ctx, "session.stop", trace.WithAttributes(attribute.String("session_id", m.id)))
	err := m.stopLocked(ctx, span)
	span.End()

	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	m.bus.Close()
	return err
}

func (m *Manager) publishText(text string) {
	m.publish(Event{Kind: EventText, Text: text})
}

func (m *Manager) publish(event Event) {
	m.pubMu.Lock()
	defer m.pubMu.Unlock()
	m.publishLocked(event)
}

func (m *Manager) publishLocked(event Event) {
	m.seq++
	event.Seq = m.seq
	if event.Time.IsZero() {
		event.Time = m.now()
	}
	switch event.Kind {
	case EventText:
		m.transcript.add(event)
	case EventClear:
		m.transcript.reset()
	}
	m.bus.Publish(event)
}

// run is one spawned process and the goroutines serving it.
type run struct {
	m      *Manager
	handle process.Handle
	demux  *demux.Demux

	input      *events.Bus[[]byte]
	stopWriter func()
	fetches    *events.Bus[string]

	readers sync.WaitGroup
	exited  chan struct{}
	muted   atomic.Bool
	failed  atomic.Bool

	// Guarded by Manager.mu.
	stopRequested bool
	finished      bool
	status        process.ExitStatus
}

func (m *Manager) newRun(handle process.Handle) *run {
	r := &run{
		m:       m,
		handle:  handle,
		input:   events.New[[]byte](events.WithLogger(m.logger), events.WithName("session.input")),
		fetches: events.New[string](events.WithLogger(m.logger), events.WithName("session.fetch")),
		exited:  make(chan struct{}),
	}
	r.demux = demux.New(r.onOutput, demux.Options{
		Marker:    m.marker,
		Separator: wrapper.Separator,
		Prompts:   m.prompts,
	})
	return r
}

func (r *run) begin() {
	r.stopWriter = r.input.Subscribe(r.write)
	if r.m.fetcher != nil {
		r.fetches.Subscribe(r.fetch)
	}

	r.readers.Add(2)
	go r.read(demux.Stdout, r.handle.Stdout())
	go r.read(demux.Stderr, r.handle.Stderr())
	go r.watch()
}

func (r *run) read(stream demux.Stream, reader io.Reader) {
	defer r.readers.Done()
	buf := make([]byte, readBufferSize)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			r.demux.Feed(stream, buf[:n])
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				r.m.logger.Debug("output stream closed", "stream", stream, "error", err)
			}
			r.demux.Flush(stream)
			return
		}
	}
}

// onOutput runs under the demux lock, so every classified line is published
// in the order the streams produced it.
func (r *run) onOutput(out demux.Output) {
	if r.muted.Load() {
		return
	}
	switch out.Kind {
	case demux.KindText:
		r.m.publish(Event{Kind: EventText, Text: out.Text})
	case demux.KindArtifact:
		r.m.publish(Event{Kind: EventArtifactReady, Path: out.Path})
		if r.m.fetcher != nil {
			r.fetches.Publish(out.Path)
		}
	}
}

func (r *run) fetch(path string) {
	data, err := r.m.fetcher.Fetch(r.m.ctx, path)
	if r.muted.Load() {
		return
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		r.m.logger.Warn("artifact fetch failed", "path", path, "error", err)
		reason := err
		var fetchErr *artifact.FetchError
		if errors.As(err, &fetchErr) && fetchErr.Err != nil {
			reason = fetchErr.Err
		}
		r.m.publishText(fmt.Sprintf("Failed to fetch artifact %s: %v", path, reason))
		return
	}
	r.m.publish(Event{
		Kind: EventArtifact,
		Path: path,
		Data: data,
		MIME: artifact.DetectMIME(path, data),
	})
}

func (r *run) write(data []byte) {
	if r.failed.Load() {
		return
	}
	if _, err := r.handle.Write(data); err != nil {
		r.failed.Store(true)
		r.m.writeFailed(r, &WriteError{Err: err})
	}
}

// writeFailed treats a broken stdin like an unexpected exit.
func (m *Manager) writeFailed(r *run, err *WriteError) {
	m.mu.Lock()
	crashed := false
	if m.run == r && !r.stopRequested && !r.finished && m.machine.Current() == state.Running {
		if transitionErr := m.machine.Transition(m.ctx, state.Crashed, "stdin write failed"); transitionErr == nil {
			crashed = true
			m.publishText("Interpreter stopped accepting input: " + err.Err.Error())
		}
	}
	m.mu.Unlock()

	if !crashed {
		return
	}
	m.logger.Error("interpreter write failed", "pid", r.handle.PID(), "error", err.Err)
	_ = r.handle.Kill()
}

func (r *run) watch() {
	status, ok := <-r.handle.Exited()
	if !ok {
		status = process.ExitStatus{Code: -1, Killed: true}
	}

	drained := waitGroupTimeout(&r.readers, r.m.drainTimeout)
	if !drained {
		r.m.logger.Warn("output readers still open after exit", "pid", r.handle.PID())
	}
	if err := r.handle.Close(); err != nil {
		r.m.logger.Debug("close interpreter pipes", "pid", r.handle.PID(), "error", err)
	}
	if !drained && !waitGroupTimeout(&r.readers, r.m.drainTimeout) {
		r.m.logger.Warn("output readers did not return after pipes closed", "pid", r.handle.PID())
	}
	r.demux.Close()
	r.stopWriter()
	r.input.Close()
	r.fetches.Close()

	m := r.m
	m.mu.Lock()
	r.finished = true
	r.status = status
	crashed := false
	if m.run == r && !r.stopRequested && m.machine.Current() == state.Running {
		if err := m.machine.Transition(m.ctx, state.Crashed, "unexpected exit"); err == nil {
			crashed = true
			m.publishText(capitalize((&UnexpectedExit{Status: status}).Error()))
		}
	}
	m.mu.Unlock()

	if crashed {
		m.logger.Error("interpreter crashed", "pid", r.handle.PID(), "exit_code", status.Code, "status", status.String())
	} else {
		m.logger.Info("interpreter exited", "pid", r.handle.PID(), "status", status.String())
	}
	close(r.exited)
}

func (r *run) silence() {
	r.muted.Store(true)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func durationOr(value, fallback time.Duration) time.Duration {
	if value < 0 {
		return 0
	}
	if value == 0 {
		return fallback
	}
	return value
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func waitClosed(ch <-chan struct{}, d time.Duration) bool {
	done, _ := waitClosedContext(context.Background(), ch, d)
	return done
}

func waitClosedContext(ctx context.Context, ch <-chan struct{}, d time.Duration) (bool, error) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ch:
		return true, nil
	case <-timer.C:
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func waitGroupTimeout(wg *sync.WaitGroup, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	return waitClosed(done, d)
}
