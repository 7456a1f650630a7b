// Package test provides shared testing utilities for the interpreter session.
//
// It holds scriptable fakes for the process boundary so session and console
// tests can drive a "child process" without launching one.
package test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/chalkboard/interp/internal/process"
	"github.com/stretchr/testify/require"
)

// DefaultWait bounds every blocking helper in this package.
const DefaultWait = 5 * time.Second

// Context returns a test context cancelled at cleanup.
func Context(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}

// TempDir creates a temporary directory removed when the test completes.
func TempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "interp-test-*")
	require.NoError(t, err, "failed to create temp dir")
	t.Cleanup(func() {
		os.RemoveAll(dir)
	})
	return dir
}

// CallLog records calls across fakes in the order they happened.
type CallLog struct {
	mu    sync.Mutex
	calls []string
}

// Add appends a formatted entry.
func (l *CallLog) Add(format string, args ...any) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, fmt.Sprintf(format, args...))
}

// Calls returns a copy of the recorded entries.
func (l *CallLog) Calls() []string {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

// Index returns the position of entry, or -1.
func (l *CallLog) Index(entry string) int {
	for i, call := range l.Calls() {
		if call == entry {
			return i
		}
	}
	return -1
}

// FakeHandle is an in-memory process.Handle. Output is written with Emit and
// the process ends with Exit, or through Terminate and Kill when enabled.
type FakeHandle struct {
	pid     int
	log     *CallLog
	stdoutR *io.PipeReader
	stdoutW *io.PipeWriter
	stderrR *io.PipeReader
	stderrW *io.PipeWriter
	exited  chan process.ExitStatus

	exitOnce sync.Once
	done     chan struct{}

	mu              sync.Mutex
	writes          []string
	writeErr        error
	terminateCalls  int
	killCalls       int
	closeCalls      int
	exitOnTerminate bool
	exitOnKill      bool
	onWrite         func(h *FakeHandle, data string)
}

// NewFakeHandle creates a live fake process that exits on Terminate and Kill.
func NewFakeHandle(pid int, log *CallLog) *FakeHandle {
	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()
	return &FakeHandle{
		pid:             pid,
		log:             log,
		stdoutR:         stdoutR,
		stdoutW:         stdoutW,
		stderrR:         stderrR,
		stderrW:         stderrW,
		exited:          make(chan process.ExitStatus, 1),
		done:            make(chan struct{}),
		exitOnTerminate: true,
		exitOnKill:      true,
	}
}

// IgnoreTerminate makes Terminate a no-op, as for a process that traps the signal.
func (h *FakeHandle) IgnoreTerminate() *FakeHandle {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.exitOnTerminate = false
	return h
}

// IgnoreKill makes Kill a no-op, as for a process stuck in the kernel.
func (h *FakeHandle) IgnoreKill() *FakeHandle {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.exitOnKill = false
	return h
}

// FailWrites makes every subsequent Write return err.
func (h *FakeHandle) FailWrites(err error) *FakeHandle {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.writeErr = err
	return h
}

// OnWrite installs a hook run after each successful Write.
func (h *FakeHandle) OnWrite(hook func(h *FakeHandle, data string)) *FakeHandle {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onWrite = hook
	return h
}

func (h *FakeHandle) PID() int { return h.pid }

func (h *FakeHandle) Write(p []byte) (int, error) {
	h.mu.Lock()
	if h.writeErr != nil {
		err := h.writeErr
		h.mu.Unlock()
		return 0, err
	}
	data := string(p)
	h.writes = append(h.writes, data)
	hook := h.onWrite
	h.mu.Unlock()

	h.log.Add("write %d", h.pid)
	if hook != nil {
		hook(h, data)
	}
	return len(p), nil
}

func (h *FakeHandle) CloseInput() error { return nil }

// Close ends pending reads on both output streams.
func (h *FakeHandle) Close() error {
	h.mu.Lock()
	h.closeCalls++
	h.mu.Unlock()
	_ = h.stdoutR.Close()
	_ = h.stderrR.Close()
	return nil
}

func (h *FakeHandle) Stdout() io.Reader { return h.stdoutR }

func (h *FakeHandle) Stderr() io.Reader { return h.stderrR }

func (h *FakeHandle) Exited() <-chan process.ExitStatus { return h.exited }

func (h *FakeHandle) Terminate() error {
	h.mu.Lock()
	h.terminateCalls++
	exits := h.exitOnTerminate
	h.mu.Unlock()

	h.log.Add("terminate %d", h.pid)
	if exits {
		h.Exit(process.ExitStatus{Code: -1, Signaled: true, Signal: "SIGTERM"})
	}
	return nil
}

func (h *FakeHandle) Kill() error {
	h.mu.Lock()
	h.killCalls++
	exits := h.exitOnKill
	h.mu.Unlock()

	h.log.Add("kill %d", h.pid)
	if exits {
		h.Exit(process.ExitStatus{Code: -1, Signaled: true, Signal: "SIGKILL", Killed: true})
	}
	return nil
}

// Emit writes text to stdout. It blocks until the session has read it.
func (h *FakeHandle) Emit(text string) error {
	_, err := io.WriteString(h.stdoutW, text)
	return err
}

// EmitStderr writes text to stderr.
func (h *FakeHandle) EmitStderr(text string) error {
	_, err := io.WriteString(h.stderrW, text)
	return err
}

// Exit closes both output streams and then reports status. Only the first call
// has an effect.
func (h *FakeHandle) Exit(status process.ExitStatus) {
	h.exitOnce.Do(func() {
		_ = h.stdoutW.Close()
		_ = h.stderrW.Close()
		h.log.Add("exit %d", h.pid)
		h.exited <- status
		close(h.exited)
		close(h.done)
	})
}

// Done is closed once Exit has run.
func (h *FakeHandle) Done() <-chan struct{} { return h.done }

// Writes returns everything written to stdin.
func (h *FakeHandle) Writes() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.writes...)
}

// TerminateCalls returns how many times Terminate ran.
func (h *FakeHandle) TerminateCalls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.terminateCalls
}

// KillCalls returns how many times Kill ran.
func (h *FakeHandle) KillCalls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.killCalls
}

// CloseCalls counts Close invocations.
func (h *FakeHandle) CloseCalls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closeCalls
}

// FakeSpawner is a spy process.Spawner handing out FakeHandles with pids 1, 2, ...
type FakeSpawner struct {
	Log *CallLog
	// Configure customizes each new handle before it is returned.
	Configure func(h *FakeHandle)

	mu      sync.Mutex
	err     error
	configs []process.LaunchConfig
	handles []*FakeHandle
}

// Fail makes subsequent spawns return err.
func (s *FakeSpawner) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *FakeSpawner) Spawn(ctx context.Context, cfg process.LaunchConfig) (process.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.configs = append(s.configs, cfg)
	if s.err != nil {
		err := s.err
		s.mu.Unlock()
		s.Log.Add("spawn failed")
		return nil, err
	}
	handle := NewFakeHandle(len(s.handles)+1, s.Log)
	s.handles = append(s.handles, handle)
	configure := s.Configure
	s.mu.Unlock()

	if configure != nil {
		configure(handle)
	}
	s.Log.Add("spawn %d", handle.pid)
	return handle, nil
}

// Spawns returns the number of spawn attempts.
func (s *FakeSpawner) Spawns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.configs)
}

// Handles returns every handle created so far.
func (s *FakeSpawner) Handles() []*FakeHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*FakeHandle(nil), s.handles...)
}

// Last returns the most recent handle, failing the test when there is none.
func (s *FakeSpawner) Last(t *testing.T) *FakeHandle {
	t.Helper()
	handles := s.Handles()
	require.NotEmpty(t, handles, "no process spawned")
	return handles[len(handles)-1]
}

// StaticBuilder returns a fixed launch configuration.
type StaticBuilder struct {
	Config process.LaunchConfig
	Err    error
}

func (b StaticBuilder) Build(ctx context.Context) (process.LaunchConfig, error) {
	if err := ctx.Err(); err != nil {
		return process.LaunchConfig{}, err
	}
	if b.Err != nil {
		return process.LaunchConfig{}, b.Err
	}
	cfg := b.Config
	if cfg.Path == "" {
		cfg.Path = "/opt/interp/bin/octave-cli"
	}
	return cfg, nil
}

// Recorder collects values delivered from another goroutine.
type Recorder[T any] struct {
	mu     sync.Mutex
	values []T
	notify chan struct{}
}

// NewRecorder creates an empty recorder.
func NewRecorder[T any]() *Recorder[T] {
	return &Recorder[T]{notify: make(chan struct{}, 1)}
}

// Add records value.
func (r *Recorder[T]) Add(value T) {
	r.mu.Lock()
	r.values = append(r.values, value)
	r.mu.Unlock()
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Values returns a copy of the recorded values.
func (r *Recorder[T]) Values() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T(nil), r.values...)
}

// WaitFor blocks until match accepts the recorded values or DefaultWait passes.
func (r *Recorder[T]) WaitFor(t *testing.T, match func([]T) bool) []T {
	t.Helper()
	deadline := time.NewTimer(DefaultWait)
	defer deadline.Stop()
	for {
		values := r.Values()
		if match(values) {
			return values
		}
		select {
		case <-r.notify:
		case <-deadline.C:
			t.Fatalf("timed out waiting for recorded values; have %d: %+v", len(values), values)
			return nil
		}
	}
}

// WaitLen blocks until at least n values are recorded.
func (r *Recorder[T]) WaitLen(t *testing.T, n int) []T {
	t.Helper()
	return r.WaitFor(t, func(values []T) bool { return len(values) >= n })
}

// Eventually polls condition until it holds or DefaultWait passes.
func Eventually(t *testing.T, condition func() bool, msg string) {
	t.Helper()
	require.Eventually(t, condition, DefaultWait, 5*time.Millisecond, msg)
}

// ErrBrokenPipe mimics the write failure of a process whose stdin closed.
var ErrBrokenPipe = errors.New("write |1: broken pipe")
