package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
)

// LaunchConfig is the fully resolved description of one interpreter launch.
type LaunchConfig struct {
	Path      string
	Args      []string
	Dir       string
	Env       []string
	Overrides map[string]string
}

// ExitStatus describes how a child process ended.
type ExitStatus struct {
	Code     int
	Signaled bool
	Signal   string
	// Killed is set when the process was forcibly terminated, or assumed so after an unanswered kill.
	Killed bool
	Err    error
}

func (s ExitStatus) String() string {
	switch {
	case s.Signaled && s.Signal != "":
		return fmt.Sprintf("terminated by signal %s", s.Signal)
	case s.Signaled:
		return "terminated by signal"
	case s.Killed:
		return "killed"
	default:
		return fmt.Sprintf("exit code %d", s.Code)
	}
}

// Success reports a zero exit code without signal or kill.
func (s ExitStatus) Success() bool {
	return s.Code == 0 && !s.Signaled && !s.Killed && s.Err == nil
}

// Handle owns one running child process and its three byte streams.
type Handle interface {
	PID() int
	// Write appends to the child's stdin. It may block on a full pipe, so callers
	// that must stay responsive should issue writes from their own goroutine.
	Write(p []byte) (int, error)
	CloseInput() error
	Stdout() io.Reader
	Stderr() io.Reader
	// Exited delivers exactly one ExitStatus and is then closed.
	Exited() <-chan ExitStatus
	// Terminate requests a graceful exit of the whole process tree.
	Terminate() error
	// Kill forcibly ends the whole process tree.
	Kill() error
	// Close releases the stdin, stdout and stderr pipes. Pending reads on
	// Stdout and Stderr return once it is called.
	Close() error
}

// Spawner launches child processes.
type Spawner interface {
	Spawn(ctx context.Context, cfg LaunchConfig) (Handle, error)
}

// ExecSpawner spawns real OS processes through os/exec.
type ExecSpawner struct{}

// NewExecSpawner returns the default OS-backed spawner.
func NewExecSpawner() ExecSpawner {
	return ExecSpawner{}
}

// Spawn starts cfg.Path with stdout and stderr attached to dedicated pipes.
//
// The process deliberately outlives ctx; its lifetime is controlled through
// Terminate and Kill on the returned handle.
func (ExecSpawner) Spawn(ctx context.Context, cfg LaunchConfig) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("executable path is required")
	}

	// #nosec G204 -- the executable and args come from the resolved launch configuration.
	cmd := exec.Command(path, cfg.Args...)
	cmd.Dir = cfg.Dir
	if len(cfg.Env) > 0 {
		cmd.Env = append([]string(nil), cfg.Env...)
	}
	configureProcAttr(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		_ = stdin.Close()
		closeFiles(stdoutR, stdoutW)
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		closeFiles(stdoutR, stdoutW, stderrR, stderrW)
		return nil, fmt.Errorf("start %s: %w", path, err)
	}

	// The child holds its own copies of the write ends.
	closeFiles(stdoutW, stderrW)

	handle := &execHandle{
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdoutR,
		stderr: stderrR,
		exited: make(chan ExitStatus, 1),
	}
	go handle.wait()
	return handle, nil
}

type execHandle struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *os.File
	stderr *os.File
	exited chan ExitStatus

	writeMu     sync.Mutex
	closeOnce   sync.Once
	releaseOnce sync.Once
	killed    bool
	killMu    sync.Mutex
}

func (h *execHandle) PID() int {
	if h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

func (h *execHandle) Write(p []byte) (int, error) {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	return h.stdin.Write(p)
}

func (h *execHandle) CloseInput() error {
	var err error
	h.closeOnce.Do(func() {
		h.writeMu.Lock()
		defer h.writeMu.Unlock()
		err = h.stdin.Close()
	})
	return err
}

func (h *execHandle) Stdout() io.Reader { return h.stdout }

func (h *execHandle) Stderr() io.Reader { return h.stderr }

func (h *execHandle) Exited() <-chan ExitStatus { return h.exited }

func (h *execHandle) Terminate() error {
	if h.cmd.Process == nil {
		return errors.New("process not started")
	}
	return terminateTree(h.cmd.Process)
}

func (h *execHandle) Kill() error {
	if h.cmd.Process == nil {
		return errors.New("process not started")
	}
	h.killMu.Lock()
	h.killed = true
	h.killMu.Unlock()
	return killTree(h.cmd.Process)
}

func (h *execHandle) Close() error {
	err := h.CloseInput()
	h.releaseOnce.Do(func() {
		err = errors.Join(err, h.stdout.Close(), h.stderr.Close())
	})
	return err
}

func (h *execHandle) wait() {
	err := h.cmd.Wait()
	_ = h.CloseInput()

	status := ExitStatus{}
	if state := h.cmd.ProcessState; state != nil {
		status.Code = state.ExitCode()
		status.Signaled, status.Signal = signalInfo(state)
	}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		status.Err = err
	}
	h.killMu.Lock()
	status.Killed = h.killed
	h.killMu.Unlock()

	h.exited <- status
	close(h.exited)
}

func closeFiles(files ...*os.File) {
	for _, file := range files {
		if file != nil {
			_ = file.Close()
		}
	}
}

var _ Spawner = ExecSpawner{}
var _ Handle = (*execHandle)(nil)
