package session

import (
	"errors"
	"fmt"

	"github.com/chalkboard/interp/internal/process"
)

var (
	// ErrNotRunning is returned by Submit outside the Running state.
	ErrNotRunning = errors.New("interpreter session is not running")
	// ErrEmptyCommand is returned by Submit for blank input.
	ErrEmptyCommand = errors.New("command is empty")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session manager is closed")
)

// SpawnError reports why Start could not bring up an interpreter.
type SpawnError struct {
	// Op is the failing step: resolve, spawn or startup.
	Op  string
	Err error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("start interpreter (%s): %v", e.Op, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// Is enables errors.Is checks against any SpawnError.
func (e *SpawnError) Is(target error) bool {
	_, ok := target.(*SpawnError)
	return ok
}

// WriteError reports a failed write to the interpreter's stdin.
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write to interpreter: %v", e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// UnexpectedExit reports a process that ended without a stop request.
type UnexpectedExit struct {
	Status process.ExitStatus
}

func (e *UnexpectedExit) Error() string {
	return fmt.Sprintf("interpreter exited unexpectedly (%s)", e.Status)
}
