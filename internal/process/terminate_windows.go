//go:build windows

package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"syscall"

	"golang.org/x/sys/windows"
)

// Interpreter launchers on Windows are often thin wrappers that start the real
// interpreter as a descendant, so termination always targets the whole tree.
func configureProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: windows.CREATE_NEW_PROCESS_GROUP | windows.CREATE_NO_WINDOW,
		HideWindow:    true,
	}
}

func terminateTree(proc *os.Process) error {
	return taskkill(proc.Pid)
}

func killTree(proc *os.Process) error {
	err := taskkill(proc.Pid)
	if killErr := proc.Kill(); killErr != nil && !errors.Is(killErr, os.ErrProcessDone) && err == nil {
		err = killErr
	}
	return err
}

func taskkill(pid int) error {
	if pid <= 0 {
		return errors.New("invalid pid")
	}
	// #nosec G204 -- pid is numeric.
	out, err := exec.Command("taskkill", "/T", "/F", "/PID", strconv.Itoa(pid)).CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		// 128: no such process.
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 128 {
			return nil
		}
		return fmt.Errorf("taskkill pid %d: %w (%s)", pid, err, string(out))
	}
	return nil
}

func signalInfo(*os.ProcessState) (bool, string) {
	return false, ""
}

// Alive reports whether pid still refers to a live process.
func Alive(pid int) (bool, error) {
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		if errors.Is(err, windows.ERROR_INVALID_PARAMETER) {
			return false, nil
		}
		return false, err
	}
	defer windows.CloseHandle(h)

	var code uint32
	if err := windows.GetExitCodeProcess(h, &code); err != nil {
		return false, err
	}
	const stillActive = 259
	return code == stillActive, nil
}
