package runner

import (
	"errors"
	"os"
	"os/exec"
	"runtime"
	"syscall"
	"unicode/utf8"
)

func processByPID(pid int) (*os.Process, error) {
	return os.FindProcess(pid)
}

// configureProcessGroup starts cmd in a new process group on non-Windows
// hosts so that stop can signal the whole group, reliably reaching
// grandchildren a script spawns on its own.
func configureProcessGroup(cmd *exec.Cmd) {
	if runtime.GOOS == "windows" {
		return
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// signalGroup sends sig to the process group rooted at pid on non-Windows
// hosts; on Windows it kills the process itself whatever sig is (no
// group-kill equivalent).
func signalGroup(pid int, sig syscall.Signal) error {
	if runtime.GOOS == "windows" {
		proc, err := processByPID(pid)
		if err != nil {
			return err
		}
		return proc.Kill()
	}
	return syscall.Kill(-pid, sig)
}

// isProcessAlive is a best-effort liveness probe via signal 0.
func isProcessAlive(pid int) bool {
	if runtime.GOOS == "windows" {
		proc, err := processByPID(pid)
		if err != nil {
			return false
		}
		return proc.Signal(syscall.Signal(0)) == nil
	}
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}

func isNoSuchProcess(err error) bool {
	return errors.Is(err, syscall.ESRCH) || errors.Is(err, errProcessNotFound)
}

var errProcessNotFound = errors.New("process not found")

// isExitError reports whether err is the child simply exiting non-zero (as
// opposed to a wait failure the Run Manager couldn't otherwise account for).
func isExitError(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr)
}

// exitCode extracts the reaped child's exit code; processes killed by a
// signal report -1, matching os/exec convention.
func exitCode(cmd *exec.Cmd) int {
	if cmd.ProcessState == nil {
		return -1
	}
	return cmd.ProcessState.ExitCode()
}

// sanitizeUTF8 decodes raw log bytes as UTF-8, substituting the replacement
// character for any invalid sequence rather than failing the read.
func sanitizeUTF8(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	return string([]rune(string(data)))
}
