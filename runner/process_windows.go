//go:build windows

package runner

import (
	"os/exec"
	"syscall"
)

func shellCommand(line string) (string, []string) {
	return "cmd", []string{"/C", line}
}

func configureProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}

// killProcessGroup terminates the shell. Windows has no process group kill
// equivalent to the unix one, so children of the shell may survive.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

// killGroupMembers is a no-op on Windows, where a reaped shell leaves no
// group handle to signal.
func killGroupMembers(int) error {
	return nil
}
