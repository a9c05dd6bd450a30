//go:build !windows

package runner

import (
	"errors"
	"fmt"
	"os/exec"
	"syscall"
)

func shellCommand(line string) (string, []string) {
	return "/bin/sh", []string{"-c", line}
}

// configureProcAttr starts the command as the leader of a new process group
func configureProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}

// killProcessGroup sends SIGKILL to the command's whole process group
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	pid := cmd.Process.Pid
	// Negative PID targets the process group
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil {
		if err2 := syscall.Kill(pid, syscall.SIGKILL); err2 != nil {
			return fmt.Errorf("failed to kill process group -%d: %v, also failed to kill process %d: %v", pid, err, pid, err2)
		}
	}
	return nil
}

// killGroupMembers kills whatever is left in the group led by an already
// reaped process. Only the group is signalled since the pid itself may have
// been reused.
func killGroupMembers(pid int) error {
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("failed to kill process group -%d: %w", pid, err)
	}
	return nil
}
