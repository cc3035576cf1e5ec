//go:build unix

package runner

import (
	"fmt"
	"syscall"
)

// getProcAttrs returns Unix-specific process attributes that create a new
// process group with the spawned shell as the leader. Every child the shell
// forks (the backend chain, any MPI ranks it launches) inherits this PGID,
// so a single signal to the group reaches the whole tree.
func getProcAttrs() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setpgid: true,
	}
}

// killProcessGroup signals an entire process group, used when the
// experiment-wide timeout elapses and a copy's shell tree must be killed.
func killProcessGroup(pid int, sig syscall.Signal) error {
	// Send signal to process group (negative PID)
	// The kernel correctly interprets negative values despite type conversion
	err := syscall.Kill(-pid, sig)
	if err != nil {
		// ESRCH means no such process/group - acceptable if already dead
		if err == syscall.ESRCH {
			return nil
		}
		return fmt.Errorf("failed to signal process group %d: %w", pid, err)
	}
	return nil
}

