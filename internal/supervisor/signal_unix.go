//go:build !windows

package supervisor

import "syscall"

// terminateProcess sends SIGTERM to the process group led by pid.
func terminateProcess(pid int) error {
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil {
		// not a group leader (or already gone): fall back to the pid itself
		return syscall.Kill(pid, syscall.SIGTERM)
	}
	return nil
}
