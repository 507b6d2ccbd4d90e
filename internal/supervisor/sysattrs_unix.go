//go:build !windows

package supervisor

import (
	"os/exec"
	"syscall"
)

// configureSysProcAttr places the child in its own process group so the
// shutdown signal reaches it and anything it spawned, and a terminal
// Ctrl-C reaches only the forwarder.
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
