//go:build windows

package supervisor

import "os"

// terminateProcess kills pid; Windows has no SIGTERM for console children.
func terminateProcess(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}
