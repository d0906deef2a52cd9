//go:build !windows

package runner

import (
	"os/exec"
	"syscall"
)

// setProcAttr puts the tool in its own process group and arranges for
// cancellation to signal the whole group. rsync forks a receiver;
// signalling only the leader would leave it running.
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}

	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		pgid, err := syscall.Getpgid(cmd.Process.Pid)
		if err != nil {
			return cmd.Process.Signal(syscall.SIGTERM)
		}
		return syscall.Kill(-pgid, syscall.SIGTERM)
	}
}
