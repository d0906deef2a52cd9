//go:build !windows

package launcher

import (
	"os/exec"
	"syscall"
)

// setProcAttr makes context cancellation deliver SIGTERM instead of
// the default SIGKILL, giving the entry point a chance to let the
// running mirror tool finish its current file and write its summary.
// The entry point forwards termination to its own children, so
// signalling just the child is enough.
func setProcAttr(cmd *exec.Cmd) {
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return cmd.Process.Signal(syscall.SIGTERM)
	}
}
