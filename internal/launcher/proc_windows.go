//go:build windows

package launcher

import "os/exec"

// setProcAttr is a no-op on Windows: there is no SIGTERM equivalent,
// so cancellation falls back to the default Process.Kill.
func setProcAttr(cmd *exec.Cmd) {}
