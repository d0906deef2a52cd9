//go:build windows

package runner

import "os/exec"

// setProcAttr is a no-op on Windows. Robocopy has no graceful
// shutdown signal, so cancellation falls back to the default
// Process.Kill.
func setProcAttr(cmd *exec.Cmd) {}
