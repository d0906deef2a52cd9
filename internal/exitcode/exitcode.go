// Package exitcode defines the exit status contract shared by the
// go-folder-mirror binaries.
//
// The codes follow the shell convention: 126/127 are reserved for the
// launcher's own failure modes so they can never collide with anything
// the backup entry point itself returns (0, 1 or 2). Schedulers and
// wrapper scripts may check these symbolically rather than using magic
// numbers.
package exitcode

import (
	"errors"
	"os/exec"
	"syscall"
)

const (
	// Success indicates the run completed with no failed tasks.
	Success = 0

	// Failure indicates one or more tasks failed, or a runtime error.
	Failure = 1

	// ConfigError indicates the configuration could not be loaded or
	// did not validate.
	ConfigError = 2

	// NotExecutable is returned by the launcher when the entry point
	// exists but could not be started.
	NotExecutable = 126

	// NotFound is returned by the launcher when the entry point is
	// missing from the launcher's directory.
	NotFound = 127

	// SignalBase is added to the signal number when a child is
	// terminated by a signal (e.g. SIGTERM -> 143).
	SignalBase = 128
)

// FromWaitError extracts the exit code from an (*exec.Cmd).Wait error.
// A nil error is a clean zero exit. Signal deaths are reported as
// SignalBase + signal number. Errors that carry no wait status at all
// map to Failure.
func FromWaitError(err error) int {
	if err == nil {
		return Success
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				return SignalBase + int(status.Signal())
			}
			return status.ExitStatus()
		}
	}

	return Failure
}
