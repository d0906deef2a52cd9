// Package mirror provides abstractions for building mirror tool commands.
package mirror

import (
	"context"
	"os/exec"

	"github.com/randomizedcoder/go-folder-mirror/internal/config"
)

// Builder creates executable commands for backup tasks.
// This interface allows the runner to be tool-agnostic.
type Builder interface {
	// BuildCommand returns a ready-to-start command for the given task.
	// The command should NOT be started yet.
	BuildCommand(ctx context.Context, task config.Task) (*exec.Cmd, error)

	// Name returns a human-readable name for this tool.
	Name() string

	// Success reports whether exitCode counts as a successful run.
	// Robocopy uses codes 0-7 for success; rsync only 0 and 24.
	Success(exitCode int) bool

	// HandlesRetry reports whether the tool retries failed copies
	// itself. When false the runner drives the retry loop.
	HandlesRetry() bool
}
