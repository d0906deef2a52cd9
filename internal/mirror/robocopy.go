package mirror

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/randomizedcoder/go-folder-mirror/internal/config"
)

// Robocopy exit codes are a bitmask. Bits 0-2 report copy activity
// (files copied, extras, mismatches); bit 3 and above mean failures.
const robocopyFailureThreshold = 8

// RobocopyConfig holds configuration for robocopy command construction.
type RobocopyConfig struct {
	// BinaryPath is the path to the robocopy binary.
	BinaryPath string

	// RetryCount is passed as /R:n, retries per failed file.
	RetryCount int

	// WaitTime is passed as /W:n, seconds between retries.
	WaitTime int

	// DryRun lists files without copying (/L).
	DryRun bool
}

// DefaultRobocopyConfig returns a RobocopyConfig with sensible defaults.
func DefaultRobocopyConfig() *RobocopyConfig {
	return &RobocopyConfig{
		BinaryPath: "robocopy",
		RetryCount: 3,
		WaitTime:   5,
	}
}

// RobocopyBuilder implements Builder for robocopy processes.
type RobocopyBuilder struct {
	config *RobocopyConfig
}

// NewRobocopyBuilder creates a new robocopy builder with the given configuration.
func NewRobocopyBuilder(cfg *RobocopyConfig) *RobocopyBuilder {
	return &RobocopyBuilder{
		config: cfg,
	}
}

// Name returns "robocopy".
func (b *RobocopyBuilder) Name() string {
	return "robocopy"
}

// Success reports whether exitCode is below the failure threshold.
func (b *RobocopyBuilder) Success(exitCode int) bool {
	return exitCode >= 0 && exitCode < robocopyFailureThreshold
}

// HandlesRetry returns true; /R and /W make robocopy retry per file.
func (b *RobocopyBuilder) HandlesRetry() bool {
	return true
}

// BuildCommand creates an exec.Cmd for robocopy with all configured options.
func (b *RobocopyBuilder) BuildCommand(ctx context.Context, task config.Task) (*exec.Cmd, error) {
	args := b.buildArgs(task)
	cmd := exec.CommandContext(ctx, b.config.BinaryPath, args...)
	return cmd, nil
}

// buildArgs constructs the robocopy command-line arguments.
func (b *RobocopyBuilder) buildArgs(task config.Task) []string {
	args := []string{task.Source, task.Destination}

	// Copy mode: full backups mirror the source (deleting extras),
	// incremental backups only add and update
	if task.BackupType == config.BackupIncremental {
		args = append(args, "/E")
	} else {
		args = append(args, "/MIR")
	}

	// Restartable copies with timestamped, summary-only output
	args = append(args,
		"/Z",
		"/TS",
		"/NP",
		"/NDL",
		"/NFL",
	)

	// Per-file retry
	args = append(args,
		fmt.Sprintf("/R:%d", b.config.RetryCount),
		fmt.Sprintf("/W:%d", b.config.WaitTime),
	)

	// List-only mode
	if b.config.DryRun {
		args = append(args, "/L")
	}

	// Exclusions: directories first, then file patterns
	dirs, files := task.SplitExclude()
	if len(dirs) > 0 {
		args = append(args, "/XD")
		args = append(args, dirs...)
	}
	if len(files) > 0 {
		args = append(args, "/XF")
		args = append(args, files...)
	}

	return args
}

// Config returns the robocopy configuration.
func (b *RobocopyBuilder) Config() *RobocopyConfig {
	return b.config
}

// CommandString returns the command that would be executed (for debugging).
func (b *RobocopyBuilder) CommandString(task config.Task) string {
	args := b.buildArgs(task)
	return b.config.BinaryPath + " " + strings.Join(args, " ")
}
