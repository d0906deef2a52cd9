package mirror

import (
	"context"
	"os/exec"
	"strings"

	"github.com/randomizedcoder/go-folder-mirror/internal/config"
)

// rsync exit code 24 means source files vanished mid-transfer, which
// is routine on live filesystems.
const rsyncExitVanished = 24

// RsyncConfig holds configuration for rsync command construction.
type RsyncConfig struct {
	// BinaryPath is the path to the rsync binary.
	BinaryPath string

	// Progress enables machine-readable whole-transfer progress on
	// stdout (--info=progress2) for stats parsing.
	Progress bool

	// Stats prints the end-of-run transfer summary for parsing.
	Stats bool

	// DryRun shows what would be transferred without copying (-n).
	DryRun bool
}

// DefaultRsyncConfig returns an RsyncConfig with sensible defaults.
func DefaultRsyncConfig() *RsyncConfig {
	return &RsyncConfig{
		BinaryPath: "rsync",
		Progress:   true,
		Stats:      true,
	}
}

// RsyncBuilder implements Builder for rsync processes.
type RsyncBuilder struct {
	config *RsyncConfig
}

// NewRsyncBuilder creates a new rsync builder with the given configuration.
func NewRsyncBuilder(cfg *RsyncConfig) *RsyncBuilder {
	return &RsyncBuilder{
		config: cfg,
	}
}

// Name returns "rsync".
func (b *RsyncBuilder) Name() string {
	return "rsync"
}

// Success reports whether exitCode is 0 or the vanished-files code.
func (b *RsyncBuilder) Success(exitCode int) bool {
	return exitCode == 0 || exitCode == rsyncExitVanished
}

// HandlesRetry returns false; the runner re-invokes rsync on failure.
func (b *RsyncBuilder) HandlesRetry() bool {
	return false
}

// BuildCommand creates an exec.Cmd for rsync with all configured options.
func (b *RsyncBuilder) BuildCommand(ctx context.Context, task config.Task) (*exec.Cmd, error) {
	args := b.buildArgs(task)
	cmd := exec.CommandContext(ctx, b.config.BinaryPath, args...)
	return cmd, nil
}

// buildArgs constructs the rsync command-line arguments.
func (b *RsyncBuilder) buildArgs(task config.Task) []string {
	// Archive mode: recursive, preserving permissions and times
	args := []string{"-a"}

	// Full backups mirror the source, removing files deleted there
	if task.BackupType != config.BackupIncremental {
		args = append(args, "--delete")
	}

	// Keep partially transferred files for restartable copies
	args = append(args, "--partial")

	// Progress and summary output for stats parsing
	if b.config.Progress {
		args = append(args, "--info=progress2")
	}
	if b.config.Stats {
		args = append(args, "--stats")
	}

	if b.config.DryRun {
		args = append(args, "-n")
	}

	// Exclusions: rsync uses one pattern syntax for dirs and files
	for _, pattern := range task.Exclude {
		args = append(args, "--exclude", pattern)
	}

	// Trailing slash copies the contents of source, not the directory
	// itself, matching robocopy semantics
	args = append(args, ensureTrailingSlash(task.Source), task.Destination)

	return args
}

func ensureTrailingSlash(path string) string {
	if strings.HasSuffix(path, "/") {
		return path
	}
	return path + "/"
}

// Config returns the rsync configuration.
func (b *RsyncBuilder) Config() *RsyncConfig {
	return b.config
}

// CommandString returns the command that would be executed (for debugging).
func (b *RsyncBuilder) CommandString(task config.Task) string {
	args := b.buildArgs(task)
	return b.config.BinaryPath + " " + strings.Join(args, " ")
}
