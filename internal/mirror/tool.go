package mirror

import (
	"fmt"
	"runtime"

	"github.com/randomizedcoder/go-folder-mirror/internal/config"
)

// Detect resolves "auto" (or empty) to the platform's native mirror
// tool. An explicit tool name passes through unchanged.
func Detect(tool string) string {
	if tool != "" && tool != "auto" {
		return tool
	}
	if runtime.GOOS == "windows" {
		return "robocopy"
	}
	return "rsync"
}

// NewBuilder constructs the Builder for the configured tool.
func NewBuilder(cfg *config.Config) (Builder, error) {
	switch tool := Detect(cfg.Tool); tool {
	case "robocopy":
		rc := DefaultRobocopyConfig()
		rc.RetryCount = cfg.Robocopy.RetryCount
		rc.WaitTime = cfg.Robocopy.WaitTime
		rc.DryRun = cfg.DryRun
		return NewRobocopyBuilder(rc), nil

	case "rsync":
		rs := DefaultRsyncConfig()
		rs.DryRun = cfg.DryRun
		return NewRsyncBuilder(rs), nil

	default:
		return nil, fmt.Errorf("unknown mirror tool %q", tool)
	}
}
