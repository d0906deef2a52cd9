package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or an error describing the problem.
func Validate(cfg *Config) error {
	var errs []error

	// At least one task is required for anything that runs or prints tasks
	if len(cfg.Tasks) == 0 && !cfg.Check {
		errs = append(errs, ValidationError{
			Field:   "backup_tasks",
			Message: "at least one task is required",
		})
	}

	// Per-task checks
	for i, task := range cfg.Tasks {
		field := fmt.Sprintf("backup_tasks[%d]", i)

		if task.Source == "" {
			errs = append(errs, ValidationError{
				Field:   field + ".source",
				Message: "source directory is required",
			})
		}
		if task.Destination == "" {
			errs = append(errs, ValidationError{
				Field:   field + ".destination",
				Message: "destination directory is required",
			})
		}
		if task.Source != "" && task.Source == task.Destination {
			errs = append(errs, ValidationError{
				Field:   field + ".destination",
				Message: "must differ from source",
			})
		}
		if task.BackupType != BackupFull && task.BackupType != BackupIncremental {
			errs = append(errs, ValidationError{
				Field:   field + ".backup_type",
				Message: fmt.Sprintf("must be %q or %q (got %q)", BackupFull, BackupIncremental, task.BackupType),
			})
		}
	}

	// Task filter must reference configured tasks
	known := make(map[string]bool, len(cfg.Tasks))
	for _, task := range cfg.Tasks {
		known[task.Name] = true
	}
	for _, name := range cfg.TaskFilter {
		if !known[name] {
			errs = append(errs, ValidationError{
				Field:   "task",
				Message: fmt.Sprintf("no configured task named %q", name),
			})
		}
	}

	// Tool selection must be valid
	validTools := map[string]bool{"auto": true, "robocopy": true, "rsync": true}
	if !validTools[cfg.Tool] {
		errs = append(errs, ValidationError{
			Field:   "tool",
			Message: fmt.Sprintf("must be one of: auto, robocopy, rsync (got %q)", cfg.Tool),
		})
	}

	// Retry options must be non-negative
	if cfg.Robocopy.RetryCount < 0 {
		errs = append(errs, ValidationError{
			Field:   "robocopy_options.retry_count",
			Message: "must be >= 0",
		})
	}
	if cfg.Robocopy.WaitTime < 0 {
		errs = append(errs, ValidationError{
			Field:   "robocopy_options.wait_time",
			Message: "must be >= 0",
		})
	}

	// Log level must be recognized
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if level := cfg.EffectiveLogLevel(); !validLevels[strings.ToLower(level)] {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("must be one of: debug, info, warn, error (got %q)", level),
		})
	}

	// Log format must be valid
	validFormats := map[string]bool{"json": true, "text": true}
	if format := cfg.EffectiveLogFormat(); !validFormats[strings.ToLower(format)] {
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("must be 'json' or 'text' (got %q)", format),
		})
	}

	// Rotation parameters
	if cfg.Logging.MaxSizeMB < 1 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Message: "must be >= 1",
		})
	}
	if cfg.Logging.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_backups",
			Message: "must be >= 0",
		})
	}

	// Metrics address must be host:port when set
	if cfg.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.MetricsAddr); err != nil {
			errs = append(errs, ValidationError{
				Field:   "metrics_addr",
				Message: fmt.Sprintf("must be host:port (got %q)", cfg.MetricsAddr),
			})
		}
	}

	// Return combined errors
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}
