// Package config provides configuration management for go-folder-mirror.
package config

import "strings"

// DefaultTaskName is assigned to tasks configured without a name.
const DefaultTaskName = "Unnamed Task"

// Backup types accepted in task configuration.
const (
	BackupFull        = "full"        // mirror: delete extraneous files at destination
	BackupIncremental = "incremental" // copy new/changed files, keep extras
)

// Task describes one folder mirroring job from the backup_tasks list.
type Task struct {
	Name        string   `json:"name" yaml:"name"`
	Source      string   `json:"source" yaml:"source"`
	Destination string   `json:"destination" yaml:"destination"`
	BackupType  string   `json:"backup_type" yaml:"backup_type"` // full, incremental
	Exclude     []string `json:"exclude" yaml:"exclude"`
}

// SplitExclude partitions the exclude list into directory names and file
// patterns. Entries starting with "*" or containing a "." are treated as
// file patterns; everything else is a directory name.
func (t Task) SplitExclude() (dirs, files []string) {
	for _, item := range t.Exclude {
		if strings.HasPrefix(item, "*") || strings.Contains(item, ".") {
			files = append(files, item)
		} else {
			dirs = append(dirs, item)
		}
	}
	return dirs, files
}

// RobocopyOptions holds the retry settings from the robocopy_options key.
// Robocopy consumes them directly as /R and /W; for tools without native
// retry flags the runner applies them as a whole-task retry loop.
type RobocopyOptions struct {
	RetryCount int `json:"retry_count" yaml:"retry_count"`
	WaitTime   int `json:"wait_time" yaml:"wait_time"` // seconds between retries
}

// LoggingConfig holds the logging key. Level and File match the original
// configuration surface; the rotation parameters expose what used to be
// hard-coded (2 MiB, 5 backups).
type LoggingConfig struct {
	Level      string `json:"level" yaml:"level"`
	File       string `json:"file" yaml:"file"`
	Format     string `json:"format" yaml:"format"` // text, json
	Console    bool   `json:"console" yaml:"console"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups"`
}

// Config holds all configuration for go-folder-mirror: the file-backed
// keys (backup_tasks, logging, robocopy_options) plus flag-driven run
// modes and observability options.
type Config struct {
	// Modes
	RunBackup bool // unattended CLI run
	Check     bool // preflight checks only
	PrintCmd  bool // print mirror commands and exit
	DryRun    bool // list-only pass (/L, -n)

	// Selection
	ConfigFile string   // explicit config path; empty = search
	TaskFilter []string // run only these task names; empty = all
	Tool       string   // auto, robocopy, rsync

	// File-backed configuration
	Tasks    []Task
	Logging  LoggingConfig
	Robocopy RobocopyOptions

	// Observability
	MetricsAddr  string // prometheus listen address; empty = disabled
	TextfilePath string // textfile-collector output path; empty = disabled
	Verbose      bool
	TUIEnabled   bool
	LogLevel     string // flag override; empty = Logging.Level
	LogFormat    string // flag override; empty = Logging.Format

	// Output parsing pipeline
	StatsBufferSize    int
	StatsDropThreshold float64
}

// DefaultConfig returns a Config with sensible defaults. File and flag
// values are layered on top, so anything the user omits keeps these.
func DefaultConfig() *Config {
	return &Config{
		Tool: "auto",

		Robocopy: RobocopyOptions{
			RetryCount: 3,
			WaitTime:   5,
		},

		Logging: LoggingConfig{
			Level:      "INFO",
			File:       "logs/backup.log",
			Format:     "text",
			Console:    true,
			MaxSizeMB:  2,
			MaxBackups: 5,
		},

		TUIEnabled: true,

		StatsBufferSize:    1000,
		StatsDropThreshold: 0.01,
	}
}

// EffectiveLogLevel returns the flag override when set, otherwise the
// configured logging level.
func (c *Config) EffectiveLogLevel() string {
	if c.LogLevel != "" {
		return c.LogLevel
	}
	return c.Logging.Level
}

// EffectiveLogFormat returns the flag override when set, otherwise the
// configured logging format.
func (c *Config) EffectiveLogFormat() string {
	if c.LogFormat != "" {
		return c.LogFormat
	}
	return c.Logging.Format
}

// SelectedTasks returns the tasks to run, honoring the -task filter.
// With no filter all tasks are returned, in configuration order.
func (c *Config) SelectedTasks() []Task {
	if len(c.TaskFilter) == 0 {
		return c.Tasks
	}

	wanted := make(map[string]bool, len(c.TaskFilter))
	for _, name := range c.TaskFilter {
		wanted[name] = true
	}

	var selected []Task
	for _, task := range c.Tasks {
		if wanted[task.Name] {
			selected = append(selected, task)
		}
	}
	return selected
}
