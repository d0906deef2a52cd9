package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config file names searched, in order, when no -config flag is given.
// Paths are relative to the working directory, which the launcher pins
// to its own location.
var searchOrder = []string{"config.json", "config.yaml"}

// requiredKeys must all be present at the top level of the config file.
var requiredKeys = []string{"backup_tasks", "logging", "robocopy_options"}

// fileConfig is the on-disk form of the configuration. Logging and
// Robocopy are seeded with the current values before decoding so that
// partially specified objects keep their defaults.
type fileConfig struct {
	Tasks        []Task          `json:"backup_tasks" yaml:"backup_tasks"`
	Logging      LoggingConfig   `json:"logging" yaml:"logging"`
	Robocopy     RobocopyOptions `json:"robocopy_options" yaml:"robocopy_options"`
	Tool         string          `json:"tool" yaml:"tool"`
	MetricsAddr  string          `json:"metrics_addr" yaml:"metrics_addr"`
	TextfilePath string          `json:"textfile_path" yaml:"textfile_path"`
}

// Load reads the configuration file into cfg. The file is located via
// cfg.ConfigFile or the default search order, decoded as JSON or YAML
// by extension, and checked for the required top-level keys. Values
// already set via flags (tool, metrics address, textfile path) win over
// their file counterparts.
func Load(cfg *Config) error {
	path, err := findConfig(cfg.ConfigFile)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading configuration file: %w", err)
	}

	fc := fileConfig{
		Logging:  cfg.Logging,
		Robocopy: cfg.Robocopy,
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := checkRequiredKeysYAML(data); err != nil {
			return err
		}
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return fmt.Errorf("invalid YAML in configuration file %s: %w", path, err)
		}
	default:
		if err := checkRequiredKeysJSON(data); err != nil {
			return err
		}
		if err := json.Unmarshal(data, &fc); err != nil {
			return fmt.Errorf("invalid JSON in configuration file %s: %w", path, err)
		}
	}

	cfg.ConfigFile = path
	cfg.Tasks = fc.Tasks
	cfg.Logging = fc.Logging
	cfg.Robocopy = fc.Robocopy

	// Flags take precedence over file values.
	if cfg.Tool == "" || cfg.Tool == "auto" {
		if fc.Tool != "" {
			cfg.Tool = fc.Tool
		}
	}
	if cfg.MetricsAddr == "" {
		cfg.MetricsAddr = fc.MetricsAddr
	}
	if cfg.TextfilePath == "" {
		cfg.TextfilePath = fc.TextfilePath
	}

	normalize(cfg)
	return nil
}

// findConfig resolves the config file path. An explicit path must
// exist; otherwise the search order is tried in the working directory.
func findConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("configuration file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, name := range searchOrder {
		if _, err := os.Stat(name); err == nil {
			return name, nil
		}
	}
	return "", fmt.Errorf("configuration file not found: tried %s", strings.Join(searchOrder, ", "))
}

// checkRequiredKeysJSON verifies the required top-level keys exist.
func checkRequiredKeysJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid JSON in configuration file: %w", err)
	}
	return missingKeysError(func(key string) bool {
		_, ok := raw[key]
		return ok
	})
}

// checkRequiredKeysYAML verifies the required top-level keys exist.
func checkRequiredKeysYAML(data []byte) error {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid YAML in configuration file: %w", err)
	}
	return missingKeysError(func(key string) bool {
		_, ok := raw[key]
		return ok
	})
}

func missingKeysError(present func(string) bool) error {
	var missing []string
	for _, key := range requiredKeys {
		if !present(key) {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration keys: %s", strings.Join(missing, ", "))
	}
	return nil
}

// normalize fills per-task defaults after a successful load.
func normalize(cfg *Config) {
	if cfg.Tool == "" {
		cfg.Tool = "auto"
	}
	for i := range cfg.Tasks {
		if cfg.Tasks[i].Name == "" {
			cfg.Tasks[i].Name = DefaultTaskName
		}
		if cfg.Tasks[i].BackupType == "" {
			cfg.Tasks[i].BackupType = BackupFull
		}
	}
}
