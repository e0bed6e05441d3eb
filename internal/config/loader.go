package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): project config, global config, defaults.
// Missing files are not errors; malformed JSON returns an error.
func Load(globalPath, projectPath string) (*SchedulerConfig, error) {
	// Start with defaults
	cfg := DefaultConfig()

	// Merge global config if exists
	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}

	// Merge project config if exists (highest precedence)
	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	return cfg, nil
}

// LoadDefault loads configuration from conventional paths.
// Global: ~/.auditd/config.json
// Project: .auditd/config.json (relative to cwd)
func LoadDefault() (*SchedulerConfig, error) {
	return Load(GlobalPath(), ProjectPath())
}

// GlobalPath returns the global config path: the AUDITD_GLOBAL_CONFIG
// environment variable if set, otherwise ~/.auditd/config.json, or "" if
// the home directory cannot be determined.
func GlobalPath() string {
	if p := os.Getenv("AUDITD_GLOBAL_CONFIG"); p != "" {
		return p
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".auditd", "config.json")
}

// ProjectPath returns the project-local config path: the
// AUDITD_PROJECT_CONFIG environment variable if set, otherwise
// .auditd/config.json relative to the working directory.
func ProjectPath() string {
	if p := os.Getenv("AUDITD_PROJECT_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(".auditd", "config.json")
}

// mergeConfigFile reads a JSON config file and overlays it onto the base
// config. Fields absent from the file keep their current values; the tiers
// map merges per key. Missing files are silently skipped.
func mergeConfigFile(base *SchedulerConfig, path string) error {
	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // Missing file is not an error
	}

	// Read file
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	// Unmarshal directly into the base: present fields overwrite, map
	// entries merge per key, absent fields are untouched.
	if err := json.Unmarshal(data, base); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	return nil
}
