package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func writeConfigFile(t *testing.T, dir, name string, cfg map[string]any) string {
	t.Helper()
	path := filepath.Join(dir, name)
	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshaling config: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name            string
		globalConfig    map[string]any
		projectConfig   map[string]any
		wantConcurrency int
		wantTierCount   int
		checkRole       string
		wantTier        int
		wantDBPath      string
	}{
		{
			name:            "No config files - returns defaults",
			wantConcurrency: 2,
			wantTierCount:   4,
			checkRole:       "premium",
			wantTier:        3,
			wantDBPath:      ".auditd/auditd.db",
		},
		{
			name:            "Global only - overrides concurrency, keeps defaults",
			globalConfig:    map[string]any{"max_concurrency": 8},
			wantConcurrency: 8,
			wantTierCount:   4,
			checkRole:       "admin",
			wantTier:        4,
			wantDBPath:      ".auditd/auditd.db",
		},
		{
			name:            "Global adds a tier - table merges per key",
			globalConfig:    map[string]any{"tiers": map[string]int{"enterprise": 5}},
			wantConcurrency: 2,
			wantTierCount:   5,
			checkRole:       "enterprise",
			wantTier:        5,
			wantDBPath:      ".auditd/auditd.db",
		},
		{
			name:            "Project overrides global - project wins",
			globalConfig:    map[string]any{"max_concurrency": 8, "db_path": "global.db"},
			projectConfig:   map[string]any{"max_concurrency": 3},
			wantConcurrency: 3,
			wantTierCount:   4,
			checkRole:       "free",
			wantTier:        1,
			wantDBPath:      "global.db",
		},
		{
			name:            "Project re-scores a default tier",
			projectConfig:   map[string]any{"tiers": map[string]int{"free": 2}},
			wantConcurrency: 2,
			wantTierCount:   4,
			checkRole:       "free",
			wantTier:        2,
			wantDBPath:      ".auditd/auditd.db",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()

			globalPath := ""
			if tt.globalConfig != nil {
				globalPath = writeConfigFile(t, tmpDir, "global.json", tt.globalConfig)
			}
			projectPath := ""
			if tt.projectConfig != nil {
				projectPath = writeConfigFile(t, tmpDir, "project.json", tt.projectConfig)
			}

			cfg, err := Load(globalPath, projectPath)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if cfg.MaxConcurrency != tt.wantConcurrency {
				t.Errorf("max_concurrency = %d, want %d", cfg.MaxConcurrency, tt.wantConcurrency)
			}
			if got := len(cfg.Tiers); got != tt.wantTierCount {
				t.Errorf("tier count = %d, want %d", got, tt.wantTierCount)
			}
			if tt.checkRole != "" {
				if got := cfg.Tiers[tt.checkRole]; got != tt.wantTier {
					t.Errorf("tier for %q = %d, want %d", tt.checkRole, got, tt.wantTier)
				}
			}
			if cfg.DBPath != tt.wantDBPath {
				t.Errorf("db_path = %q, want %q", cfg.DBPath, tt.wantDBPath)
			}
		})
	}
}

func TestLoad_MalformedJSON(t *testing.T) {
	tmpDir := t.TempDir()

	globalPath := filepath.Join(tmpDir, "global.json")
	if err := os.WriteFile(globalPath, []byte("{invalid json"), 0644); err != nil {
		t.Fatalf("writing malformed config: %v", err)
	}

	_, err := Load(globalPath, "")
	if err == nil {
		t.Fatal("expected error for malformed JSON, got nil")
	}
}

func TestLoad_MissingFilesNotError(t *testing.T) {
	cfg, err := Load("/nonexistent/global.json", "/nonexistent/project.json")
	if err != nil {
		t.Fatalf("expected no error for missing files, got: %v", err)
	}

	// Should return defaults
	if cfg.MaxConcurrency != 2 {
		t.Errorf("max_concurrency = %d, want 2", cfg.MaxConcurrency)
	}
	if len(cfg.Tiers) != 4 {
		t.Errorf("tier count = %d, want 4", len(cfg.Tiers))
	}
}

func TestPathEnvOverrides(t *testing.T) {
	t.Setenv("AUDITD_GLOBAL_CONFIG", "/etc/auditd/config.json")
	t.Setenv("AUDITD_PROJECT_CONFIG", "/srv/project/.auditd.json")

	if got := GlobalPath(); got != "/etc/auditd/config.json" {
		t.Errorf("GlobalPath = %q, want env override", got)
	}
	if got := ProjectPath(); got != "/srv/project/.auditd.json" {
		t.Errorf("ProjectPath = %q, want env override", got)
	}

	t.Setenv("AUDITD_PROJECT_CONFIG", "")
	if got := ProjectPath(); got != filepath.Join(".auditd", "config.json") {
		t.Errorf("ProjectPath without override = %q", got)
	}
}

func TestTierFor(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		role string
		want int
	}{
		{"free", 1},
		{"standard", 2},
		{"premium", 3},
		{"admin", 4},
		{"unknown-plan", 1}, // falls back to DefaultTier
		{"", 1},
	}

	for _, tt := range tests {
		if got := cfg.TierFor(tt.role); got != tt.want {
			t.Errorf("TierFor(%q) = %d, want %d", tt.role, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*SchedulerConfig)
		wantErr bool
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *SchedulerConfig) {},
		},
		{
			name:    "zero concurrency rejected",
			mutate:  func(c *SchedulerConfig) { c.MaxConcurrency = 0 },
			wantErr: true,
		},
		{
			name:    "negative concurrency rejected",
			mutate:  func(c *SchedulerConfig) { c.MaxConcurrency = -1 },
			wantErr: true,
		},
		{
			name:    "empty tier table rejected",
			mutate:  func(c *SchedulerConfig) { c.Tiers = nil },
			wantErr: true,
		},
		{
			name:    "non-positive tier rejected",
			mutate:  func(c *SchedulerConfig) { c.Tiers["free"] = 0 },
			wantErr: true,
		},
		{
			name:    "zero scan interval rejected",
			mutate:  func(c *SchedulerConfig) { c.OrphanScanSec = 0 },
			wantErr: true,
		},
		{
			name:    "empty listen addr rejected",
			mutate:  func(c *SchedulerConfig) { c.ListenAddr = "" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Fatal("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
