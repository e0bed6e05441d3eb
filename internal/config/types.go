package config

import (
	"fmt"
	"time"
)

// AnalyzerConfig defines the analyzer subprocess (command, default args).
// The task's payload path is appended as the final argument at launch.
type AnalyzerConfig struct {
	Command string   `json:"command"`        // Analyzer binary name (e.g., "ai-audit")
	Args    []string `json:"args,omitempty"` // Default args prepended to every invocation
}

// SchedulerConfig is the top-level configuration for the audit scheduler daemon.
type SchedulerConfig struct {
	MaxConcurrency   int            `json:"max_concurrency"`    // Execution slots
	Tiers            map[string]int `json:"tiers"`              // Role -> priority tier (higher wins)
	DefaultTier      int            `json:"default_tier"`       // Tier for roles absent from the table
	AvgAuditSec      int            `json:"avg_audit_sec"`      // Wait estimation unit per dispatch round
	MaxRuntimeSec    int            `json:"max_runtime_sec"`    // Running tasks older than this are reaped
	OrphanScanSec    int            `json:"orphan_scan_sec"`    // Reaper scan interval
	QueueStatusLimit int            `json:"queue_status_limit"` // Queued entries included in status reports
	DBPath           string         `json:"db_path"`
	ListenAddr       string         `json:"listen_addr"`
	WorkspaceRoot    string         `json:"workspace_root"`
	KeepWorkspaces   bool           `json:"keep_workspaces"` // Retain workspaces after terminal transitions
	Analyzer         AnalyzerConfig `json:"analyzer"`
}

// AvgAuditDuration returns the wait-estimation unit as a duration.
func (c *SchedulerConfig) AvgAuditDuration() time.Duration {
	return time.Duration(c.AvgAuditSec) * time.Second
}

// MaxRuntime returns the orphan threshold as a duration.
func (c *SchedulerConfig) MaxRuntime() time.Duration {
	return time.Duration(c.MaxRuntimeSec) * time.Second
}

// OrphanScanInterval returns the reaper period as a duration.
func (c *SchedulerConfig) OrphanScanInterval() time.Duration {
	return time.Duration(c.OrphanScanSec) * time.Second
}

// TierFor resolves a principal's role to a priority tier.
// Roles absent from the table fall back to DefaultTier.
func (c *SchedulerConfig) TierFor(role string) int {
	if tier, ok := c.Tiers[role]; ok {
		return tier
	}
	return c.DefaultTier
}

// Validate checks the fields the daemon cannot run without.
func (c *SchedulerConfig) Validate() error {
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("max_concurrency must be a positive integer, got %d", c.MaxConcurrency)
	}
	if len(c.Tiers) == 0 {
		return fmt.Errorf("tiers table must not be empty")
	}
	for role, tier := range c.Tiers {
		if tier < 1 {
			return fmt.Errorf("tier for role %q must be positive, got %d", role, tier)
		}
	}
	if c.DefaultTier < 1 {
		return fmt.Errorf("default_tier must be positive, got %d", c.DefaultTier)
	}
	if c.AvgAuditSec < 1 {
		return fmt.Errorf("avg_audit_sec must be positive, got %d", c.AvgAuditSec)
	}
	if c.MaxRuntimeSec < 1 {
		return fmt.Errorf("max_runtime_sec must be positive, got %d", c.MaxRuntimeSec)
	}
	if c.OrphanScanSec < 1 {
		return fmt.Errorf("orphan_scan_sec must be positive, got %d", c.OrphanScanSec)
	}
	if c.QueueStatusLimit < 1 {
		return fmt.Errorf("queue_status_limit must be positive, got %d", c.QueueStatusLimit)
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr must not be empty")
	}
	return nil
}
