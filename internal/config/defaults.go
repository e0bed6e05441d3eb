package config

// DefaultConfig returns the default configuration: two execution slots, the
// built-in role tier table, and conventional paths under .auditd.
func DefaultConfig() *SchedulerConfig {
	return &SchedulerConfig{
		MaxConcurrency: 2,
		Tiers: map[string]int{
			"free":     1,
			"standard": 2,
			"premium":  3,
			"admin":    4,
		},
		DefaultTier:      1,
		AvgAuditSec:      300,
		MaxRuntimeSec:    3600,
		OrphanScanSec:    10,
		QueueStatusLimit: 10,
		DBPath:           ".auditd/auditd.db",
		ListenAddr:       "127.0.0.1:8844",
		WorkspaceRoot:    ".auditd/workspaces",
		Analyzer: AnalyzerConfig{
			Command: "ai-audit",
		},
	}
}
