package analyzer

import "context"

// Request describes one audit run.
type Request struct {
	TaskID     string
	PayloadRef string // code under audit: a checkout path or archive reference
	WorkDir    string // workspace directory the analyzer writes findings into
}

// Result is the outcome of an analyzer run. A failed audit still carries
// the trailing output so the failure reason can be recorded on the task.
type Result struct {
	Findings int    // findings reported in the summary line, if any
	Report   string // absolute path to the findings report, if reported
	Output   string // trailing analyzer output
}

// Analyzer runs one audit to completion. Implementations derive success
// from the analyzer process, not from the findings: an audit that finds
// problems still completes.
type Analyzer interface {
	Run(ctx context.Context, req Request) (Result, error)
}

// Config defines the configuration for the command analyzer.
type Config struct {
	Command string   // analyzer executable
	Args    []string // fixed arguments, placed before the payload ref
}
