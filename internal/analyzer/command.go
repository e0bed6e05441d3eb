package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// CommandAnalyzer runs a configured audit command once per task. The
// command is invoked with the payload ref as its final argument, with the
// task workspace as its working directory, and with AUDIT_TASK_ID and
// AUDIT_WORKSPACE in its environment.
type CommandAnalyzer struct {
	command string
	args    []string
	procMgr *ProcessManager
}

// summary is the optional single-line JSON the analyzer prints last.
// Example: {"findings": 12, "report": "findings.json"}
type summary struct {
	Findings int    `json:"findings"`
	Report   string `json:"report"`
}

// NewCommandAnalyzer creates an analyzer around the configured command.
// The ProcessManager is optional - if nil, subprocesses won't be tracked.
func NewCommandAnalyzer(cfg Config, procMgr *ProcessManager) (*CommandAnalyzer, error) {
	if cfg.Command == "" {
		return nil, errors.New("analyzer command is required")
	}
	return &CommandAnalyzer{
		command: cfg.Command,
		args:    cfg.Args,
		procMgr: procMgr,
	}, nil
}

// Run executes the audit command and waits for it to finish. A non-zero
// exit is returned as the error, with the trailing output preserved in the
// result so the caller can record the failure reason.
func (a *CommandAnalyzer) Run(ctx context.Context, req Request) (Result, error) {
	args := append(append([]string{}, a.args...), req.PayloadRef)

	cmd := newCommand(ctx, a.command, args...)
	cmd.Dir = req.WorkDir
	cmd.Env = append(os.Environ(),
		"AUDIT_TASK_ID="+req.TaskID,
		"AUDIT_WORKSPACE="+req.WorkDir,
	)

	stdout, stderr, err := runCommand(ctx, cmd, a.procMgr)
	if err != nil {
		return Result{Output: tail(stdout, stderr)}, err
	}

	result := Result{Output: tail(stdout, nil)}
	if sum, ok := parseSummary(stdout); ok {
		result.Findings = sum.Findings
		if sum.Report != "" {
			result.Report = sum.Report
			if !filepath.IsAbs(result.Report) {
				result.Report = filepath.Join(req.WorkDir, result.Report)
			}
		}
	}
	return result, nil
}

// parseSummary reads the last non-empty stdout line as a JSON summary.
// Analyzers that print no summary are fine; the exit code already decided
// the outcome.
func parseSummary(stdout []byte) (summary, bool) {
	lines := strings.Split(strings.TrimSpace(string(stdout)), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		var sum summary
		if err := json.Unmarshal([]byte(line), &sum); err != nil {
			return summary{}, false
		}
		return sum, true
	}
	return summary{}, false
}

// tailLimit bounds how much analyzer output is carried on the task.
const tailLimit = 2048

// tail keeps the last stretch of output, preferring stderr when present.
func tail(stdout, stderr []byte) string {
	src := stdout
	if len(stderr) > 0 {
		src = stderr
	}
	s := strings.TrimSpace(string(src))
	if len(s) > tailLimit {
		s = s[len(s)-tailLimit:]
	}
	return s
}

// Describe returns the command line for logging.
func (a *CommandAnalyzer) Describe() string {
	if len(a.args) == 0 {
		return a.command
	}
	return fmt.Sprintf("%s %s", a.command, strings.Join(a.args, " "))
}
