package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Manager hands out per-task scratch directories for analyzer runs. Each
// admitted task gets an isolated directory under the root; the analyzer
// writes its findings and logs there.
type Manager struct {
	root string
	keep bool
}

// Config configures the workspace manager.
type Config struct {
	Root string // base directory for per-task workspaces
	Keep bool   // keep workspaces after the task finishes, for debugging
}

// Info holds information about a created workspace.
type Info struct {
	TaskID string
	Path   string // absolute path to the workspace directory
}

// NewManager creates a workspace manager rooted at cfg.Root, creating the
// root if needed.
func NewManager(cfg Config) (*Manager, error) {
	root := cfg.Root
	if root == "" {
		root = filepath.Join(os.TempDir(), "auditd-workspaces")
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create workspace root: %w", err)
	}
	return &Manager{root: root, keep: cfg.Keep}, nil
}

// Root returns the workspace root directory.
func (m *Manager) Root() string {
	return m.root
}

// Path returns the workspace directory for a task without creating it.
func (m *Manager) Path(taskID string) string {
	return filepath.Join(m.root, taskID)
}

// Create makes a fresh workspace directory for the given task ID. A
// leftover directory from an earlier run of the same task is cleared first.
func (m *Manager) Create(taskID string) (*Info, error) {
	if err := validateTaskID(taskID); err != nil {
		return nil, err
	}

	path := m.Path(taskID)
	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("failed to clear stale workspace: %w", err)
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	return &Info{TaskID: taskID, Path: path}, nil
}

// Cleanup removes a task's workspace unless the manager is configured to
// keep finished workspaces.
func (m *Manager) Cleanup(taskID string) error {
	if m.keep {
		return nil
	}
	return m.Purge(taskID)
}

// Purge removes a task's workspace regardless of the keep setting.
func (m *Manager) Purge(taskID string) error {
	if err := validateTaskID(taskID); err != nil {
		return err
	}
	if err := os.RemoveAll(m.Path(taskID)); err != nil {
		return fmt.Errorf("failed to remove workspace for %s: %w", taskID, err)
	}
	return nil
}

// List returns all existing workspaces.
func (m *Manager) List() ([]Info, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}

	var workspaces []Info
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		workspaces = append(workspaces, Info{
			TaskID: entry.Name(),
			Path:   filepath.Join(m.root, entry.Name()),
		})
	}
	return workspaces, nil
}

// Sweep removes workspaces whose task is no longer live, returning the
// swept task IDs. Used at startup to clear directories left behind by
// tasks that finished or failed while a previous daemon was dying.
func (m *Manager) Sweep(live func(taskID string) bool) ([]string, error) {
	workspaces, err := m.List()
	if err != nil {
		return nil, err
	}

	var swept []string
	var failures []string
	for _, ws := range workspaces {
		if live(ws.TaskID) {
			continue
		}
		if err := os.RemoveAll(ws.Path); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", ws.TaskID, err))
			continue
		}
		swept = append(swept, ws.TaskID)
	}

	if len(failures) > 0 {
		return swept, fmt.Errorf("sweep errors: %s", strings.Join(failures, "; "))
	}
	return swept, nil
}

// validateTaskID rejects ids that would escape the workspace root.
func validateTaskID(taskID string) error {
	if taskID == "" {
		return fmt.Errorf("task id is empty")
	}
	if strings.ContainsAny(taskID, `/\`) || taskID == "." || taskID == ".." {
		return fmt.Errorf("invalid task id %q", taskID)
	}
	return nil
}
