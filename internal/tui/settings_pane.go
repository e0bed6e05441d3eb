package tui

import (
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/YingxueSec/AI-Code-Sec/internal/config"
)

// SettingsPaneModel manages the settings form overlay. Saving writes the
// config file; a running daemon picks the change up through its watcher.
type SettingsPaneModel struct {
	form        *huh.Form
	config      *config.SchedulerConfig
	globalPath  string
	projectPath string
	width       int
	height      int
	visible     bool
	saved       bool
	err         error

	// Form field bindings (strings for Huh)
	saveTarget     string
	maxConcurrency string
	maxRuntimeSec  string
	avgAuditSec    string
	freeTier       string
	standardTier   string
	premiumTier    string
	adminTier      string
}

// NewSettingsPaneModel creates a new settings pane.
func NewSettingsPaneModel(cfg *config.SchedulerConfig, globalPath, projectPath string) SettingsPaneModel {
	m := SettingsPaneModel{
		config:      cfg,
		globalPath:  globalPath,
		projectPath: projectPath,
		visible:     false,
		saved:       false,

		// Initialize form field values from config
		saveTarget:     "global",
		maxConcurrency: strconv.Itoa(cfg.MaxConcurrency),
		maxRuntimeSec:  strconv.Itoa(cfg.MaxRuntimeSec),
		avgAuditSec:    strconv.Itoa(cfg.AvgAuditSec),
		freeTier:       strconv.Itoa(cfg.TierFor("free")),
		standardTier:   strconv.Itoa(cfg.TierFor("standard")),
		premiumTier:    strconv.Itoa(cfg.TierFor("premium")),
		adminTier:      strconv.Itoa(cfg.TierFor("admin")),
	}

	m.buildForm()
	return m
}

// buildForm constructs the Huh form with all settings fields.
func (m *SettingsPaneModel) buildForm() {
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Key("saveTarget").
				Title("Save To").
				Options(
					huh.NewOption("Global ("+m.globalPath+")", "global"),
					huh.NewOption("Project ("+m.projectPath+")", "project"),
				).
				Value(&m.saveTarget),
		).Title("Save Target"),

		huh.NewGroup(
			huh.NewInput().
				Key("maxConcurrency").
				Title("Max Concurrency").
				Value(&m.maxConcurrency).
				Placeholder("2"),

			huh.NewInput().
				Key("maxRuntimeSec").
				Title("Max Runtime (seconds)").
				Value(&m.maxRuntimeSec).
				Placeholder("3600"),

			huh.NewInput().
				Key("avgAuditSec").
				Title("Average Audit (seconds)").
				Value(&m.avgAuditSec).
				Placeholder("300"),
		).Title("Scheduler Settings"),

		huh.NewGroup(
			huh.NewInput().
				Key("freeTier").
				Title("Free Tier").
				Value(&m.freeTier).
				Placeholder("1"),

			huh.NewInput().
				Key("standardTier").
				Title("Standard Tier").
				Value(&m.standardTier).
				Placeholder("2"),

			huh.NewInput().
				Key("premiumTier").
				Title("Premium Tier").
				Value(&m.premiumTier).
				Placeholder("3"),

			huh.NewInput().
				Key("adminTier").
				Title("Admin Tier").
				Value(&m.adminTier).
				Placeholder("4"),
		).Title("Priority Tiers"),
	)
}

// Init initializes the settings pane.
func (m SettingsPaneModel) Init() tea.Cmd {
	return m.form.Init()
}

// Update handles messages for the settings pane.
func (m SettingsPaneModel) Update(msg tea.Msg) (SettingsPaneModel, tea.Cmd) {
	if !m.visible {
		return m, nil
	}

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "esc":
			// Cancel without saving
			m.visible = false
			m.saved = false
			return m, nil
		}
	}

	// Delegate to form
	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	// Check if form is completed
	if m.form.State == huh.StateCompleted {
		if err := m.applyFormToConfig(); err != nil {
			m.err = err
			m.saved = false
		} else {
			targetPath := m.globalPath
			if m.saveTarget == "project" {
				targetPath = m.projectPath
			}

			if err := config.Save(m.config, targetPath); err != nil {
				m.err = err
				m.saved = false
			} else {
				m.saved = true
				m.err = nil
			}
		}

		// Hide form after successful save
		if m.saved {
			m.visible = false
		}
	}

	return m, cmd
}

// applyFormToConfig parses the form fields back into the config struct.
// Nothing is committed unless every field parses and the result validates.
func (m *SettingsPaneModel) applyFormToConfig() error {
	maxConcurrency, err := atoiField("max_concurrency", m.maxConcurrency)
	if err != nil {
		return err
	}
	maxRuntime, err := atoiField("max_runtime_sec", m.maxRuntimeSec)
	if err != nil {
		return err
	}
	avgAudit, err := atoiField("avg_audit_sec", m.avgAuditSec)
	if err != nil {
		return err
	}

	tiers := make(map[string]int, 4)
	for _, field := range []struct {
		role string
		raw  string
	}{
		{"free", m.freeTier},
		{"standard", m.standardTier},
		{"premium", m.premiumTier},
		{"admin", m.adminTier},
	} {
		tier, err := atoiField("tier "+field.role, field.raw)
		if err != nil {
			return err
		}
		tiers[field.role] = tier
	}

	next := *m.config
	next.MaxConcurrency = maxConcurrency
	next.MaxRuntimeSec = maxRuntime
	next.AvgAuditSec = avgAudit
	next.Tiers = tiers
	if err := next.Validate(); err != nil {
		return err
	}

	*m.config = next
	return nil
}

func atoiField(name, raw string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", name, raw)
	}
	return v, nil
}

// View renders the settings pane.
func (m SettingsPaneModel) View() string {
	if !m.visible {
		return ""
	}

	var content string

	// Show saved message if just saved
	if m.saved && m.form.State == huh.StateCompleted {
		content = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10")).
			Bold(true).
			Render("✓ Settings saved. A running daemon reloads them automatically.")
	} else if m.err != nil {
		// Show error if save failed
		content = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true).
			Render(fmt.Sprintf("✗ Error saving: %v", m.err))
	} else {
		// Render form
		content = m.form.View()
	}

	// Wrap in styled border
	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(1, 2).
		Width(m.width - 4).
		Height(m.height - 4)

	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("62")).
		Render("⚙ Scheduler Settings")

	body := style.Render(content)

	return lipgloss.JoinVertical(lipgloss.Left, title, body)
}

// SetSize updates the dimensions of the settings pane.
func (m *SettingsPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	if m.form != nil {
		m.form.WithWidth(w - 8).WithHeight(h - 8)
	}
}

// SetVisible shows or hides the settings pane.
func (m *SettingsPaneModel) SetVisible(v bool) {
	m.visible = v
	m.saved = false
	m.err = nil

	// Rebuild the form to reset state when showing
	if v && m.form != nil {
		m.buildForm()
	}
}

// IsVisible returns whether the settings pane is currently visible.
func (m SettingsPaneModel) IsVisible() bool {
	return m.visible
}
