package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/YingxueSec/AI-Code-Sec/pkg/auditapi"
)

// RunningPaneModel shows the tasks holding execution slots and a slot
// usage bar.
type RunningPaneModel struct {
	entries   []auditapi.RunningEntry
	capacity  int
	freeSlots int
	width     int
	height    int
	focused   bool
}

// NewRunningPaneModel creates an empty running pane.
func NewRunningPaneModel() RunningPaneModel {
	return RunningPaneModel{}
}

// SetState replaces the running set with a fresh poll result.
func (m *RunningPaneModel) SetState(entries []auditapi.RunningEntry, capacity, freeSlots int) {
	m.entries = entries
	m.capacity = capacity
	m.freeSlots = freeSlots
}

// Update handles messages for the running pane.
func (m RunningPaneModel) Update(msg tea.Msg) (RunningPaneModel, tea.Cmd) {
	return m, nil
}

// View renders the running pane.
func (m RunningPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder

	used := m.capacity - m.freeSlots
	title := StyleTitle.Render(fmt.Sprintf("Running (%d/%d slots)", used, m.capacity))
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", min(m.width-2, lipgloss.Width(title))))
	b.WriteString("\n\n")

	if m.capacity > 0 {
		barWidth := min(m.width-6, 40)
		usedWidth := (used * barWidth) / m.capacity
		freeWidth := barWidth - usedWidth

		bar := StyleStatusRunning.Render(strings.Repeat("=", max(0, usedWidth)))
		bar += StyleStatusPending.Render(strings.Repeat(".", max(0, freeWidth)))
		b.WriteString(fmt.Sprintf("[%s]\n\n", bar))
	}

	if len(m.entries) == 0 {
		b.WriteString(StyleStatusPending.Render("No running audits"))
	} else {
		for _, entry := range m.entries {
			icon := StyleStatusRunning.Render("●")
			b.WriteString(fmt.Sprintf("%s %-10s %-12s tier %d  %s\n",
				icon,
				shortID(entry.ID),
				clip(entry.Owner, 12),
				entry.Tier,
				compactDuration(entry.ElapsedSec),
			))
		}
	}

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(b.String())
}

// SetSize updates the pane dimensions.
func (m *RunningPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// SetFocused updates the focus state.
func (m *RunningPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
