package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/YingxueSec/AI-Code-Sec/pkg/auditapi"
)

// QueuePaneModel lists waiting tasks in dispatch order: highest tier
// first, oldest first within a tier.
type QueuePaneModel struct {
	entries     []auditapi.QueuedEntry
	total       int
	selectedIdx int
	width       int
	height      int
	focused     bool
}

// NewQueuePaneModel creates an empty queue pane.
func NewQueuePaneModel() QueuePaneModel {
	return QueuePaneModel{}
}

// SetEntries replaces the displayed queue with a fresh poll result. total
// may exceed len(entries) when the daemon truncates its status report.
func (m *QueuePaneModel) SetEntries(entries []auditapi.QueuedEntry, total int) {
	m.entries = entries
	m.total = total
	if m.selectedIdx >= len(entries) {
		m.selectedIdx = max(0, len(entries)-1)
	}
}

// Update handles key messages for the queue pane.
func (m QueuePaneModel) Update(msg tea.Msg) (QueuePaneModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if !m.focused {
			break
		}
		switch msg.String() {
		case KeyJ, KeyDown:
			if m.selectedIdx < len(m.entries)-1 {
				m.selectedIdx++
			}
		case KeyK, KeyUp:
			if m.selectedIdx > 0 {
				m.selectedIdx--
			}
		}
	}
	return m, nil
}

// View renders the queue pane.
func (m QueuePaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder

	title := StyleTitle.Render(fmt.Sprintf("Queue (%d waiting)", m.total))
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", min(m.width-2, lipgloss.Width(title))))
	b.WriteString("\n\n")

	if len(m.entries) == 0 {
		b.WriteString(StyleStatusPending.Render("Queue is empty"))
	} else {
		header := fmt.Sprintf("%4s  %-10s %-12s %4s %9s %9s", "rank", "id", "owner", "tier", "waited", "est wait")
		b.WriteString(StyleStatusPending.Render(header))
		b.WriteString("\n")
		for i, entry := range m.entries {
			line := fmt.Sprintf("%4d  %-10s %-12s %4d %9s %9s",
				entry.Rank,
				shortID(entry.ID),
				clip(entry.Owner, 12),
				entry.Tier,
				compactDuration(entry.WaitedSec),
				compactDuration(entry.EstimatedWaitSec),
			)
			if i == m.selectedIdx {
				line = StyleSelected.Render(line)
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
		if m.total > len(m.entries) {
			b.WriteString(StyleStatusPending.Render(fmt.Sprintf("... and %d more", m.total-len(m.entries))))
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
func (m *QueuePaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// SetFocused updates the focus state.
func (m *QueuePaneModel) SetFocused(focused bool) {
	m.focused = focused
}
