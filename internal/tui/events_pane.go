package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/YingxueSec/AI-Code-Sec/internal/events"
	"github.com/YingxueSec/AI-Code-Sec/pkg/auditapi"
)

// EventsPaneModel is a scrollable log of recent lifecycle events.
type EventsPaneModel struct {
	events   []auditapi.EventRecord
	viewport viewport.Model
	width    int
	height   int
	focused  bool
}

// NewEventsPaneModel creates an empty events pane.
func NewEventsPaneModel() EventsPaneModel {
	return EventsPaneModel{viewport: viewport.New(0, 0)}
}

// SetEvents replaces the log with a fresh poll result. The wire order is
// newest first; the pane renders oldest to newest so the bottom is current.
func (m *EventsPaneModel) SetEvents(records []auditapi.EventRecord) {
	m.events = records
	m.updateViewportContent()
}

// Update handles messages for the events pane. Keys scroll the viewport.
func (m EventsPaneModel) Update(msg tea.Msg) (EventsPaneModel, tea.Cmd) {
	var cmd tea.Cmd
	if keyMsg, ok := msg.(tea.KeyMsg); ok && m.focused {
		m.viewport, cmd = m.viewport.Update(keyMsg)
	}
	return m, cmd
}

// View renders the events pane.
func (m EventsPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder
	title := StyleTitle.Render("Events")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", min(m.width-2, lipgloss.Width(title))))
	b.WriteString("\n")
	b.WriteString(m.viewport.View())

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(b.String())
}

// updateViewportContent re-renders event lines and scrolls to the newest.
func (m *EventsPaneModel) updateViewportContent() {
	if len(m.events) == 0 {
		m.viewport.SetContent(StyleStatusPending.Render("No events yet"))
		return
	}
	lines := make([]string, 0, len(m.events))
	for i := len(m.events) - 1; i >= 0; i-- {
		record := m.events[i]
		line := fmt.Sprintf("%s %s", record.OccurredAt.Format("15:04:05"), record.Detail)
		lines = append(lines, styleForEvent(record.Type).Render(line))
	}
	m.viewport.SetContent(strings.Join(lines, "\n"))
	m.viewport.GotoBottom()
}

// styleForEvent colors a log line by event type.
func styleForEvent(eventType string) lipgloss.Style {
	switch eventType {
	case events.EventTypeTaskCompleted:
		return StyleStatusComplete
	case events.EventTypeTaskFailed, events.EventTypeTaskOrphaned, events.EventTypeHalted:
		return StyleStatusFailed
	case events.EventTypeTaskAdmitted, events.EventTypeTaskPromoted:
		return StyleStatusRunning
	default:
		return StyleStatusQueued
	}
}

// SetSize updates the pane dimensions and resizes the viewport.
func (m *EventsPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.viewport.Width = max(10, w-4)
	m.viewport.Height = max(3, h-5)
}

// SetFocused updates the focus state.
func (m *EventsPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
