package tui

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/YingxueSec/AI-Code-Sec/internal/config"
	"github.com/YingxueSec/AI-Code-Sec/pkg/auditapi"
)

// PaneID identifies which pane is focused.
type PaneID int

const (
	PaneQueue PaneID = iota
	PaneRunning
	PaneEvents
)

// eventFetchLimit is how many events each poll requests.
const eventFetchLimit = 100

// pollMsg triggers the next status fetch.
type pollMsg struct{}

// statusMsg carries one poll result from the daemon.
type statusMsg struct {
	queue    auditapi.QueueStatusResponse
	eventLog auditapi.EventsResponse
	err      error
}

// Model is the root Bubble Tea model for the monitor. It polls the daemon
// on a ticker and fans the result out to the panes.
type Model struct {
	client       *Client
	queuePane    QueuePaneModel
	runningPane  RunningPaneModel
	eventsPane   EventsPaneModel
	settingsPane SettingsPaneModel
	focusedPane  PaneID
	pollInterval time.Duration
	lastStatus   auditapi.QueueStatusResponse
	lastErr      error
	width        int
	height       int
	quitting     bool
	showSettings bool
}

// New creates the monitor model.
func New(client *Client, cfg *config.SchedulerConfig, globalPath, projectPath string, pollInterval time.Duration) Model {
	return Model{
		client:       client,
		queuePane:    NewQueuePaneModel(),
		runningPane:  NewRunningPaneModel(),
		eventsPane:   NewEventsPaneModel(),
		settingsPane: NewSettingsPaneModel(cfg, globalPath, projectPath),
		focusedPane:  PaneQueue,
		pollInterval: pollInterval,
	}
}

// Init starts the first fetch and the poll ticker.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.fetchStatus(), m.tick())
}

// fetchStatus polls the daemon for queue state and recent events.
func (m Model) fetchStatus() tea.Cmd {
	client := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		queue, err := client.QueueStatus(ctx)
		if err != nil {
			return statusMsg{err: err}
		}
		eventLog, err := client.Events(ctx, eventFetchLimit)
		if err != nil {
			return statusMsg{err: err}
		}
		return statusMsg{queue: queue, eventLog: eventLog}
	}
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.pollInterval, func(time.Time) tea.Msg {
		return pollMsg{}
	})
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		// If settings panel is open, route all keys to it (modal behavior)
		if m.showSettings {
			switch msg.String() {
			case KeySettings, "esc":
				m.showSettings = false
				m.settingsPane.SetVisible(false)
			default:
				var cmd tea.Cmd
				m.settingsPane, cmd = m.settingsPane.Update(msg)
				cmds = append(cmds, cmd)

				// Check if settings pane closed itself (after save)
				if !m.settingsPane.IsVisible() {
					m.showSettings = false
				}
			}
			return m, tea.Batch(cmds...)
		}

		switch msg.String() {
		case KeyQuit, KeyCtrlC:
			m.quitting = true
			return m, tea.Quit

		case KeySettings:
			m.showSettings = true
			m.settingsPane.SetVisible(true)
			cmds = append(cmds, m.settingsPane.Init())

		case KeyRefresh:
			cmds = append(cmds, m.fetchStatus())

		case KeyTab:
			m.focusedPane = (m.focusedPane + 1) % 3
			m.updateFocusStates()

		case KeyShiftTab:
			m.focusedPane = (m.focusedPane + 2) % 3
			m.updateFocusStates()

		case KeyPane1:
			m.focusedPane = PaneQueue
			m.updateFocusStates()

		case KeyPane2:
			m.focusedPane = PaneRunning
			m.updateFocusStates()

		case KeyPane3:
			m.focusedPane = PaneEvents
			m.updateFocusStates()

		default:
			// Delegate to focused pane
			switch m.focusedPane {
			case PaneQueue:
				var cmd tea.Cmd
				m.queuePane, cmd = m.queuePane.Update(msg)
				cmds = append(cmds, cmd)
			case PaneRunning:
				var cmd tea.Cmd
				m.runningPane, cmd = m.runningPane.Update(msg)
				cmds = append(cmds, cmd)
			case PaneEvents:
				var cmd tea.Cmd
				m.eventsPane, cmd = m.eventsPane.Update(msg)
				cmds = append(cmds, cmd)
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.computeLayout()
		m.settingsPane.SetSize(msg.Width, msg.Height)

	case pollMsg:
		cmds = append(cmds, m.fetchStatus(), m.tick())

	case statusMsg:
		m.lastErr = msg.err
		if msg.err == nil {
			m.lastStatus = msg.queue
			m.queuePane.SetEntries(msg.queue.Queued, msg.queue.QueuedTotal)
			m.runningPane.SetState(msg.queue.Running, msg.queue.Capacity, msg.queue.FreeSlots)
			m.eventsPane.SetEvents(msg.eventLog.Events)
		}
	}

	return m, tea.Batch(cmds...)
}

// View renders the monitor.
func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}

	if m.width == 0 || m.height == 0 {
		return "Connecting..."
	}

	// If settings panel is visible, render it as overlay
	if m.showSettings {
		return m.settingsPane.View()
	}

	rightPane := lipgloss.JoinVertical(lipgloss.Left, m.runningPane.View(), m.eventsPane.View())
	mainContent := lipgloss.JoinHorizontal(lipgloss.Top, m.queuePane.View(), rightPane)

	return lipgloss.JoinVertical(lipgloss.Left, m.headerView(), mainContent, HelpView())
}

// headerView renders the capacity line, or the connection error when the
// daemon is unreachable.
func (m Model) headerView() string {
	if m.lastErr != nil {
		return StyleStatusFailed.Render(fmt.Sprintf("auditq: daemon unreachable: %v", m.lastErr))
	}

	used := m.lastStatus.Capacity - m.lastStatus.FreeSlots
	line := StyleHeader.Render(fmt.Sprintf("auditq  |  slots %d/%d  |  queued %d",
		used, m.lastStatus.Capacity, m.lastStatus.QueuedTotal))
	if m.lastStatus.Halted {
		line = lipgloss.JoinHorizontal(lipgloss.Top, line,
			StyleHalted.Render("HALTED: scheduler stopped admitting, restart the daemon"))
	}
	return line
}

// computeLayout calculates pane dimensions and updates all child models.
func (m *Model) computeLayout() {
	leftWidth := (m.width * 45) / 100
	rightWidth := m.width - leftWidth
	availableHeight := m.height - 2 // header and help bar
	rightTopHeight := (availableHeight * 40) / 100
	rightBottomHeight := availableHeight - rightTopHeight

	m.queuePane.SetSize(leftWidth, availableHeight)
	m.runningPane.SetSize(rightWidth, rightTopHeight)
	m.eventsPane.SetSize(rightWidth, rightBottomHeight)

	m.updateFocusStates()
}

// updateFocusStates updates the focus state of all panes.
func (m *Model) updateFocusStates() {
	m.queuePane.SetFocused(m.focusedPane == PaneQueue)
	m.runningPane.SetFocused(m.focusedPane == PaneRunning)
	m.eventsPane.SetFocused(m.focusedPane == PaneEvents)
}
