package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

const numTabs = 3 // automations, runs, review

// ActionMsg reports the outcome of a trigger/pause/resume keypress
type ActionMsg struct {
	Status string
	Err    error
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, refreshCmd(m.fetch)
		case "j", "down":
			if m.selectedRow < m.rowCount()-1 {
				m.selectedRow++
			}
			m.clampScroll()
		case "k", "up":
			if m.selectedRow > 0 {
				m.selectedRow--
			}
			m.clampScroll()
		case "tab":
			m.activeTab = (m.activeTab + 1) % numTabs
			m.selectedRow = 0
			m.runScroll = 0
		case "t":
			if auto := m.selectedAutomation(); auto != nil && m.engine != nil {
				if m.engine.RunNow(auto.ID) {
					m.statusLine = fmt.Sprintf("triggered %s", auto.ID)
				} else {
					m.statusLine = fmt.Sprintf("could not trigger %s", auto.ID)
				}
				return m, refreshCmd(m.fetch)
			}
		case "p":
			if auto := m.selectedAutomation(); auto != nil && m.engine != nil {
				return m, actionCmd("paused "+auto.ID, func() error {
					return m.engine.PauseAutomation(auto.ID)
				})
			}
		case "s":
			if auto := m.selectedAutomation(); auto != nil && m.engine != nil {
				return m, actionCmd("resumed "+auto.ID, func() error {
					return m.engine.ResumeAutomation(auto.ID)
				})
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case TickMsg:
		return m, tea.Batch(refreshCmd(m.fetch), tickCmd())

	case RefreshMsg:
		if msg.Err != nil {
			m.statusLine = "refresh failed: " + msg.Err.Error()
			return m, nil
		}
		if msg.Snapshot != nil {
			m.SetAutomations(msg.Snapshot.Automations)
			m.SetRuns(msg.Snapshot.Runs)
			m.lastRefresh = time.Now()
		}
		return m, nil

	case ActionMsg:
		if msg.Err != nil {
			m.statusLine = msg.Err.Error()
		} else {
			m.statusLine = msg.Status
		}
		return m, refreshCmd(m.fetch)
	}

	return m, nil
}

func actionCmd(status string, fn func() error) tea.Cmd {
	return func() tea.Msg {
		return ActionMsg{Status: status, Err: fn()}
	}
}

// SetAutomations replaces the automation rows and recomputes counters
func (m *Model) SetAutomations(autos []*AutomationView) {
	m.automations = autos
	m.activeCount, m.pausedCount = 0, 0
	for _, a := range autos {
		switch a.Status {
		case "active":
			m.activeCount++
		case "paused":
			m.pausedCount++
		}
	}
	if m.activeTab == 0 && m.selectedRow >= len(autos) && len(autos) > 0 {
		m.selectedRow = len(autos) - 1
	}
}

// SetRuns replaces the run rows and recomputes counters
func (m *Model) SetRuns(runs []*RunView) {
	m.runs = runs
	m.runningCount, m.pendingReview = 0, 0
	for _, r := range runs {
		switch r.Status {
		case "running":
			m.runningCount++
		case "pending_review":
			m.pendingReview++
		}
	}
}

func (m Model) rowCount() int {
	switch m.activeTab {
	case 0:
		return len(m.automations)
	case 1:
		return len(m.runs)
	default:
		return len(m.reviewRuns())
	}
}

func (m Model) selectedAutomation() *AutomationView {
	if m.activeTab != 0 || m.selectedRow >= len(m.automations) {
		return nil
	}
	return m.automations[m.selectedRow]
}

func (m Model) reviewRuns() []*RunView {
	var out []*RunView
	for _, r := range m.runs {
		if r.Status == "pending_review" {
			out = append(out, r)
		}
	}
	return out
}

func (m *Model) clampScroll() {
	if m.activeTab != 1 {
		return
	}
	maxVisible := m.visibleRunRows()
	if m.selectedRow >= m.runScroll+maxVisible {
		m.runScroll = m.selectedRow - maxVisible + 1
	}
	if m.selectedRow < m.runScroll {
		m.runScroll = m.selectedRow
	}
}

func (m Model) visibleRunRows() int {
	// Header, tabs, table header and status bar eat about eight lines.
	rows := m.height - 8
	if rows < 5 {
		rows = 5
	}
	return rows
}
