// Package tui is the terminal dashboard: automations with their schedules,
// recent run history, and the review queue, with keys for triggering,
// pausing and resuming.
package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// Engine is the subset of the orchestrator the dashboard drives
type Engine interface {
	RunNow(id string) bool
	PauseAutomation(id string) error
	ResumeAutomation(id string) error
}

// AutomationView is the dashboard row for one automation
type AutomationView struct {
	ID                  string
	Name                string
	Status              string
	NextRunAt           *time.Time
	LastRunAt           *time.Time
	RunCount            int
	ConsecutiveFailures int
}

// RunView is the dashboard row for one run
type RunView struct {
	ID           string
	AutomationID string
	Workspace    string
	Status       string
	Attempt      int
	StartedAt    time.Time
	CompletedAt  *time.Time
	Title        string
	Summary      string
	Read         bool
}

// Snapshot is one refresh worth of dashboard data
type Snapshot struct {
	Automations []*AutomationView
	Runs        []*RunView
}

// Fetcher produces a fresh snapshot; called on every tick
type Fetcher func() (*Snapshot, error)

// Model is the TUI application model
type Model struct {
	// Data
	automations []*AutomationView
	runs        []*RunView

	// Stats
	activeCount   int
	pausedCount   int
	runningCount  int
	pendingReview int

	// UI state
	width       int
	height      int
	activeTab   int
	selectedRow int
	runScroll   int
	statusLine  string

	// Wiring
	engine Engine
	fetch  Fetcher

	lastRefresh time.Time
}

// ModelConfig holds initial data and wiring for the TUI model
type ModelConfig struct {
	Automations []*AutomationView
	Runs        []*RunView
	Engine      Engine
	Fetch       Fetcher
}

// NewModel creates a new TUI model
func NewModel(cfg ModelConfig) Model {
	m := Model{
		engine:    cfg.Engine,
		fetch:     cfg.Fetch,
		activeTab: 0,
	}
	m.SetAutomations(cfg.Automations)
	m.SetRuns(cfg.Runs)
	return m
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		refreshCmd(m.fetch),
		tickCmd(),
	)
}

// TickMsg triggers a refresh
type TickMsg time.Time

// RefreshMsg carries fetched dashboard data
type RefreshMsg struct {
	Snapshot *Snapshot
	Err      error
}

func tickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func refreshCmd(fetch Fetcher) tea.Cmd {
	if fetch == nil {
		return nil
	}
	return func() tea.Msg {
		snap, err := fetch()
		return RefreshMsg{Snapshot: snap, Err: err}
	}
}
