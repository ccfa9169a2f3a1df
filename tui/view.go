package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

var (
	titleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205")).
		Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
		Background(lipgloss.Color("236")).
		Foreground(lipgloss.Color("255")).
		Padding(0, 1)

	tabActiveStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205")).
		Underline(true)

	tabInactiveStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("244"))

	activeStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42"))

	pausedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("244"))

	runningStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("214"))

	failedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("196"))

	reviewStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("39"))

	selectedStyle = lipgloss.NewStyle().
		Background(lipgloss.Color("236")).
		Bold(true)

	dimmedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240"))

	statusBarStyle = lipgloss.NewStyle().
		Background(lipgloss.Color("236")).
		Foreground(lipgloss.Color("255"))
)

var tabNames = []string{"Automations", "Runs", "Review"}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder

	header := fmt.Sprintf(" Autopilot │ Active: %d │ Paused: %d │ Running: %d │ Review: %d ",
		m.activeCount, m.pausedCount, m.runningCount, m.pendingReview)
	b.WriteString(headerStyle.Render(header))
	b.WriteString("\n\n")

	var tabs []string
	for i, name := range tabNames {
		if i == m.activeTab {
			tabs = append(tabs, tabActiveStyle.Render(name))
		} else {
			tabs = append(tabs, tabInactiveStyle.Render(name))
		}
	}
	b.WriteString(" " + strings.Join(tabs, "  ") + "\n\n")

	switch m.activeTab {
	case 0:
		b.WriteString(m.renderAutomations())
	case 1:
		b.WriteString(m.renderRuns(m.runs, true))
	case 2:
		b.WriteString(m.renderRuns(m.reviewRuns(), false))
	}

	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())

	return b.String()
}

func (m Model) renderAutomations() string {
	if len(m.automations) == 0 {
		return dimmedStyle.Render("  No automations configured.") + "\n"
	}

	var b strings.Builder
	b.WriteString(dimmedStyle.Render(fmt.Sprintf("  %-3s %-28s %-8s %-18s %-18s %5s %5s",
		"", "NAME", "STATUS", "NEXT RUN", "LAST RUN", "RUNS", "FAIL")))
	b.WriteString("\n")

	for i, a := range m.automations {
		cursor := "  "
		if i == m.selectedRow {
			cursor = "> "
		}
		line := fmt.Sprintf("  %-3s %-28s %-8s %-18s %-18s %5d %5d",
			cursor,
			truncate(a.Name, 28),
			a.Status,
			humanTimePtr(a.NextRunAt),
			humanTimePtr(a.LastRunAt),
			a.RunCount,
			a.ConsecutiveFailures,
		)
		b.WriteString(m.styleAutomationRow(line, a, i == m.selectedRow))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) styleAutomationRow(line string, a *AutomationView, selected bool) string {
	if selected {
		return selectedStyle.Render(line)
	}
	switch {
	case a.ConsecutiveFailures > 0:
		return failedStyle.Render(line)
	case a.Status == "paused":
		return pausedStyle.Render(line)
	default:
		return line
	}
}

func (m Model) renderRuns(runs []*RunView, scroll bool) string {
	if len(runs) == 0 {
		return dimmedStyle.Render("  Nothing here.") + "\n"
	}

	var b strings.Builder
	b.WriteString(dimmedStyle.Render(fmt.Sprintf("  %-3s %-22s %-14s %-18s %3s  %s",
		"", "AUTOMATION", "STATUS", "STARTED", "TRY", "TITLE")))
	b.WriteString("\n")

	start, end := 0, len(runs)
	if scroll {
		start = m.runScroll
		if start > len(runs) {
			start = len(runs)
		}
		if end > start+m.visibleRunRows() {
			end = start + m.visibleRunRows()
		}
	}

	for i := start; i < end; i++ {
		r := runs[i]
		cursor := "  "
		if i == m.selectedRow {
			cursor = "> "
		}
		title := r.Title
		if title == "" {
			title = truncate(r.Summary, 40)
		}
		unread := " "
		if !r.Read && (r.Status == "pending_review" || r.Status == "failed") {
			unread = "●"
		}
		line := fmt.Sprintf("  %-3s %-22s %-14s %-18s %3d  %s%s",
			cursor,
			truncate(r.AutomationID, 22),
			r.Status,
			humanize.Time(r.StartedAt),
			r.Attempt,
			unread,
			truncate(title, 40),
		)
		if i == m.selectedRow {
			b.WriteString(selectedStyle.Render(line))
		} else {
			b.WriteString(runStatusStyle(r.Status).Render(line))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func runStatusStyle(status string) lipgloss.Style {
	switch status {
	case "running":
		return runningStyle
	case "failed":
		return failedStyle
	case "pending_review":
		return reviewStyle
	case "archived":
		return dimmedStyle
	default:
		return lipgloss.NewStyle()
	}
}

func (m Model) renderStatusBar() string {
	left := " t trigger │ p pause │ s resume │ tab switch │ j/k move │ r refresh │ q quit "
	if m.statusLine != "" {
		left = " " + m.statusLine + " │" + left
	}
	bar := left
	if m.width > len(bar) {
		bar += strings.Repeat(" ", m.width-len(bar))
	}
	return statusBarStyle.Render(bar)
}

func humanTimePtr(t *time.Time) string {
	if t == nil {
		return "—"
	}
	return humanize.Time(*t)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 1 {
		return s[:max]
	}
	return s[:max-1] + "…"
}
