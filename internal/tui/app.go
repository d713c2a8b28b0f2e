package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mpataki/anvil/internal/models"
	"github.com/mpataki/anvil/internal/orchestrator"
)

type View int

const (
	ViewRecordList View = iota
	ViewRecordDetail
)

// App is the `anvil history` browser over the local run ledger.
type App struct {
	orchestrator *orchestrator.Orchestrator

	view        View
	records     []*models.Record
	selectedIdx int
	selected    *models.Record
	detail      viewport.Model

	width  int
	height int
	err    error
}

func NewApp(orch *orchestrator.Orchestrator) *App {
	return &App{
		orchestrator: orch,
		view:         ViewRecordList,
		detail:       viewport.New(80, 20),
	}
}

func (a *App) Init() tea.Cmd {
	return a.loadRecords
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKey(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.detail.Width = msg.Width
		if msg.Height > 8 {
			a.detail.Height = msg.Height - 8
		}
		return a, nil

	case recordsLoadedMsg:
		a.records = msg.records
		a.err = msg.err
		return a, nil
	}

	if a.view == ViewRecordDetail {
		var cmd tea.Cmd
		a.detail, cmd = a.detail.Update(msg)
		return a, cmd
	}

	return a, nil
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch a.view {
	case ViewRecordList:
		return a.handleListKey(msg)
	case ViewRecordDetail:
		return a.handleDetailKey(msg)
	}
	return a, nil
}

func (a *App) handleListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return a, tea.Quit

	case "up", "k":
		if a.selectedIdx > 0 {
			a.selectedIdx--
		}

	case "down", "j":
		if a.selectedIdx < len(a.records)-1 {
			a.selectedIdx++
		}

	case "enter":
		if len(a.records) > 0 && a.selectedIdx < len(a.records) {
			a.selected = a.records[a.selectedIdx]
			a.detail.SetContent(a.formatDetail(a.selected))
			a.detail.GotoTop()
			a.view = ViewRecordDetail
		}

	case "r":
		return a, a.loadRecords
	}

	return a, nil
}

func (a *App) handleDetailKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc":
		a.view = ViewRecordList
		a.selected = nil
		return a, nil

	case "ctrl+c":
		return a, tea.Quit
	}

	var cmd tea.Cmd
	a.detail, cmd = a.detail.Update(msg)
	return a, cmd
}

func (a *App) View() string {
	switch a.view {
	case ViewRecordList:
		return a.viewRecordList()
	case ViewRecordDetail:
		return a.viewRecordDetail()
	}
	return ""
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	outcomeSuccess = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	outcomeFailure = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	outcomeFatal   = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))
)

func (a *App) viewRecordList() string {
	s := titleStyle.Render("Anvil") + "\n\n"

	if a.err != nil {
		s += fmt.Sprintf("Error: %v\n", a.err)
	}

	if len(a.records) == 0 {
		s += "No runs recorded yet.\n"
	} else {
		s += "Run History\n"
		s += "───────────\n"

		for i, rec := range a.records {
			line := a.formatRecordLine(rec)
			if i == a.selectedIdx {
				line = selectedStyle.Render("▶ " + line)
			} else if rec.Outcome != models.RecordSuccess {
				line = "  " + line
			} else {
				line = "  " + dimStyle.Render(line)
			}
			s += line + "\n"
		}
	}

	s += "\n" + helpStyle.Render("[enter] view  [r] refresh  [q] quit")

	return s
}

func (a *App) formatRecordLine(rec *models.Record) string {
	outcome := a.formatOutcome(rec.Outcome)
	age := a.formatAge(rec.CreatedAt)
	goal := truncate(rec.Goal, 40)
	return fmt.Sprintf("#%-3d %s  %-6s  %s", rec.ID, outcome, age, goal)
}

func (a *App) formatAge(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

func (a *App) formatOutcome(outcome models.RecordOutcome) string {
	switch outcome {
	case models.RecordSuccess:
		return outcomeSuccess.Render("✓ success")
	case models.RecordFailure:
		return outcomeFailure.Render("✗ failure")
	case models.RecordFatal:
		return outcomeFatal.Render("⚠ fatal  ")
	default:
		return string(outcome)
	}
}

func (a *App) viewRecordDetail() string {
	if a.selected == nil {
		return "No run selected"
	}

	rec := a.selected
	header := fmt.Sprintf("Run #%d", rec.ID)
	s := titleStyle.Render(header) + "  " + a.formatOutcome(rec.Outcome) + "\n\n"
	s += a.detail.View() + "\n"
	s += "\n" + helpStyle.Render("[↑/↓] scroll  [esc] back  [q] quit")

	return s
}

func (a *App) formatDetail(rec *models.Record) string {
	s := rec.Goal + "\n\n"
	s += labelStyle.Render("Workspace: ") + dimStyle.Render(rec.Workspace) + "\n"
	s += labelStyle.Render("When:      ") + rec.CreatedAt.Format("2006-01-02 15:04:05") + "\n"
	s += labelStyle.Render("Duration:  ") + formatDuration(time.Duration(rec.DurationSec*float64(time.Second))) + "\n"
	s += labelStyle.Render("Tool uses: ") + fmt.Sprintf("%d", rec.ToolUses) + "\n"

	if rec.Error != "" {
		s += labelStyle.Render("Error:     ") + outcomeFailure.Render(rec.Error) + "\n"
	}

	if rec.Summary != "" {
		s += "\nSummary\n"
		s += "───────\n"
		s += rec.Summary + "\n"
	}

	return s
}

// Messages

type recordsLoadedMsg struct {
	records []*models.Record
	err     error
}

// Commands

func (a *App) loadRecords() tea.Msg {
	records, err := a.orchestrator.ListRecords(50)
	return recordsLoadedMsg{records: records, err: err}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
