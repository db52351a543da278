package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/kelsos/quickrank/internal/pipeline"
)

const maxLogs = 10

type Model struct {
	snapshot pipeline.Snapshot
	lastSeen pipeline.Phase
	logs     []string
	onCancel func()
	spinner  spinner.Model
	progress progress.Model
	width    int
	height   int
	finished bool
	quit     bool
}

// SnapshotUpdate carries a new run state from the orchestrator listener.
type SnapshotUpdate struct {
	Snapshot pipeline.Snapshot
}

type LogMessage struct {
	Message string
}

// RunFinished is sent once the run goroutine has exited.
type RunFinished struct{}

// NewModel creates the monitor model. onCancel is invoked off the event loop
// when the user asks to cancel the run.
func NewModel(onCancel func()) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	pr := progress.New(progress.WithDefaultGradient())

	return Model{
		snapshot: pipeline.Snapshot{Phase: pipeline.PhaseIdle},
		lastSeen: pipeline.PhaseIdle,
		logs:     []string{},
		onCancel: onCancel,
		spinner:  sp,
		progress: pr,
		width:    80,
		height:   24,
	}
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m = m.handleWindowSizeMsg(msg)

	case SnapshotUpdate:
		m = m.handleSnapshot(msg.Snapshot)

	case LogMessage:
		m = m.appendLog(msg.Message)

	case RunFinished:
		m.finished = true
		m.quit = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		if progressModel, ok := progressModel.(progress.Model); ok {
			m.progress = progressModel
		}
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quit = true
		return m, tea.Quit
	case "c":
		if m.onCancel == nil || !m.snapshot.Phase.Active() {
			return m, nil
		}
		m = m.appendLog("Cancelling run...")
		// Cancelling notifies the listener, which sends back into this loop.
		cancel := m.onCancel
		return m, func() tea.Msg {
			cancel()
			return nil
		}
	}
	return m, nil
}

func (m Model) handleWindowSizeMsg(msg tea.WindowSizeMsg) Model {
	m.width = msg.Width
	m.height = msg.Height
	m.progress.Width = msg.Width - 20
	return m
}

func (m Model) handleSnapshot(snap pipeline.Snapshot) Model {
	// Ignore anything older than what is already on screen.
	if snap.Seq < m.snapshot.Seq {
		return m
	}
	m.snapshot = snap
	if snap.Phase == m.lastSeen {
		return m
	}
	m.lastSeen = snap.Phase

	switch {
	case snap.Phase == pipeline.PhaseError:
		m = m.appendLog(fmt.Sprintf("❌ Failed during %s: %s", snap.FailedPhase, snap.FailureReason))
	case snap.Phase == pipeline.PhaseComplete:
		m = m.appendLog(fmt.Sprintf("🎉 Ranked %d candidates", len(snap.Result.Candidates)))
	case snap.Cancelled:
		m = m.appendLog("⏹ Run cancelled")
	case snap.Phase.Active():
		m = m.appendLog(fmt.Sprintf("▶ %s", snap.Message))
	}
	return m
}

func (m Model) appendLog(message string) Model {
	m.logs = append(m.logs, fmt.Sprintf("[%s] %s",
		time.Now().Format("15:04:05"), message))
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
	return m
}

func (m Model) View() string {
	if m.quit && !m.finished {
		return "Shutting down...\n"
	}

	var s strings.Builder
	snap := m.snapshot

	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("39")).
		MarginBottom(1)

	s.WriteString(headerStyle.Render("📋 QuickRank Monitor"))
	s.WriteString("\n\n")

	summaryStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("244"))

	summary := fmt.Sprintf("Phase: %s | Candidates: %d | Elapsed: %s",
		snap.Phase, len(snap.CandidateIDs), elapsed(snap))
	s.WriteString(summaryStyle.Render(summary))
	s.WriteString("\n\n")

	sectionStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(1).
		Width(m.width - 2)

	var phases strings.Builder
	phases.WriteString("📊 Pipeline\n")
	phases.WriteString(strings.Repeat("─", 40) + "\n")

	for _, phase := range pipeline.Phases {
		state := phaseState(snap, phase)
		marker := getStateIcon(state)
		if state == statePending && phase == snap.Phase {
			marker = m.spinner.View()
		}
		line := fmt.Sprintf("%s %-12s", marker, phase)
		phases.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(getStateColor(state))).Render(line) + "\n")
	}

	phases.WriteString("\n")
	phases.WriteString(m.progress.ViewAs(snap.Progress / 100))
	phases.WriteString("\n")

	messageStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	if snap.Phase == pipeline.PhaseError {
		messageStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	}
	phases.WriteString(messageStyle.Render(truncate(snap.Message, m.width-8)))

	s.WriteString(sectionStyle.Render(phases.String()))
	s.WriteString("\n\n")

	if snap.Result != nil {
		s.WriteString(renderTopCandidates(snap))
		s.WriteString("\n\n")
	}

	logSectionStyle := lipgloss.NewStyle().
		Border(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1).
		Width(m.width - 2).
		Height(8)

	var logSection strings.Builder
	logSection.WriteString("📝 Recent Logs\n")
	for _, log := range m.logs {
		logSection.WriteString(log + "\n")
	}

	s.WriteString(logSectionStyle.Render(logSection.String()))
	s.WriteString("\n\n")

	footerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	footer := "Press 'c' to cancel | 'q' to quit | Logs: logs/quickrank_*.log"
	s.WriteString(footerStyle.Render(footer))

	return s.String()
}

type phaseStatus int

const (
	stateWaiting phaseStatus = iota
	statePending
	stateDone
	stateFailed
	stateCancelled
)

// phaseState places phase relative to where the run is or stopped.
func phaseState(snap pipeline.Snapshot, phase pipeline.Phase) phaseStatus {
	current := snap.Phase
	switch {
	case snap.Phase == pipeline.PhaseComplete:
		return stateDone
	case snap.Phase == pipeline.PhaseError:
		current = snap.FailedPhase
	case snap.Cancelled:
		return stateCancelled
	case !snap.Phase.Active():
		return stateWaiting
	}

	pos, cur := indexOf(phase), indexOf(current)
	switch {
	case pos < cur:
		return stateDone
	case pos > cur:
		return stateWaiting
	case snap.Phase == pipeline.PhaseError:
		return stateFailed
	default:
		return statePending
	}
}

func indexOf(phase pipeline.Phase) int {
	for i, p := range pipeline.Phases {
		if p == phase {
			return i
		}
	}
	return -1
}

func renderTopCandidates(snap pipeline.Snapshot) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🏆 Top candidates for %s\n", snap.Result.JobPostingID))
	for i, c := range snap.Result.Candidates {
		if i == 5 {
			b.WriteString(fmt.Sprintf("   ... and %d more\n", len(snap.Result.Candidates)-5))
			break
		}
		name := c.Name
		if name == "" {
			name = c.CandidateID
		}
		b.WriteString(fmt.Sprintf("%3d. %-24s %6.1f\n", c.Rank, truncate(name, 24), c.Score))
	}
	return strings.TrimRight(b.String(), "\n")
}

func elapsed(snap pipeline.Snapshot) string {
	if snap.StartedAt.IsZero() {
		return "-"
	}
	end := snap.FinishedAt
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(snap.StartedAt).Round(time.Second).String()
}

func getStateIcon(state phaseStatus) string {
	switch state {
	case stateDone:
		return "✅"
	case statePending:
		return "⏳"
	case stateFailed:
		return "❌"
	case stateCancelled:
		return "⏹"
	default:
		return "⏸"
	}
}

func getStateColor(state phaseStatus) string {
	switch state {
	case stateDone:
		return "82"
	case stateFailed:
		return "196"
	case stateWaiting, stateCancelled:
		return "244"
	default:
		return "39"
	}
}

// truncate shortens s to at most max terminal cells.
func truncate(s string, max int) string {
	if max < 4 {
		return s
	}
	return ansi.Truncate(s, max, "...")
}
