package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kelsos/quickrank/internal/logger"
	"github.com/kelsos/quickrank/internal/pipeline"
)

// Runner is the part of the orchestrator the monitor drives.
type Runner interface {
	Start(inputs pipeline.Inputs) error
	Cancel()
	Done() <-chan struct{}
}

// RunMonitor shows one pipeline run in a full-screen view. Pass Listener to
// the orchestrator so state changes reach the view.
type RunMonitor struct {
	runner  Runner
	program *tea.Program
}

func NewRunMonitor(opts ...tea.ProgramOption) *RunMonitor {
	rm := &RunMonitor{}
	if len(opts) == 0 {
		opts = []tea.ProgramOption{tea.WithAltScreen()}
	}
	rm.program = tea.NewProgram(NewModel(rm.cancel), opts...)
	return rm
}

// Listener forwards snapshots into the view. It blocks until the view has
// started and returns immediately once it has stopped.
func (rm *RunMonitor) Listener(snap pipeline.Snapshot) {
	rm.program.Send(SnapshotUpdate{Snapshot: snap})
}

func (rm *RunMonitor) AddLog(message string) {
	rm.program.Send(LogMessage{Message: message})
}

func (rm *RunMonitor) Stop() {
	rm.program.Quit()
}

func (rm *RunMonitor) cancel() {
	if rm.runner != nil {
		rm.runner.Cancel()
	}
}

// Run starts the run on runner and shows it until the run ends or the user
// quits. Quitting cancels a run that is still executing.
func (rm *RunMonitor) Run(runner Runner, inputs pipeline.Inputs) error {
	rm.runner = runner

	go func() {
		if err := runner.Start(inputs); err != nil {
			logger.Error("Failed to start run: %v", err)
			rm.AddLog(fmt.Sprintf("❌ %v", err))
			rm.Stop()
			return
		}
		<-runner.Done()
		rm.program.Send(RunFinished{})
	}()

	// Blocks until quit
	if _, err := rm.program.Run(); err != nil {
		runner.Cancel()
		return fmt.Errorf("failed to run TUI: %w", err)
	}

	runner.Cancel()
	return nil
}
