// Package report prints deployment progress for the operator.
package report

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/pushdeploy/pushdeploy/pkg/engine"
)

// Terminal writes one line per event:
//
//	[√] Found git repository.
//	[WARN]: created /home/u/.deploy/proj
//	[ERROR]: ConnectionError: could not connect to 192.0.2.10
type Terminal struct {
	mu  sync.Mutex
	out io.Writer

	valid lipgloss.Style
	warn  lipgloss.Style
	fail  lipgloss.Style
	faint lipgloss.Style
}

var _ engine.Reporter = (*Terminal)(nil)

// NewTerminal creates a terminal reporter. Colors are dropped when out is not a TTY.
func NewTerminal(out io.Writer) *Terminal {
	r := lipgloss.NewRenderer(out)
	return &Terminal{
		out:   out,
		valid: r.NewStyle().Foreground(lipgloss.Color("#5B8DEF")),
		warn:  r.NewStyle().Foreground(lipgloss.Color("#E5C07B")),
		fail:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B")),
		faint: r.NewStyle().Foreground(lipgloss.Color("#888888")),
	}
}

// Valid prints a confirmation line.
func (t *Terminal) Valid(format string, args ...any) {
	t.println(t.valid.Render("[√]") + " " + fmt.Sprintf(format, args...))
}

// Warn prints a warning line.
func (t *Terminal) Warn(format string, args ...any) {
	t.println(t.warn.Render("[WARN]:") + " " + fmt.Sprintf(format, args...))
}

// Error prints an error line.
func (t *Terminal) Error(format string, args ...any) {
	t.println(t.fail.Render("[ERROR]:") + " " + fmt.Sprintf(format, args...))
}

// Info prints an unprefixed, dimmed line.
func (t *Terminal) Info(format string, args ...any) {
	t.println(t.faint.Render(fmt.Sprintf(format, args...)))
}

// RunStarted implements engine.Reporter.
func (t *Terminal) RunStarted(*engine.Run) {}

// StepCompleted implements engine.Reporter. Failures are left to the caller,
// which prints the run error once.
func (t *Terminal) StepCompleted(_ *engine.Run, step engine.StepResult) {
	if !step.Outcome.IsSuccess() {
		return
	}
	for _, change := range step.Changes {
		t.Warn("%s", change)
	}
	t.Valid("%s", step.Message)
}

// RunFinished implements engine.Reporter.
func (t *Terminal) RunFinished(run *engine.Run) {
	if run.Status != engine.RunStatusSucceeded {
		return
	}
	t.Info("Deployed %s to %s in %s.", run.Project, run.Target, run.Duration().Round(time.Millisecond))
}

func (t *Terminal) println(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.out, line)
}
