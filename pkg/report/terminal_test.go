package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/pushdeploy/pushdeploy/pkg/engine"
)

func TestTerminalLines(t *testing.T) {
	tests := []struct {
		name     string
		print    func(t *Terminal)
		expected string
	}{
		{"valid", func(t *Terminal) { t.Valid("Config file is valid.") }, "[√] Config file is valid.\n"},
		{"warn", func(t *Terminal) { t.Warn("Could not validate SSH connection.") }, "[WARN]: Could not validate SSH connection.\n"},
		{"error", func(t *Terminal) { t.Error("No git repository was found.") }, "[ERROR]: No git repository was found.\n"},
		{"format args", func(t *Terminal) { t.Valid("%d presets", 3) }, "[√] 3 presets\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			tt.print(NewTerminal(&out))
			if out.String() != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, out.String())
			}
		})
	}
}

func TestTerminalReporter(t *testing.T) {
	var out bytes.Buffer
	term := NewTerminal(&out)

	run := &engine.Run{Project: "proj", Target: "u@192.0.2.10", StartedAt: time.Now()}
	term.RunStarted(run)
	term.StepCompleted(run, engine.StepResult{
		State:   engine.StateConfigValidated,
		Outcome: engine.OutcomeSatisfied,
		Message: "Config file is valid.",
	})
	term.StepCompleted(run, engine.StepResult{
		State:   engine.StateDirectoriesReady,
		Outcome: engine.OutcomeCreated,
		Message: "Deploy directory structure is valid.",
		Changes: []string{"created /home/u/.deploy/proj"},
	})
	term.StepCompleted(run, engine.StepResult{
		State:   engine.StateConnected,
		Outcome: engine.OutcomeFailed,
		Message: "ConnectionError: could not connect to 192.0.2.10",
	})

	run.Status = engine.RunStatusFailed
	term.RunFinished(run)

	expected := "[√] Config file is valid.\n" +
		"[WARN]: created /home/u/.deploy/proj\n" +
		"[√] Deploy directory structure is valid.\n"
	if out.String() != expected {
		t.Errorf("expected %q, got %q", expected, out.String())
	}
}

func TestTerminalRunSucceeded(t *testing.T) {
	var out bytes.Buffer
	term := NewTerminal(&out)

	start := time.Now()
	term.RunFinished(&engine.Run{
		Project:    "proj",
		Target:     "u@192.0.2.10",
		Status:     engine.RunStatusSucceeded,
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
	})

	if !strings.HasPrefix(out.String(), "Deployed proj to u@192.0.2.10 in 1.5s") {
		t.Errorf("unexpected summary %q", out.String())
	}
}
