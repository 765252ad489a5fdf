package stores

import (
	"time"
)

// RunStatus mirrors the orchestrator's run status.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one recorded deployment.
type Run struct {
	ID         string     `json:"id"`
	Project    string     `json:"project"`
	Target     string     `json:"target"`
	Status     RunStatus  `json:"status"`
	Error      *string    `json:"error,omitempty"`
	FailedStep *string    `json:"failed_step,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Duration returns how long the run took, or zero while it is running.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Step is one recorded state of a run.
type Step struct {
	RunID     string        `json:"run_id"`
	Seq       int           `json:"seq"`
	State     string        `json:"state"`
	Outcome   string        `json:"outcome"`
	Message   string        `json:"message"`
	Changes   []string      `json:"changes"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// RunFilter narrows ListRuns.
type RunFilter struct {
	Project string
	Status  RunStatus
	Limit   int
	Offset  int
}
