package engine

import "time"

// StepResult is the recorded outcome of one state's entry action.
type StepResult struct {
	// State is the step that ran.
	State State `json:"state"`

	// Outcome is satisfied, created or failed.
	Outcome Outcome `json:"outcome"`

	// Message is the operator-facing confirmation or the failure text.
	Message string `json:"message"`

	// Changes lists the corrective actions taken, if any.
	Changes []string `json:"changes,omitempty"`

	// Err is set for failed steps.
	Err error `json:"-"`

	// StartedAt is when the step began.
	StartedAt time.Time `json:"started_at"`

	// Duration is how long the step took.
	Duration time.Duration `json:"duration"`
}

// Run is one invocation of the orchestrator.
type Run struct {
	// ID uniquely identifies the run.
	ID string `json:"id"`

	// Project is the deployed project name, known once the config is validated.
	Project string `json:"project"`

	// Target is user@address, known once the config is validated.
	Target string `json:"target"`

	// Status is the overall run status.
	Status RunStatus `json:"status"`

	// Steps holds the results in execution order.
	Steps []StepResult `json:"steps"`

	// Err is the *StepError that ended a failed run.
	Err error `json:"-"`

	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when the run ended.
	FinishedAt time.Time `json:"finished_at"`
}

// Duration returns how long the run took.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// LastStep returns the most recent step, or nil.
func (r *Run) LastStep() *StepResult {
	if len(r.Steps) == 0 {
		return nil
	}
	return &r.Steps[len(r.Steps)-1]
}

// Step returns the result recorded for state, if it ran.
func (r *Run) Step(state State) (StepResult, bool) {
	for _, s := range r.Steps {
		if s.State == state {
			return s, true
		}
	}
	return StepResult{}, false
}

// PushResult is the outcome of pushing one ref.
type PushResult struct {
	// Ref is the local ref that was pushed.
	Ref string

	// Error is set when the remote rejected the ref.
	Error bool

	// Summary is git's one-line description of the ref update.
	Summary string
}
