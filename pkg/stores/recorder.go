package stores

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pushdeploy/pushdeploy/pkg/engine"
)

// Recorder persists orchestrator events. Storage failures are logged and
// never fail the deployment.
type Recorder struct {
	store   *SQLiteStore
	timeout time.Duration
}

var _ engine.Reporter = (*Recorder)(nil)

// NewRecorder creates a reporter writing to store.
func NewRecorder(store *SQLiteStore) *Recorder {
	return &Recorder{store: store, timeout: 5 * time.Second}
}

// RunStarted implements engine.Reporter.
func (r *Recorder) RunStarted(run *engine.Run) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	err := r.store.CreateRun(ctx, &Run{
		ID:        run.ID,
		Project:   run.Project,
		Target:    run.Target,
		Status:    RunStatusRunning,
		StartedAt: run.StartedAt.UTC(),
	})
	if err != nil {
		log.Warn().Err(err).Str("run_id", run.ID).Msg("failed to record run")
	}
}

// StepCompleted implements engine.Reporter.
func (r *Recorder) StepCompleted(run *engine.Run, step engine.StepResult) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	err := r.store.RecordStep(ctx, &Step{
		RunID:     run.ID,
		Seq:       len(run.Steps),
		State:     string(step.State),
		Outcome:   string(step.Outcome),
		Message:   step.Message,
		Changes:   step.Changes,
		StartedAt: step.StartedAt.UTC(),
		Duration:  step.Duration,
	})
	if err != nil {
		log.Warn().Err(err).Str("run_id", run.ID).Str("state", string(step.State)).Msg("failed to record step")
	}
}

// RunFinished implements engine.Reporter.
func (r *Recorder) RunFinished(run *engine.Run) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	finished := run.FinishedAt.UTC()
	record := &Run{
		ID:         run.ID,
		Project:    run.Project,
		Target:     run.Target,
		Status:     RunStatus(run.Status),
		StartedAt:  run.StartedAt.UTC(),
		FinishedAt: &finished,
	}

	if run.Err != nil {
		msg := run.Err.Error()
		record.Error = &msg

		var stepErr *engine.StepError
		if errors.As(run.Err, &stepErr) {
			state := string(stepErr.State)
			record.FailedStep = &state
		}
	}

	if err := r.store.CompleteRun(ctx, record); err != nil {
		log.Warn().Err(err).Str("run_id", run.ID).Msg("failed to record run result")
	}
}
