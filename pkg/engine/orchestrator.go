package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pushdeploy/pushdeploy/pkg/config"
	"github.com/pushdeploy/pushdeploy/pkg/presets"
	"github.com/pushdeploy/pushdeploy/pkg/reconcile"
)

// RemoteName is the local git remote that points at the deployment target.
const RemoteName = "deploy"

// Options configures an Orchestrator.
type Options struct {
	// LoadDescriptor returns the validated descriptor. Required.
	LoadDescriptor DescriptorLoader

	// OpenRepository opens the local repository. Required.
	OpenRepository RepositoryOpener

	// NewTransport creates the remote session. Required.
	NewTransport TransportFactory

	// ProjectDir is the local repository root. When set, the preset verifies
	// the project's source directory during config validation.
	ProjectDir string

	// Reporter observes progress. Optional.
	Reporter Reporter

	// Tracer records one span per run and per step. Defaults to the global provider.
	Tracer trace.Tracer
}

// Orchestrator runs the deployment state machine against one host.
type Orchestrator struct {
	opts     Options
	reporter Reporter
	tracer   trace.Tracer
}

// New creates an orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.LoadDescriptor == nil {
		return nil, errors.New("descriptor loader is required")
	}
	if opts.OpenRepository == nil {
		return nil, errors.New("repository opener is required")
	}
	if opts.NewTransport == nil {
		return nil, errors.New("transport factory is required")
	}

	o := &Orchestrator{
		opts:     opts,
		reporter: opts.Reporter,
		tracer:   opts.Tracer,
	}
	if o.reporter == nil {
		o.reporter = nopReporter{}
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer("github.com/pushdeploy/pushdeploy/pkg/engine")
	}
	return o, nil
}

// runState carries what earlier steps produced to later ones.
type runState struct {
	descriptor *config.Descriptor
	desired    *config.DesiredState
	repo       Repository
	transport  Transport
}

func (rs *runState) closeTransport() {
	if rs.transport == nil {
		return
	}
	if err := rs.transport.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close remote session")
	}
	rs.transport = nil
}

// stepFunc is a state's entry action.
type stepFunc func(o *Orchestrator, ctx context.Context, rs *runState) (Outcome, string, []string, error)

type transition struct {
	enter stepFunc
	next  State
}

const initialState = StateConfigValidated

// transitions is the ordered state machine. Every state has exactly one
// entry action and one successor.
var transitions = map[State]transition{
	StateConfigValidated:       {enter: (*Orchestrator).validateConfig, next: StateRepoFound},
	StateRepoFound:             {enter: (*Orchestrator).findRepository, next: StateConnected},
	StateConnected:             {enter: (*Orchestrator).connect, next: StateDependenciesSatisfied},
	StateDependenciesSatisfied: {enter: (*Orchestrator).ensureDependencies, next: StateDirectoriesReady},
	StateDirectoriesReady:      {enter: (*Orchestrator).ensureDirectories, next: StateRepositoriesReady},
	StateRepositoriesReady:     {enter: (*Orchestrator).ensureRepositories, next: StateRemoteRegistered},
	StateRemoteRegistered:      {enter: (*Orchestrator).registerRemote, next: StateSupervisorSynced},
	StateSupervisorSynced:      {enter: (*Orchestrator).syncSupervisor, next: StatePushed},
	StatePushed:                {enter: (*Orchestrator).push, next: stateDone},
}

// Run executes every state in order and stops at the first failure. The
// returned Run is always non-nil; the error is a *StepError.
func (o *Orchestrator) Run(ctx context.Context) (*Run, error) {
	run := &Run{
		ID:        uuid.New().String(),
		Status:    RunStatusRunning,
		StartedAt: time.Now(),
	}

	ctx, span := o.tracer.Start(ctx, "deploy.run", trace.WithAttributes(attribute.String("run.id", run.ID)))
	defer span.End()

	logger := log.With().Str("run_id", run.ID).Logger()
	logger.Debug().Msg("deployment run started")
	o.reporter.RunStarted(run)

	rs := &runState{}
	defer rs.closeTransport()

	for state := initialState; state != stateDone; state = transitions[state].next {
		step := o.enter(ctx, state, rs)
		run.Steps = append(run.Steps, step)

		if state == StateConfigValidated && rs.descriptor != nil {
			run.Project = rs.descriptor.Project.Name
			run.Target = rs.descriptor.Server.User + "@" + rs.descriptor.Server.Address
			span.SetAttributes(attribute.String("project", run.Project), attribute.String("target", run.Target))
		}

		if step.Outcome == OutcomeFailed {
			run.Err = &StepError{State: state, Err: step.Err}
			run.Status = RunStatusFailed

			rs.closeTransport()
			run.FinishedAt = time.Now()

			logger.Debug().Err(step.Err).Str("state", string(state)).Msg("deployment run failed")
			span.RecordError(run.Err)
			span.SetStatus(codes.Error, run.Err.Error())

			o.reporter.StepCompleted(run, step)
			o.reporter.RunFinished(run)
			return run, run.Err
		}

		o.reporter.StepCompleted(run, step)
	}

	rs.closeTransport()
	run.Status = RunStatusSucceeded
	run.FinishedAt = time.Now()

	logger.Debug().Dur("duration", run.Duration()).Msg("deployment run succeeded")
	span.SetStatus(codes.Ok, "")
	o.reporter.RunFinished(run)

	return run, nil
}

func (o *Orchestrator) enter(ctx context.Context, state State, rs *runState) StepResult {
	ctx, span := o.tracer.Start(ctx, "deploy.step", trace.WithAttributes(attribute.String("state", string(state))))
	defer span.End()

	step := StepResult{State: state, Outcome: OutcomeRunning, StartedAt: time.Now()}
	log.Debug().Str("state", string(state)).Msg("entering state")

	outcome, message, changes, err := transitions[state].enter(o, ctx, rs)
	step.Duration = time.Since(step.StartedAt)

	if err != nil {
		step.Outcome = OutcomeFailed
		step.Err = err
		step.Message = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return step
	}

	step.Outcome = outcome
	step.Message = message
	step.Changes = changes
	span.SetAttributes(attribute.String("outcome", string(outcome)))
	return step
}

func (o *Orchestrator) validateConfig(ctx context.Context, rs *runState) (Outcome, string, []string, error) {
	d, err := o.opts.LoadDescriptor()
	if err != nil {
		return "", "", nil, err
	}

	if o.opts.ProjectDir != "" {
		preset, err := presets.Lookup(d.Project.Preset)
		if err != nil {
			return "", "", nil, err
		}
		if err := preset.Verify(filepath.Join(o.opts.ProjectDir, d.Project.Directories.Source)); err != nil {
			return "", "", nil, err
		}
	}

	desired, err := config.BuildDesiredState(d)
	if err != nil {
		return "", "", nil, err
	}

	rs.descriptor = d
	rs.desired = desired
	return OutcomeSatisfied, "Config file is valid.", nil, nil
}

func (o *Orchestrator) findRepository(ctx context.Context, rs *runState) (Outcome, string, []string, error) {
	repo, err := o.opts.OpenRepository()
	if err != nil {
		return "", "", nil, fmt.Errorf("no git repository was found: %w", err)
	}
	rs.repo = repo
	return OutcomeSatisfied, "Found git repository.", nil, nil
}

func (o *Orchestrator) connect(ctx context.Context, rs *runState) (Outcome, string, []string, error) {
	address := rs.descriptor.Server.Address

	t, err := o.opts.NewTransport(rs.descriptor)
	if err != nil {
		return "", "", nil, reconcile.NewConnectionError(address, err)
	}
	rs.transport = t

	if err := t.Connect(ctx); err != nil {
		return "", "", nil, reconcile.NewConnectionError(address, err)
	}
	return OutcomeSatisfied, "Successfully connected to remote server.", nil, nil
}

func (o *Orchestrator) ensureDependencies(ctx context.Context, rs *runState) (Outcome, string, []string, error) {
	installed, err := reconcile.NewPackageProbe(rs.transport).EnsureAllInstalled(ctx, rs.desired.RequiredPackages)
	if err != nil {
		return "", "", nil, err
	}
	return outcomeOf(installed), "Deploy dependencies are installed.", prefixed("installed ", installed), nil
}

func (o *Orchestrator) ensureDirectories(ctx context.Context, rs *runState) (Outcome, string, []string, error) {
	created, err := reconcile.NewFilesystem(rs.transport).EnsureDirectories(ctx, rs.desired.Directories, rs.desired.AutoCreate)
	if err != nil {
		return "", "", nil, err
	}
	return outcomeOf(created), "Deploy directory structure is valid.", prefixed("created ", created), nil
}

func (o *Orchestrator) ensureRepositories(ctx context.Context, rs *runState) (Outcome, string, []string, error) {
	repos := rs.desired.Repositories
	created, err := reconcile.NewFilesystem(rs.transport).EnsureGitRepositories(ctx, repos.BarePath, repos.WorktreePath, rs.desired.AutoCreate)
	if err != nil {
		return "", "", nil, err
	}
	return outcomeOf(created), "Found remote repository.", prefixed("initialized ", created), nil
}

func (o *Orchestrator) registerRemote(ctx context.Context, rs *runState) (Outcome, string, []string, error) {
	const message = "Local repository has valid remote."
	want := rs.desired.RemoteURL

	current, exists, err := rs.repo.RemoteURL(RemoteName)
	if err != nil {
		return "", "", nil, fmt.Errorf("could not read remote %q: %w", RemoteName, err)
	}

	switch {
	case !exists:
		if err := rs.repo.CreateRemote(RemoteName, want); err != nil {
			return "", "", nil, fmt.Errorf("could not create remote %q: %w", RemoteName, err)
		}
		return OutcomeCreated, message, []string{fmt.Sprintf("added remote %s %s", RemoteName, want)}, nil
	case current != want:
		if err := rs.repo.SetRemoteURL(RemoteName, want); err != nil {
			return "", "", nil, fmt.Errorf("could not update remote %q: %w", RemoteName, err)
		}
		return OutcomeCreated, message, []string{fmt.Sprintf("set remote %s to %s", RemoteName, want)}, nil
	}

	return OutcomeSatisfied, message, nil, nil
}

func (o *Orchestrator) syncSupervisor(ctx context.Context, rs *runState) (Outcome, string, []string, error) {
	sup := reconcile.NewSupervisor(rs.transport, rs.desired.AutoCreate)

	changed, err := sup.Sync(ctx, rs.desired.ProjectName, rs.desired.SupervisorConfig)
	if err != nil {
		return "", "", nil, err
	}
	if !changed {
		return OutcomeSatisfied, "Installed supervisor config.", nil, nil
	}

	path, err := sup.ConfigPath(ctx, rs.desired.ProjectName)
	if err != nil {
		return "", "", nil, err
	}
	return OutcomeCreated, "Installed supervisor config.", []string{"wrote " + path}, nil
}

func (o *Orchestrator) push(ctx context.Context, rs *runState) (Outcome, string, []string, error) {
	results, err := rs.repo.Push(ctx, RemoteName)
	if err != nil {
		return "", "", nil, &reconcile.Error{Kind: reconcile.KindPush, Message: "error pushing to remote repository", Err: err}
	}

	for _, r := range results {
		if r.Error {
			return "", "", nil, reconcile.NewPushError(r.Summary)
		}
	}

	return OutcomeSatisfied, "Pushed to remote repository.", nil, nil
}

// CheckConnection opens and closes a session to the descriptor's server.
func (o *Orchestrator) CheckConnection(ctx context.Context) error {
	d, err := o.opts.LoadDescriptor()
	if err != nil {
		return err
	}

	t, err := o.opts.NewTransport(d)
	if err != nil {
		return reconcile.NewConnectionError(d.Server.Address, err)
	}
	defer t.Close()

	if err := t.Connect(ctx); err != nil {
		return reconcile.NewConnectionError(d.Server.Address, err)
	}
	return nil
}

func outcomeOf(changed []string) Outcome {
	if len(changed) > 0 {
		return OutcomeCreated
	}
	return OutcomeSatisfied
}

func prefixed(prefix string, items []string) []string {
	if len(items) == 0 {
		return nil
	}
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = prefix + item
	}
	return out
}
