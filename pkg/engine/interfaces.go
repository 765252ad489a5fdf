package engine

import (
	"context"

	"github.com/pushdeploy/pushdeploy/pkg/config"
	"github.com/pushdeploy/pushdeploy/pkg/reconcile"
)

// Transport is the single remote session of a run.
type Transport interface {
	reconcile.Runner

	// Connect establishes the authenticated session.
	Connect(ctx context.Context) error

	// Close releases the session. It is called on every exit path.
	Close() error
}

// Repository is the local git repository being deployed.
type Repository interface {
	// RemoteURL returns the URL of the named remote and whether it exists.
	RemoteURL(name string) (string, bool, error)

	// SetRemoteURL points an existing remote at url.
	SetRemoteURL(name, url string) error

	// CreateRemote adds a new remote.
	CreateRemote(name, url string) error

	// Push pushes to the named remote and returns one result per ref.
	Push(ctx context.Context, remote string) ([]PushResult, error)
}

// Reporter observes a run as it progresses.
type Reporter interface {
	// RunStarted is called before the first step.
	RunStarted(run *Run)

	// StepCompleted is called once per finished step, successful or not.
	StepCompleted(run *Run, step StepResult)

	// RunFinished is called once the run succeeded or failed.
	RunFinished(run *Run)
}

// DescriptorLoader returns the validated deployment descriptor.
type DescriptorLoader func() (*config.Descriptor, error)

// RepositoryOpener opens the local repository.
type RepositoryOpener func() (Repository, error)

// TransportFactory creates an unconnected transport for the descriptor's server.
type TransportFactory func(d *config.Descriptor) (Transport, error)

// Reporters fans out every event to each reporter in order.
type Reporters []Reporter

// RunStarted implements Reporter.
func (rs Reporters) RunStarted(run *Run) {
	for _, r := range rs {
		r.RunStarted(run)
	}
}

// StepCompleted implements Reporter.
func (rs Reporters) StepCompleted(run *Run, step StepResult) {
	for _, r := range rs {
		r.StepCompleted(run, step)
	}
}

// RunFinished implements Reporter.
func (rs Reporters) RunFinished(run *Run) {
	for _, r := range rs {
		r.RunFinished(run)
	}
}

type nopReporter struct{}

func (nopReporter) RunStarted(*Run)                {}
func (nopReporter) StepCompleted(*Run, StepResult) {}
func (nopReporter) RunFinished(*Run)               {}
