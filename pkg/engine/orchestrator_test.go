package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/pushdeploy/pushdeploy/pkg/config"
	"github.com/pushdeploy/pushdeploy/pkg/reconcile"
	"github.com/pushdeploy/pushdeploy/pkg/reconcile/remotetest"
)

const testDescriptor = `{
    "server": {"address": "192.0.2.10", "user": "u"},
    "project": {"name": "proj", "preset": "java:gradle", "directories": {"source": "", "build": ""}},
    "scripts": {"before": [], "after": []}
}`

const testRemoteURL = "ssh://u@192.0.2.10/home/u/.deploy/proj/src.git"

// fakeRepository is an in-memory local repository.
type fakeRepository struct {
	remotes     map[string]string
	pushResults []PushResult
	pushErr     error
	pushes      int
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{remotes: map[string]string{}}
}

func (r *fakeRepository) RemoteURL(name string) (string, bool, error) {
	url, ok := r.remotes[name]
	return url, ok, nil
}

func (r *fakeRepository) SetRemoteURL(name, url string) error {
	if _, ok := r.remotes[name]; !ok {
		return errors.New("no such remote")
	}
	r.remotes[name] = url
	return nil
}

func (r *fakeRepository) CreateRemote(name, url string) error {
	if _, ok := r.remotes[name]; ok {
		return errors.New("remote already exists")
	}
	r.remotes[name] = url
	return nil
}

func (r *fakeRepository) Push(ctx context.Context, remote string) ([]PushResult, error) {
	r.pushes++
	return r.pushResults, r.pushErr
}

// recordingReporter captures every event.
type recordingReporter struct {
	started  int
	steps    []StepResult
	finished []*Run
}

func (r *recordingReporter) RunStarted(*Run) { r.started++ }

func (r *recordingReporter) StepCompleted(_ *Run, step StepResult) {
	r.steps = append(r.steps, step)
}

func (r *recordingReporter) RunFinished(run *Run) {
	r.finished = append(r.finished, run)
}

func (r *recordingReporter) outcome(state State) (Outcome, bool) {
	for _, s := range r.steps {
		if s.State == state {
			return s.Outcome, true
		}
	}
	return "", false
}

// readyHost returns a host that already satisfies every step.
func readyHost() *remotetest.Host {
	host := remotetest.NewHost()
	host.Installed["supervisor"] = true
	host.Installed["git"] = true
	host.AddDir("/home/u/.deploy/proj/src/.git")
	host.AddBareRepository("/home/u/.deploy/proj/src.git")
	host.AddDir(reconcile.SupervisorDirDebian)
	return host
}

func newTestOrchestrator(t *testing.T, host *remotetest.Host, repo *fakeRepository, reporter Reporter) *Orchestrator {
	t.Helper()

	o, err := New(Options{
		LoadDescriptor: func() (*config.Descriptor, error) {
			return config.Parse([]byte(testDescriptor))
		},
		OpenRepository: func() (Repository, error) {
			return repo, nil
		},
		NewTransport: func(*config.Descriptor) (Transport, error) {
			return host, nil
		},
		Reporter: reporter,
	})
	if err != nil {
		t.Fatalf("failed to create orchestrator: %v", err)
	}
	return o
}

func TestNewRequiresCollaborators(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{name: "no loader", opts: Options{}},
		{name: "no repository", opts: Options{LoadDescriptor: func() (*config.Descriptor, error) { return nil, nil }}},
		{name: "no transport", opts: Options{
			LoadDescriptor: func() (*config.Descriptor, error) { return nil, nil },
			OpenRepository: func() (Repository, error) { return nil, nil },
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.opts); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestRunCreatesMissingDirectory(t *testing.T) {
	host := remotetest.NewHost()
	host.Installed["supervisor"] = true
	host.Installed["git"] = true
	host.AddDir(reconcile.SupervisorDirDebian)

	repo := newFakeRepository()
	reporter := &recordingReporter{}

	run, err := newTestOrchestrator(t, host, repo, reporter).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if run.Status != RunStatusSucceeded {
		t.Errorf("expected succeeded, got %s", run.Status)
	}
	if !host.HasDir("/home/u/.deploy/proj") {
		t.Error("expected app directory to be created")
	}

	outcome, ok := reporter.outcome(StateDirectoriesReady)
	if !ok || outcome != OutcomeCreated {
		t.Errorf("expected DirectoriesReady to be created, got %q", outcome)
	}
	step, _ := run.Step(StateDirectoriesReady)
	if len(step.Changes) == 0 || step.Changes[0] != "created /home/u/.deploy/proj" {
		t.Errorf("expected the created directory in the step changes, got %v", step.Changes)
	}

	outcome, _ = reporter.outcome(StateDependenciesSatisfied)
	if outcome != OutcomeSatisfied {
		t.Errorf("expected dependencies satisfied, got %q", outcome)
	}

	if len(reporter.steps) != len(States()) {
		t.Errorf("expected %d reported steps, got %d", len(States()), len(reporter.steps))
	}
	if repo.remotes[RemoteName] != testRemoteURL {
		t.Errorf("expected remote %s, got %s", testRemoteURL, repo.remotes[RemoteName])
	}
	if content, _ := host.File(reconcile.SupervisorDirDebian + "/proj.conf"); !strings.HasPrefix(content, "[program:proj]") {
		t.Errorf("expected supervisor config to be written, got %q", content)
	}
	step, _ = run.Step(StateSupervisorSynced)
	if step.Outcome != OutcomeCreated || len(step.Changes) != 1 || step.Changes[0] != "wrote "+reconcile.SupervisorDirDebian+"/proj.conf" {
		t.Errorf("expected the written config path in the step changes, got %s %v", step.Outcome, step.Changes)
	}
	if host.CloseCount() != 1 {
		t.Errorf("expected transport to be closed once, got %d", host.CloseCount())
	}
}

func TestRunReportsStatesInOrder(t *testing.T) {
	reporter := &recordingReporter{}
	repo := newFakeRepository()
	repo.remotes[RemoteName] = testRemoteURL

	run, err := newTestOrchestrator(t, readyHost(), repo, reporter).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []State{
		StateConfigValidated, StateRepoFound, StateConnected, StateDependenciesSatisfied,
		StateDirectoriesReady, StateRepositoriesReady, StateRemoteRegistered,
		StateSupervisorSynced, StatePushed,
	}
	if len(reporter.steps) != len(expected) {
		t.Fatalf("expected %d steps, got %d", len(expected), len(reporter.steps))
	}
	for i, state := range expected {
		if reporter.steps[i].State != state {
			t.Errorf("expected step %d to be %s, got %s", i, state, reporter.steps[i].State)
		}
	}

	if run.Project != "proj" || run.Target != "u@192.0.2.10" {
		t.Errorf("unexpected run identity %s / %s", run.Project, run.Target)
	}
	if reporter.started != 1 || len(reporter.finished) != 1 {
		t.Errorf("expected one start and one finish, got %d / %d", reporter.started, len(reporter.finished))
	}
}

func TestRunIsIdempotent(t *testing.T) {
	host := readyHost()
	repo := newFakeRepository()

	o := newTestOrchestrator(t, host, repo, nil)
	if _, err := o.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}

	host.ResetLog()

	reporter := &recordingReporter{}
	o.reporter = reporter
	if _, err := o.Run(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}

	if mutations := host.Mutations(); len(mutations) != 0 {
		t.Errorf("expected no remote mutations on the second run, got %v", mutations)
	}
	for _, step := range reporter.steps {
		if step.Outcome != OutcomeSatisfied {
			t.Errorf("expected %s to be satisfied, got %s", step.State, step.Outcome)
		}
	}
}

func TestRunPushRejected(t *testing.T) {
	repo := newFakeRepository()
	repo.pushResults = []PushResult{
		{Ref: "refs/heads/feature", Summary: "[new branch]"},
		{Ref: "refs/heads/main", Error: true, Summary: "rejected: non-fast-forward"},
	}
	reporter := &recordingReporter{}

	run, err := newTestOrchestrator(t, readyHost(), repo, reporter).Run(context.Background())
	if err == nil {
		t.Fatal("expected push failure, got nil")
	}

	if FailedState(err) != StatePushed {
		t.Errorf("expected failure in Pushed, got %q", FailedState(err))
	}
	if !reconcile.IsKind(err, reconcile.KindPush) {
		t.Errorf("expected PushError, got %v", err)
	}
	if !strings.Contains(err.Error(), "rejected: non-fast-forward") {
		t.Errorf("expected error to quote the ref summary, got %v", err)
	}

	outcome, _ := reporter.outcome(StatePushed)
	if outcome == OutcomeSatisfied {
		t.Error("Pushed must not be reported as satisfied")
	}
	if outcome != OutcomeFailed {
		t.Errorf("expected Pushed to be reported failed, got %q", outcome)
	}
	if run.Status != RunStatusFailed {
		t.Errorf("expected run status failed, got %s", run.Status)
	}
}

func TestRunPushTransportError(t *testing.T) {
	repo := newFakeRepository()
	repo.pushErr = errors.New("ssh: connect to host 192.0.2.10 port 22: Connection refused")

	_, err := newTestOrchestrator(t, readyHost(), repo, nil).Run(context.Background())
	if !reconcile.IsKind(err, reconcile.KindPush) {
		t.Errorf("expected PushError, got %v", err)
	}
}

func TestRunHaltsOnFirstFailure(t *testing.T) {
	tests := []struct {
		name        string
		host        func() *remotetest.Host
		failedState State
		kind        reconcile.Kind
	}{
		{
			name: "connection refused",
			host: func() *remotetest.Host {
				host := readyHost()
				host.ConnectErr = errors.New("connection refused")
				return host
			},
			failedState: StateConnected,
			kind:        reconcile.KindConnection,
		},
		{
			name: "unsupported package manager",
			host: func() *remotetest.Host {
				host := readyHost()
				host.PackageManager = ""
				return host
			},
			failedState: StateDependenciesSatisfied,
			kind:        reconcile.KindProbe,
		},
		{
			name: "uninstallable dependency",
			host: func() *remotetest.Host {
				host := readyHost()
				host.Installed["git"] = false
				host.Uninstallable["git"] = true
				return host
			},
			failedState: StateDependenciesSatisfied,
			kind:        reconcile.KindDependency,
		},
		{
			name: "no supervisor layout",
			host: func() *remotetest.Host {
				host := remotetest.NewHost()
				host.Installed["supervisor"] = true
				host.Installed["git"] = true
				return host
			},
			failedState: StateSupervisorSynced,
			kind:        reconcile.KindUnsupportedSupervisor,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host := tt.host()
			repo := newFakeRepository()
			reporter := &recordingReporter{}

			run, err := newTestOrchestrator(t, host, repo, reporter).Run(context.Background())
			if err == nil {
				t.Fatal("expected error, got nil")
			}

			var stepErr *StepError
			if !errors.As(err, &stepErr) {
				t.Fatalf("expected *StepError, got %T", err)
			}
			if stepErr.State != tt.failedState {
				t.Errorf("expected failure in %s, got %s", tt.failedState, stepErr.State)
			}
			if !reconcile.IsKind(err, tt.kind) {
				t.Errorf("expected %s, got %v", tt.kind, err)
			}

			last := run.LastStep()
			if last == nil || last.State != tt.failedState || last.Outcome != OutcomeFailed {
				t.Errorf("expected the failed step to be last, got %+v", last)
			}
			if _, ran := run.Step(tt.failedState.Next()); ran {
				t.Errorf("expected %s never to run", tt.failedState.Next())
			}
			if repo.pushes != 0 {
				t.Error("expected no push after a failure")
			}
			if host.Connected() {
				t.Error("expected transport to be closed")
			}
		})
	}
}

func TestRunClosesTransportOnFailure(t *testing.T) {
	host := remotetest.NewHost()
	host.Installed["supervisor"] = true
	host.Installed["git"] = true

	o, err := New(Options{
		LoadDescriptor: func() (*config.Descriptor, error) {
			d, err := config.Parse([]byte(testDescriptor))
			if err != nil {
				return nil, err
			}
			off := false
			d.AutoCreate = &off
			return d, nil
		},
		OpenRepository: func() (Repository, error) { return newFakeRepository(), nil },
		NewTransport:   func(*config.Descriptor) (Transport, error) { return host, nil },
	})
	if err != nil {
		t.Fatalf("failed to create orchestrator: %v", err)
	}

	_, err = o.Run(context.Background())
	if !reconcile.IsKind(err, reconcile.KindMissingDirectory) {
		t.Fatalf("expected MissingDirectoryError, got %v", err)
	}
	if host.CloseCount() != 1 {
		t.Errorf("expected transport to be closed exactly once, got %d", host.CloseCount())
	}
	if len(host.Mutations()) != 0 {
		t.Errorf("expected no mutations without auto-create, got %v", host.Mutations())
	}
}

func TestRunFailsBeforeConnecting(t *testing.T) {
	dialed := false
	reporter := &recordingReporter{}

	o, err := New(Options{
		LoadDescriptor: func() (*config.Descriptor, error) { return config.Parse([]byte(testDescriptor)) },
		OpenRepository: func() (Repository, error) { return nil, errors.New("not a git repository") },
		NewTransport: func(*config.Descriptor) (Transport, error) {
			dialed = true
			return remotetest.NewHost(), nil
		},
		Reporter: reporter,
	})
	if err != nil {
		t.Fatalf("failed to create orchestrator: %v", err)
	}

	run, err := o.Run(context.Background())
	if FailedState(err) != StateRepoFound {
		t.Fatalf("expected failure in RepoFound, got %v", err)
	}
	if dialed {
		t.Error("expected no transport to be created before the repository is found")
	}
	if len(run.Steps) != 2 {
		t.Errorf("expected 2 steps, got %d", len(run.Steps))
	}
	if len(reporter.finished) != 1 || reporter.finished[0].Status != RunStatusFailed {
		t.Error("expected RunFinished with a failed run")
	}
}

func TestRegisterRemote(t *testing.T) {
	tests := []struct {
		name     string
		existing string
		expected Outcome
	}{
		{name: "missing remote is created", expected: OutcomeCreated},
		{name: "stale remote is updated", existing: "ssh://u@old/home/u/.deploy/proj/src.git", expected: OutcomeCreated},
		{name: "matching remote is kept", existing: testRemoteURL, expected: OutcomeSatisfied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeRepository()
			if tt.existing != "" {
				repo.remotes[RemoteName] = tt.existing
			}
			reporter := &recordingReporter{}

			if _, err := newTestOrchestrator(t, readyHost(), repo, reporter).Run(context.Background()); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			outcome, _ := reporter.outcome(StateRemoteRegistered)
			if outcome != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, outcome)
			}
			if repo.remotes[RemoteName] != testRemoteURL {
				t.Errorf("expected remote %s, got %s", testRemoteURL, repo.remotes[RemoteName])
			}
		})
	}
}

func TestCheckConnection(t *testing.T) {
	host := readyHost()
	o := newTestOrchestrator(t, host, newFakeRepository(), nil)

	if err := o.CheckConnection(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if host.CloseCount() != 1 {
		t.Errorf("expected the check to close its session, got %d closes", host.CloseCount())
	}

	host.ConnectErr = errors.New("no route to host")
	err := o.CheckConnection(context.Background())
	if !reconcile.IsKind(err, reconcile.KindConnection) {
		t.Errorf("expected ConnectionError, got %v", err)
	}
}

func TestStates(t *testing.T) {
	states := States()
	if len(states) != 9 {
		t.Fatalf("expected 9 states, got %d", len(states))
	}
	if states[0] != StateConfigValidated || states[8] != StatePushed {
		t.Errorf("unexpected order %v", states)
	}
	if StatePushed.Next() != "" {
		t.Errorf("expected Pushed to be last, got next %q", StatePushed.Next())
	}
	if err := State("Bogus").Validate(); err == nil {
		t.Error("expected unknown state to be invalid")
	}
}
