// Package engine runs a deployment as an ordered state machine.
//
// # Overview
//
// A run walks nine states in a fixed order. Each state has one entry action;
// the first action that fails ends the run:
//
//  1. ConfigValidated - load the descriptor and derive the desired state
//  2. RepoFound - open the local git repository
//  3. Connected - open the single SSH session used by the rest of the run
//  4. DependenciesSatisfied - detect the package manager, install what is missing
//  5. DirectoriesReady - create the application directories
//  6. RepositoriesReady - initialize the bare repository and its worktree
//  7. RemoteRegistered - point the local "deploy" remote at the bare repository
//  8. SupervisorSynced - write the supervisor program block when it differs
//  9. Pushed - push the local repository to the deploy remote
//
// Every step reports an Outcome: satisfied when the host already matched,
// created when the step had to change something, failed otherwise. Running
// twice against an unchanged host reports every step as satisfied and makes
// no remote changes.
//
// # Collaborators
//
// The orchestrator does not know how descriptors are read, how the repository
// is driven or how the session is established. Callers supply them:
//
//	o, err := engine.New(engine.Options{
//	    LoadDescriptor: func() (*config.Descriptor, error) { return config.Load(".deploy") },
//	    OpenRepository: func() (engine.Repository, error) { return gitrepo.Open(".") },
//	    NewTransport:   newTransport,
//	    Reporter:       engine.Reporters{terminal, history},
//	})
//	run, err := o.Run(ctx)
//
// The transport is closed on every exit path, before RunFinished is reported.
//
// # Errors
//
// A failed run returns a *StepError naming the state. The wrapped error is
// usually a *reconcile.Error carrying the failure kind; use FailedState and
// reconcile.KindOf to inspect it.
package engine
