package engine

import "fmt"

// State is one step of a deployment run. States are entered strictly in
// the order of the transition table.
type State string

const (
	StateConfigValidated       State = "ConfigValidated"
	StateRepoFound             State = "RepoFound"
	StateConnected             State = "Connected"
	StateDependenciesSatisfied State = "DependenciesSatisfied"
	StateDirectoriesReady      State = "DirectoriesReady"
	StateRepositoriesReady     State = "RepositoriesReady"
	StateRemoteRegistered      State = "RemoteRegistered"
	StateSupervisorSynced      State = "SupervisorSynced"
	StatePushed                State = "Pushed"

	// stateDone ends the transition table.
	stateDone State = ""
)

// States returns every state in execution order.
func States() []State {
	states := make([]State, 0, len(transitions))
	for s := initialState; s != stateDone; s = transitions[s].next {
		states = append(states, s)
	}
	return states
}

// Validate checks if the state is known.
func (s State) Validate() error {
	if _, ok := transitions[s]; !ok {
		return fmt.Errorf("invalid state: %s", s)
	}
	return nil
}

// Next returns the state entered after s, or "" for the last state.
func (s State) Next() State {
	return transitions[s].next
}

// Outcome is the status of a single step.
type Outcome string

const (
	// OutcomePending indicates the step has not started.
	OutcomePending Outcome = "pending"

	// OutcomeRunning indicates the step is executing.
	OutcomeRunning Outcome = "running"

	// OutcomeSatisfied indicates the remote state already matched.
	OutcomeSatisfied Outcome = "satisfied"

	// OutcomeCreated indicates corrective action was taken.
	OutcomeCreated Outcome = "created"

	// OutcomeFailed indicates the step failed; the run stops here.
	OutcomeFailed Outcome = "failed"
)

// IsSuccess returns true for satisfied and created steps.
func (o Outcome) IsSuccess() bool {
	return o == OutcomeSatisfied || o == OutcomeCreated
}

// RunStatus represents the overall status of a deployment run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)
