// Package ssh provides the single SSH session used to reconcile a remote host.
package ssh

import (
	"fmt"
	"strings"
	"time"
)

// InvalidSecretMessage is the synthetic stderr returned when a privileged
// command gets no answer after the secret was written, or sudo asks again.
const InvalidSecretMessage = "Invalid password."

// SecretPrompter asks the operator for the privilege-escalation secret.
type SecretPrompter interface {
	Secret(label string) (string, error)
}

// CommandResult is the captured outcome of one remote command.
type CommandResult struct {
	// Stdout is the raw standard output.
	Stdout string

	// Stderr is the raw standard error. A non-empty value means failure
	// unless the caller's contract says otherwise.
	Stderr string

	// ExitCode is the remote exit status, -1 when none was reported.
	ExitCode int

	// Duration is the total execution time.
	Duration time.Duration
}

// Failed reports whether the command wrote anything to stderr.
func (r *CommandResult) Failed() bool {
	return strings.TrimSpace(r.Stderr) != ""
}

// Out returns stdout with surrounding whitespace removed.
func (r *CommandResult) Out() string {
	return strings.TrimSpace(r.Stdout)
}

// Err returns stderr with surrounding whitespace removed.
func (r *CommandResult) Err() string {
	return strings.TrimSpace(r.Stderr)
}

// TransportError represents an error from the transport layer.
type TransportError struct {
	// Op is the operation that failed (e.g., "connect", "exec", "upload")
	Op string

	// Err is the underlying error
	Err error

	// IsAuthError is set when the server rejected every offered credential.
	IsAuthError bool
}

func (e *TransportError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func notConnected(op string) error {
	return &TransportError{Op: op, Err: fmt.Errorf("not connected")}
}
