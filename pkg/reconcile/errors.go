package reconcile

import (
	"errors"
	"fmt"

	"github.com/pushdeploy/pushdeploy/pkg/transports/ssh"
)

// Kind classifies a reconciliation failure.
type Kind string

const (
	KindConnection            Kind = "ConnectionError"
	KindProbe                 Kind = "ProbeError"
	KindDependency            Kind = "DependencyError"
	KindMissingDirectory      Kind = "MissingDirectoryError"
	KindDirectoryCreate       Kind = "DirectoryCreateError"
	KindMissingRepository     Kind = "MissingRepositoryError"
	KindRepositoryCreate      Kind = "RepositoryCreateError"
	KindUnsupportedSupervisor Kind = "UnsupportedSupervisorLayoutError"
	KindMissingConfig         Kind = "MissingConfigError"
	KindReadConfig            Kind = "ReadConfigError"
	KindWriteConfig           Kind = "WriteConfigError"
	KindPush                  Kind = "PushError"
)

// Stages reported by RepositoryCreateError.
const (
	StageBare     = "bare"
	StageWorktree = "worktree"
)

// Error is a classified failure raised by a reconciler.
type Error struct {
	// Kind is the failure class.
	Kind Kind

	// Message is the operator-facing description.
	Message string

	// Path is the remote path involved, if any.
	Path string

	// Stage narrows repository failures to "bare" or "worktree".
	Stage string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Stage != "" {
		msg = fmt.Sprintf("%s (stage=%s)", msg, e.Stage)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, path string, err error, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Path:    path,
		Err:     err,
	}
}

// IsKind reports whether err carries a reconcile.Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf returns the kind of err, or "" when it is not a reconcile.Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// NewConnectionError wraps a transport connect failure.
func NewConnectionError(address string, err error) *Error {
	var te *ssh.TransportError
	if errors.As(err, &te) && te.IsAuthError {
		return newError(KindConnection, "", err, "authentication rejected by %s", address)
	}
	return newError(KindConnection, "", err, "could not connect to %s", address)
}

// NewPushError reports a ref rejected by the remote.
func NewPushError(summary string) *Error {
	return &Error{Kind: KindPush, Message: summary}
}
