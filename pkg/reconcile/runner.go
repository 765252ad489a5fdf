package reconcile

import (
	"context"

	"github.com/pushdeploy/pushdeploy/pkg/transports/ssh"
)

// Runner executes commands on the remote host.
type Runner interface {
	Run(ctx context.Context, cmd string) (*ssh.CommandResult, error)
	RunPrivileged(ctx context.Context, reason string, cmd string) (*ssh.CommandResult, error)
	Upload(ctx context.Context, remotePath string, content []byte, mode uint32) error
}

var _ Runner = (*ssh.SSHClient)(nil)
