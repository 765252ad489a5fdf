package ssh

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
)

// SSHClient is the session for one deployment: a single authenticated
// connection reused by every command of the run.
type SSHClient struct {
	config   *Config
	prompter SecretPrompter

	mu          sync.RWMutex
	client      *ssh.Client
	releaseAuth func() error
	connectedAt time.Time

	secret secretCache
}

// NewSSHClient validates config and returns an unconnected client. prompter
// is asked for the escalation secret the first time RunPrivileged needs it;
// it may be nil when the session user is the admin account.
func NewSSHClient(config *Config, prompter SecretPrompter) (*SSHClient, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &SSHClient{config: config, prompter: prompter}, nil
}

// Connect dials and authenticates. Calling it on a connected client is a no-op.
func (c *SSHClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return nil
	}

	clientConfig, releaseAuth, err := c.config.BuildSSHClientConfig()
	if err != nil {
		return &TransportError{Op: "connect", Err: err}
	}

	address := c.config.Address()
	log.Debug().Str("address", address).Str("user", c.config.User).Msg("dialing")

	client, err := dial(ctx, address, clientConfig, c.config.ConnectionTimeout)
	if err != nil {
		_ = releaseAuth()
		return &TransportError{Op: "connect", Err: err, IsAuthError: isAuthFailure(err)}
	}

	c.client = client
	c.releaseAuth = releaseAuth
	c.connectedAt = time.Now()
	log.Debug().Str("address", address).Msg("connected")
	return nil
}

// dial runs the TCP connect and the SSH handshake under ctx.
func dial(ctx context.Context, address string, cfg *ssh.ClientConfig, timeout time.Duration) (*ssh.Client, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}

	// The handshake itself does not take a context; closing the socket
	// unblocks it when ctx ends first.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, address, cfg)
	if err != nil {
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return ssh.NewClient(sshConn, chans, reqs), nil
}

// isAuthFailure reports whether the handshake ended because no offered
// credential was accepted. x/crypto/ssh has no typed error for this.
func isAuthFailure(err error) bool {
	return strings.Contains(err.Error(), "ssh: unable to authenticate")
}

// Close ends the session. It is safe to call more than once.
func (c *SSHClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil
	}

	log.Debug().
		Str("address", c.config.Address()).
		Dur("connected_for", time.Since(c.connectedAt)).
		Msg("closing session")

	err := c.client.Close()
	c.client = nil
	if c.releaseAuth != nil {
		_ = c.releaseAuth()
		c.releaseAuth = nil
	}
	if err != nil {
		return &TransportError{Op: "disconnect", Err: err}
	}
	return nil
}

// IsConnected reports whether Connect succeeded and Close was not called since.
func (c *SSHClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client != nil
}

// HasSecret reports whether an accepted escalation secret is cached.
func (c *SSHClient) HasSecret() bool {
	_, ok := c.secret.Get()
	return ok
}

func (c *SSHClient) getClient(op string) (*ssh.Client, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.client == nil {
		return nil, notConnected(op)
	}
	return c.client, nil
}
