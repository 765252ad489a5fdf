package ssh

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// AuthMethod represents the type of SSH authentication.
type AuthMethod string

const (
	// AuthMethodPassword uses password authentication
	AuthMethodPassword AuthMethod = "password"

	// AuthMethodKey uses private key authentication
	AuthMethodKey AuthMethod = "key"

	// AuthMethodAgent uses SSH agent authentication
	AuthMethodAgent AuthMethod = "agent"
)

// DefaultAdminUser is the account that never needs a privilege-escalation secret.
const DefaultAdminUser = "root"

// Config holds SSH connection configuration.
type Config struct {
	// Host is the remote hostname or IP address
	Host string

	// Port is the SSH port (default: 22)
	Port int

	// User is the SSH username
	User string

	// AdminUser is the administrative account; commands run as this user
	// skip privilege escalation.
	AdminUser string

	// AuthMethod specifies which authentication method to use
	AuthMethod AuthMethod

	// Password for password-based authentication
	Password string

	// PrivateKeyPath is the path to the private key file
	PrivateKeyPath string

	// PrivateKeyPassphrase is the passphrase for encrypted private keys
	PrivateKeyPassphrase string

	// AgentSocket is the ssh-agent socket, defaults to $SSH_AUTH_SOCK
	AgentSocket string

	// KnownHostsPath is the path to the known_hosts file
	KnownHostsPath string

	// StrictHostKeyChecking enables host key verification against KnownHostsPath.
	// Unknown hosts are appended to the file; changed keys are rejected.
	StrictHostKeyChecking bool

	// ConnectionTimeout is the timeout for establishing a connection
	ConnectionTimeout time.Duration

	// PrivilegedTimeout bounds the wait for the first answer after the
	// escalation secret has been written.
	PrivilegedTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(host string, user string) *Config {
	authMethod := AuthMethodKey
	if os.Getenv("SSH_AUTH_SOCK") != "" {
		authMethod = AuthMethodAgent
	}

	return &Config{
		Host:                  host,
		Port:                  22,
		User:                  user,
		AdminUser:             DefaultAdminUser,
		AuthMethod:            authMethod,
		AgentSocket:           os.Getenv("SSH_AUTH_SOCK"),
		KnownHostsPath:        filepath.Join(os.Getenv("HOME"), ".ssh", "known_hosts"),
		StrictHostKeyChecking: true,
		ConnectionTimeout:     30 * time.Second,
		PrivilegedTimeout:     5 * time.Second,
	}
}

// Validate reports every problem with the configuration at once. For key
// authentication without PrivateKeyPath it picks the first default key found
// under ~/.ssh.
func (c *Config) Validate() error {
	var problems []error

	if c.Host == "" {
		problems = append(problems, errors.New("host is required"))
	}
	if c.Port < 1 || c.Port > 65535 {
		problems = append(problems, fmt.Errorf("invalid port: %d", c.Port))
	}
	if c.User == "" {
		problems = append(problems, errors.New("user is required"))
	}

	switch c.AuthMethod {
	case AuthMethodPassword:
		if c.Password == "" {
			problems = append(problems, errors.New("password is required for password authentication"))
		}
	case AuthMethodKey:
		if c.PrivateKeyPath == "" {
			c.PrivateKeyPath = defaultKey(os.Getenv("HOME"))
		}
		if c.PrivateKeyPath == "" {
			problems = append(problems, errors.New("no private key configured and none found in ~/.ssh"))
		} else if _, err := os.Stat(c.PrivateKeyPath); err != nil {
			problems = append(problems, fmt.Errorf("private key file not found: %s", c.PrivateKeyPath))
		}
	case AuthMethodAgent:
		if c.AgentSocket == "" {
			problems = append(problems, errors.New("agent socket is required for agent authentication (is SSH_AUTH_SOCK set?)"))
		}
	default:
		problems = append(problems, fmt.Errorf("unsupported auth method: %q", c.AuthMethod))
	}

	if c.ConnectionTimeout <= 0 {
		problems = append(problems, errors.New("connection timeout must be positive"))
	}
	if c.PrivilegedTimeout <= 0 {
		problems = append(problems, errors.New("privileged timeout must be positive"))
	}

	return errors.Join(problems...)
}

// defaultKeyNames are tried in order, like ssh(1) does.
var defaultKeyNames = []string{"id_ed25519", "id_ecdsa", "id_rsa"}

func defaultKey(home string) string {
	if home == "" {
		return ""
	}
	for _, name := range defaultKeyNames {
		path := filepath.Join(home, ".ssh", name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// IsAdmin reports whether the configured user is the administrative account.
func (c *Config) IsAdmin() bool {
	admin := c.AdminUser
	if admin == "" {
		admin = DefaultAdminUser
	}
	return c.User == admin
}

// BuildSSHClientConfig creates an ssh.ClientConfig from the Config.
// The returned closer releases the agent connection, if one was opened.
func (c *Config) BuildSSHClientConfig() (*ssh.ClientConfig, func() error, error) {
	var authMethods []ssh.AuthMethod
	closer := func() error { return nil }

	switch c.AuthMethod {
	case AuthMethodPassword:
		authMethods = append(authMethods, ssh.Password(c.Password))

		// Many servers only offer keyboard-interactive for the "Password:" prompt
		authMethods = append(authMethods, ssh.KeyboardInteractive(
			func(user, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = c.Password
				}
				return answers, nil
			},
		))

	case AuthMethodKey:
		keyBytes, err := os.ReadFile(c.PrivateKeyPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read private key: %w", err)
		}

		var signer ssh.Signer
		if c.PrivateKeyPassphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(keyBytes, []byte(c.PrivateKeyPassphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(keyBytes)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse private key: %w", err)
		}

		authMethods = append(authMethods, ssh.PublicKeys(signer))

	case AuthMethodAgent:
		conn, err := net.Dial("unix", c.AgentSocket)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to reach ssh-agent: %w", err)
		}
		authMethods = append(authMethods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		closer = conn.Close
	}

	hostKeyCallback, err := c.hostKeyCallback()
	if err != nil {
		_ = closer()
		return nil, nil, err
	}

	clientConfig := &ssh.ClientConfig{
		User:            c.User,
		Auth:            authMethods,
		HostKeyCallback: hostKeyCallback,
		Timeout:         c.ConnectionTimeout,
	}

	return clientConfig, closer, nil
}

// hostKeyCallback verifies against known_hosts, recording hosts seen for the
// first time.
func (c *Config) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if c.KnownHostsPath == "" || !c.StrictHostKeyChecking {
		return ssh.InsecureIgnoreHostKey(), nil
	}

	if err := ensureFile(c.KnownHostsPath); err != nil {
		return nil, fmt.Errorf("failed to prepare known_hosts: %w", err)
	}

	verify, err := knownhosts.New(c.KnownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load known_hosts: %w", err)
	}

	path := c.KnownHostsPath
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		err := verify(hostname, remote, key)
		var keyErr *knownhosts.KeyError
		if errors.As(err, &keyErr) && len(keyErr.Want) == 0 {
			return appendKnownHost(path, hostname, remote, key)
		}
		return err
	}, nil
}

func appendKnownHost(path, hostname string, remote net.Addr, key ssh.PublicKey) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to record host key: %w", err)
	}
	defer f.Close()

	addresses := []string{knownhosts.Normalize(hostname)}
	if remote != nil && remote.String() != hostname {
		addresses = append(addresses, knownhosts.Normalize(remote.String()))
	}
	_, err = fmt.Fprintln(f, knownhosts.Line(addresses, key))
	return err
}

func ensureFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0600)
	if err != nil {
		return err
	}
	return f.Close()
}

// Address returns the formatted SSH address (host:port).
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, fmt.Sprintf("%d", c.Port))
}
