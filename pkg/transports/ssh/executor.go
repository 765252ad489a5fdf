package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"al.essio.dev/pkg/shellescape"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
)

// sudoPromptMarker replaces the sudo password prompt so it can be told apart
// from command output on the merged pty stream.
const sudoPromptMarker = "[deploy-sudo-prompt]"

// Run executes a command on the remote host and waits for it to exit.
func (c *SSHClient) Run(ctx context.Context, cmd string) (*CommandResult, error) {
	startTime := time.Now()

	log.Debug().Str("command", cmd).Msg("executing command")

	sshClient, err := c.getClient("exec")
	if err != nil {
		return nil, err
	}

	session, err := sshClient.NewSession()
	if err != nil {
		return nil, &TransportError{
			Op:  "exec",
			Err: fmt.Errorf("failed to create session: %w", err),
		}
	}
	defer session.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	session.Stdout = &stdoutBuf
	session.Stderr = &stderrBuf

	doneChan := make(chan error, 1)
	go func() {
		doneChan <- session.Run(cmd)
	}()

	var execErr error
	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return nil, &TransportError{Op: "exec", Err: ctx.Err()}
	case execErr = <-doneChan:
	}

	result := &CommandResult{
		Stdout:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
		ExitCode: exitCode(execErr),
		Duration: time.Since(startTime),
	}

	log.Debug().
		Str("command", cmd).
		Int("stdout_len", len(result.Stdout)).
		Int("stderr_len", len(result.Stderr)).
		Int("exit_code", result.ExitCode).
		Dur("duration", result.Duration).
		Msg("command completed")

	if execErr != nil && !isExitError(execErr) {
		return result, &TransportError{Op: "exec", Err: execErr}
	}

	return result, nil
}

// RunPrivileged executes a command through sudo on a pty, supplying the
// cached or freshly prompted secret. A failed result invalidates the cache.
func (c *SSHClient) RunPrivileged(ctx context.Context, reason string, cmd string) (*CommandResult, error) {
	if c.config.IsAdmin() {
		return c.Run(ctx, cmd)
	}

	secret, ok := c.secret.Get()
	if !ok {
		if c.prompter == nil {
			return nil, &TransportError{Op: "sudo", Err: fmt.Errorf("no secret cached and no prompter configured")}
		}
		prompted, err := c.prompter.Secret(reason)
		if err != nil {
			return nil, &TransportError{Op: "sudo-prompt", Err: err}
		}
		c.secret.Set(prompted)
		secret = prompted
	}

	result, err := c.runWithSecret(ctx, cmd, secret)
	if err != nil {
		c.secret.Invalidate()
		return nil, err
	}

	if result.Failed() {
		log.Debug().Str("command", cmd).Str("stderr", result.Err()).Msg("privileged command failed, dropping cached secret")
		c.secret.Invalidate()
	}

	return result, nil
}

func (c *SSHClient) runWithSecret(ctx context.Context, cmd string, secret string) (*CommandResult, error) {
	startTime := time.Now()

	log.Debug().Str("command", cmd).Bool("sudo", true).Msg("executing command")

	sshClient, err := c.getClient("sudo")
	if err != nil {
		return nil, err
	}

	session, err := sshClient.NewSession()
	if err != nil {
		return nil, &TransportError{
			Op:  "sudo",
			Err: fmt.Errorf("failed to create session: %w", err),
		}
	}
	defer session.Close()

	stdin, err := session.StdinPipe()
	if err != nil {
		return nil, &TransportError{Op: "sudo", Err: fmt.Errorf("failed to create stdin pipe: %w", err)}
	}

	stdout, err := session.StdoutPipe()
	if err != nil {
		return nil, &TransportError{Op: "sudo", Err: fmt.Errorf("failed to create stdout pipe: %w", err)}
	}

	var stderrBuf bytes.Buffer
	session.Stderr = &stderrBuf

	if err := session.RequestPty("xterm", 80, 40, ssh.TerminalModes{
		ssh.ECHO:          0,     // never echo the secret back
		ssh.TTY_OP_ISPEED: 14400, // input speed = 14.4kbaud
		ssh.TTY_OP_OSPEED: 14400, // output speed = 14.4kbaud
	}); err != nil {
		return nil, &TransportError{Op: "sudo", Err: fmt.Errorf("failed to request pseudo-terminal: %w", err)}
	}

	if err := session.Start(escalate(cmd)); err != nil {
		return nil, &TransportError{Op: "sudo", Err: fmt.Errorf("failed to start command: %w", err)}
	}

	quit := make(chan struct{})
	defer close(quit)
	chunks := readChunks(stdout, quit)

	timer := time.NewTimer(c.config.PrivilegedTimeout)
	defer timer.Stop()
	timeout := timer.C

	var out strings.Builder
	prompted := false

	for chunks != nil {
		select {
		case <-ctx.Done():
			_ = session.Signal(ssh.SIGKILL)
			return nil, &TransportError{Op: "sudo", Err: ctx.Err()}

		case <-timeout:
			log.Debug().Str("command", cmd).Dur("timeout", c.config.PrivilegedTimeout).Msg("no answer to escalation secret")
			return invalidSecretResult(startTime), nil

		case chunk, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			out.Write(chunk)

			markers := strings.Count(out.String(), sudoPromptMarker)
			switch {
			case markers > 1:
				// sudo rejected the secret and asked again
				_ = session.Signal(ssh.SIGKILL)
				return invalidSecretResult(startTime), nil
			case markers == 1 && !prompted:
				prompted = true
				if _, err := io.WriteString(stdin, secret+"\n"); err != nil {
					return nil, &TransportError{Op: "sudo", Err: fmt.Errorf("failed to write secret: %w", err)}
				}
				timer.Reset(c.config.PrivilegedTimeout)
				timeout = timer.C
			}

			if timeout != nil && hasAnswer(out.String()) {
				timer.Stop()
				timeout = nil
			}
		}
	}

	waitErr := session.Wait()
	if waitErr != nil && !isExitError(waitErr) {
		return nil, &TransportError{Op: "sudo", Err: waitErr}
	}

	result := &CommandResult{
		Stdout:   cleanPtyOutput(out.String()),
		Stderr:   stderrBuf.String(),
		ExitCode: exitCode(waitErr),
		Duration: time.Since(startTime),
	}

	// The pty merges stderr into stdout; keep the "stderr means failure"
	// contract for non-zero exits.
	if result.ExitCode != 0 && !result.Failed() {
		result.Stderr = lastLine(result.Stdout)
		if result.Stderr == "" {
			result.Stderr = fmt.Sprintf("exit status %d", result.ExitCode)
		}
	}

	log.Debug().
		Str("command", cmd).
		Int("stdout_len", len(result.Stdout)).
		Int("exit_code", result.ExitCode).
		Dur("duration", result.Duration).
		Msg("privileged command completed")

	return result, nil
}

// escalate wraps cmd in a sudo invocation that always re-authenticates.
func escalate(cmd string) string {
	return fmt.Sprintf("sudo -k -p %s -- bash -c %s",
		shellescape.Quote(sudoPromptMarker), shellescape.Quote(cmd))
}

func readChunks(r io.Reader, quit <-chan struct{}) chan []byte {
	chunks := make(chan []byte)
	go func() {
		defer close(chunks)
		buf := make([]byte, 4096)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				select {
				case chunks <- chunk:
				case <-quit:
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()
	return chunks
}

// hasAnswer reports whether anything other than the sudo prompt was printed.
func hasAnswer(output string) bool {
	idx := strings.LastIndex(output, sudoPromptMarker)
	if idx < 0 {
		return strings.TrimSpace(output) != ""
	}
	return strings.TrimSpace(output[idx+len(sudoPromptMarker):]) != ""
}

func invalidSecretResult(startTime time.Time) *CommandResult {
	return &CommandResult{
		Stderr:   InvalidSecretMessage,
		ExitCode: -1,
		Duration: time.Since(startTime),
	}
}

func cleanPtyOutput(output string) string {
	output = strings.ReplaceAll(output, sudoPromptMarker, "")
	output = strings.ReplaceAll(output, "\r\n", "\n")
	return strings.TrimLeft(output, "\n")
}

func lastLine(output string) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

func isExitError(err error) bool {
	var exitErr *ssh.ExitError
	var missingErr *ssh.ExitMissingError
	return errors.As(err, &exitErr) || errors.As(err, &missingErr)
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitStatus()
	}
	return -1
}
