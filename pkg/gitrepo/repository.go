// Package gitrepo drives the local git repository through the git CLI.
package gitrepo

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pushdeploy/pushdeploy/pkg/engine"
)

// ErrNotRepository is returned by Open when dir is not inside a work tree.
var ErrNotRepository = errors.New("not a git repository")

// GitError reports a failed git invocation.
type GitError struct {
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

// Error implements the error interface.
func (e *GitError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("git %s: %s", strings.Join(e.Args, " "), msg)
}

// Unwrap returns the underlying error.
func (e *GitError) Unwrap() error {
	return e.Err
}

// Repository is a local work tree.
type Repository struct {
	root    string
	timeout time.Duration
}

var _ engine.Repository = (*Repository)(nil)

// Open locates the work tree containing dir.
func Open(dir string) (*Repository, error) {
	r := &Repository{root: dir, timeout: 30 * time.Second}

	out, err := r.git(context.Background(), "rev-parse", "--show-toplevel")
	if err != nil {
		var gitErr *GitError
		if errors.As(err, &gitErr) && strings.Contains(gitErr.Stderr, "not a git repository") {
			return nil, ErrNotRepository
		}
		return nil, err
	}

	r.root = strings.TrimSpace(out)
	log.Debug().Str("root", r.root).Msg("opened git repository")
	return r, nil
}

// Root returns the top-level directory of the work tree.
func (r *Repository) Root() string {
	return r.root
}

// Head returns the abbreviated name of the checked-out branch.
func (r *Repository) Head() (string, error) {
	out, err := r.git(context.Background(), "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// RemoteURL returns the fetch URL of the named remote.
func (r *Repository) RemoteURL(name string) (string, bool, error) {
	out, err := r.git(context.Background(), "remote", "get-url", name)
	if err != nil {
		var gitErr *GitError
		if errors.As(err, &gitErr) && strings.Contains(gitErr.Stderr, "No such remote") {
			return "", false, nil
		}
		return "", false, err
	}
	return strings.TrimSpace(out), true, nil
}

// SetRemoteURL points an existing remote at url.
func (r *Repository) SetRemoteURL(name, url string) error {
	_, err := r.git(context.Background(), "remote", "set-url", name, url)
	return err
}

// CreateRemote adds a remote.
func (r *Repository) CreateRemote(name, url string) error {
	_, err := r.git(context.Background(), "remote", "add", name, url)
	return err
}

// Push pushes the checked-out branch to the same-named branch on remote.
// Rejected refs are reported through the results, not the error.
func (r *Repository) Push(ctx context.Context, remote string) ([]engine.PushResult, error) {
	args := []string{"push", "--porcelain", remote, "HEAD"}
	stdout, stderr, err := r.exec(ctx, 0, args...)

	results := ParsePorcelain(stdout)
	if len(results) > 0 {
		return results, nil
	}
	if err != nil {
		return nil, newGitError(args, stderr, err)
	}
	return nil, nil
}

func (r *Repository) git(ctx context.Context, args ...string) (string, error) {
	stdout, stderr, err := r.exec(ctx, r.timeout, args...)
	if err != nil {
		return stdout, newGitError(args, stderr, err)
	}
	return stdout, nil
}

// exec runs git in the work tree. A zero timeout only honours ctx.
func (r *Repository) exec(ctx context.Context, timeout time.Duration, args ...string) (string, string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.root

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()

	log.Debug().
		Strs("args", args).
		Dur("duration", time.Since(start)).
		Err(err).
		Msg("git command finished")

	return stdout.String(), stderr.String(), err
}

func newGitError(args []string, stderr string, err error) *GitError {
	gitErr := &GitError{Args: args, Stderr: stderr, Err: err, ExitCode: -1}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		gitErr.ExitCode = exitErr.ExitCode()
	}
	return gitErr
}

// ParsePorcelain extracts per-ref results from `git push --porcelain` output.
//
// Each ref line has the form "<flag>\t<from>:<to>\t<summary> (<reason>)".
// A '!' flag marks a rejected ref. The summary is normalised to
// "rejected: non-fast-forward" style text.
func ParsePorcelain(out string) []engine.PushResult {
	var results []engine.PushResult

	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) < 2 || line[1] != '\t' {
			continue
		}

		fields := strings.SplitN(line[2:], "\t", 2)
		if len(fields) != 2 {
			continue
		}

		ref := fields[0]
		if from, _, ok := strings.Cut(ref, ":"); ok {
			ref = from
		}

		results = append(results, engine.PushResult{
			Ref:     ref,
			Error:   line[0] == '!',
			Summary: summarize(fields[1]),
		})
	}
	return results
}

// summarize turns "[rejected] (non-fast-forward)" into "rejected: non-fast-forward".
func summarize(s string) string {
	s = strings.TrimSpace(s)

	var reason string
	if i := strings.LastIndex(s, " ("); i >= 0 && strings.HasSuffix(s, ")") {
		reason = s[i+2 : len(s)-1]
		s = s[:i]
	}

	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	if reason == "" {
		return s
	}
	return s + ": " + reason
}
