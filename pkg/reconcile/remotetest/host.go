// Package remotetest provides an in-memory remote host for exercising
// reconcilers and the orchestrator without an SSH server.
//
// Host interprets the small command vocabulary the reconcilers emit (stat,
// mkdir -p, git init --bare, git clone, cat, touch, rm, package installs and
// the bundled probe scripts) against a fake filesystem, and records every
// command so tests can assert which ones mutated state.
package remotetest

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/pushdeploy/pushdeploy/pkg/transports/ssh"
)

// Host is a simulated remote machine.
type Host struct {
	mu sync.Mutex

	// PackageManager is printed by the detection script. Empty simulates an
	// unsupported host.
	PackageManager string

	// Installed holds the packages present on the host.
	Installed map[string]bool

	// Uninstallable packages fail to install with an apt-style error.
	Uninstallable map[string]bool

	// CloneOutput overrides the stderr of git clone when non-nil.
	CloneOutput *string

	// InitOutput overrides the stdout of git init --bare when non-nil.
	InitOutput *string

	// ConnectErr is returned by Connect.
	ConnectErr error

	// RunErr, when set, is returned by every Run whose command contains the key.
	RunErr map[string]error

	dirs  map[string]bool
	files map[string]string

	connected bool
	closed    int

	commands   []string
	privileged []string
	mutations  []string
}

// NewHost returns an empty host using apt-get.
func NewHost() *Host {
	return &Host{
		PackageManager: "apt-get",
		Installed:      map[string]bool{},
		Uninstallable:  map[string]bool{},
		RunErr:         map[string]error{},
		dirs:           map[string]bool{"/": true},
		files:          map[string]string{},
	}
}

// AddDir creates dir and its parents.
func (h *Host) AddDir(dir string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.mkdirAll(dir)
}

// AddFile creates a file with content, creating parent directories.
func (h *Host) AddFile(p, content string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.mkdirAll(path.Dir(p))
	h.files[path.Clean(p)] = content
}

// AddBareRepository lays out a bare repository at dir.
func (h *Host) AddBareRepository(dir string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.initBare(dir)
}

// File returns the content of p and whether it exists.
func (h *Host) File(p string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	content, ok := h.files[path.Clean(p)]
	return content, ok
}

// HasDir reports whether dir exists.
func (h *Host) HasDir(dir string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dirs[path.Clean(dir)]
}

// Commands returns every command run so far.
func (h *Host) Commands() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.commands...)
}

// Privileged returns every command run with escalated privileges.
func (h *Host) Privileged() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.privileged...)
}

// Mutations returns the commands that changed host state.
func (h *Host) Mutations() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.mutations...)
}

// ResetLog forgets recorded commands but keeps host state.
func (h *Host) ResetLog() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.commands = nil
	h.privileged = nil
	h.mutations = nil
}

// Connected reports whether Connect succeeded and Close was not called since.
func (h *Host) Connected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.connected
}

// CloseCount returns how many times Close was called.
func (h *Host) CloseCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// Connect implements the transport contract.
func (h *Host) Connect(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ConnectErr != nil {
		return h.ConnectErr
	}
	h.connected = true
	return nil
}

// Close implements the transport contract.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connected = false
	h.closed++
	return nil
}

// Run interprets cmd as the deploying user.
func (h *Host) Run(ctx context.Context, cmd string) (*ssh.CommandResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.commands = append(h.commands, cmd)
	for key, err := range h.RunErr {
		if strings.Contains(cmd, key) {
			return nil, err
		}
	}
	return h.exec(cmd, false), nil
}

// RunPrivileged interprets cmd as the administrative account.
func (h *Host) RunPrivileged(ctx context.Context, reason string, cmd string) (*ssh.CommandResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.commands = append(h.commands, cmd)
	h.privileged = append(h.privileged, cmd)
	return h.exec(cmd, true), nil
}

// Upload stores content at remotePath.
func (h *Host) Upload(ctx context.Context, remotePath string, content []byte, mode uint32) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	cmd := "upload " + remotePath
	h.commands = append(h.commands, cmd)
	h.mutations = append(h.mutations, cmd)
	h.files[path.Clean(remotePath)] = string(content)
	return nil
}

func (h *Host) exec(cmd string, privileged bool) *ssh.CommandResult {
	switch {
	case strings.HasPrefix(cmd, "bash -c "):
		return h.script(unquote(strings.TrimPrefix(cmd, "bash -c ")))

	case strings.HasPrefix(cmd, "stat "):
		p := unquote(strings.TrimPrefix(cmd, "stat "))
		if h.exists(p) {
			return ok(fmt.Sprintf("  File: %s\n", p))
		}
		return fail(fmt.Sprintf("stat: cannot stat '%s': No such file or directory\n", p))

	case strings.HasPrefix(cmd, "mkdir -p "):
		p := unquote(strings.TrimPrefix(cmd, "mkdir -p "))
		h.mutations = append(h.mutations, cmd)
		h.mkdirAll(p)
		return ok("")

	case strings.HasSuffix(cmd, " && git init --bare"):
		dir := unquote(strings.TrimSuffix(strings.TrimPrefix(cmd, "cd "), " && git init --bare"))
		if !h.dirs[path.Clean(dir)] {
			return fail(fmt.Sprintf("bash: line 1: cd: %s: No such file or directory\n", dir))
		}
		h.mutations = append(h.mutations, cmd)
		if h.InitOutput != nil {
			return &ssh.CommandResult{Stdout: *h.InitOutput}
		}
		h.initBare(dir)
		return &ssh.CommandResult{
			Stdout: fmt.Sprintf("Initialized empty Git repository in %s/\n", dir),
			Stderr: "hint: Using 'master' as the name for the initial branch.\n",
		}

	case strings.HasPrefix(cmd, "git clone "):
		args := strings.Fields(strings.TrimPrefix(cmd, "git clone "))
		if len(args) != 2 {
			return fail("usage: git clone <repo> <dir>\n")
		}
		worktree := unquote(args[1])
		h.mutations = append(h.mutations, cmd)
		if h.CloneOutput != nil {
			return &ssh.CommandResult{Stderr: *h.CloneOutput}
		}
		h.mkdirAll(path.Join(worktree, ".git"))
		return &ssh.CommandResult{Stderr: fmt.Sprintf("Cloning into '%s'...\ndone.\n", worktree)}

	case strings.HasPrefix(cmd, "cat ") && strings.Contains(cmd, " > "):
		parts := strings.SplitN(strings.TrimPrefix(cmd, "cat "), " > ", 2)
		src, dst := unquote(parts[0]), unquote(parts[1])
		if !privileged && strings.HasPrefix(dst, "/etc/") {
			return fail(fmt.Sprintf("bash: %s: Permission denied\n", dst))
		}
		content, found := h.files[path.Clean(src)]
		if !found {
			return fail(fmt.Sprintf("cat: %s: No such file or directory\n", src))
		}
		if !h.dirs[path.Dir(path.Clean(dst))] {
			return fail(fmt.Sprintf("bash: %s: No such file or directory\n", dst))
		}
		h.mutations = append(h.mutations, cmd)
		h.files[path.Clean(dst)] = content
		return ok("")

	case strings.HasPrefix(cmd, "cat "):
		p := unquote(strings.TrimPrefix(cmd, "cat "))
		content, found := h.files[path.Clean(p)]
		if !found {
			return fail(fmt.Sprintf("cat: %s: No such file or directory\n", p))
		}
		return ok(content)

	case strings.HasPrefix(cmd, "touch "):
		p := unquote(strings.TrimPrefix(cmd, "touch "))
		if !privileged && strings.HasPrefix(p, "/etc/") {
			return fail(fmt.Sprintf("touch: cannot touch '%s': Permission denied\n", p))
		}
		h.mutations = append(h.mutations, cmd)
		if _, found := h.files[path.Clean(p)]; !found {
			h.files[path.Clean(p)] = ""
		}
		return ok("")

	case strings.HasPrefix(cmd, "rm -f "):
		p := unquote(strings.TrimPrefix(cmd, "rm -f "))
		delete(h.files, path.Clean(p))
		return ok("")

	case strings.Contains(cmd, " install -y "):
		dep := unquote(cmd[strings.LastIndex(cmd, " ")+1:])
		if !privileged {
			return fail("E: Could not open lock file - open (13: Permission denied)\n")
		}
		h.mutations = append(h.mutations, cmd)
		if h.Uninstallable[dep] {
			return &ssh.CommandResult{
				Stdout:   "Reading package lists...\n",
				Stderr:   fmt.Sprintf("E: Unable to locate package %s", dep),
				ExitCode: 100,
			}
		}
		h.Installed[dep] = true
		return ok(fmt.Sprintf("Setting up %s ...\n", dep))
	}

	return fail(fmt.Sprintf("bash: %s: command not found\n", strings.Fields(cmd)[0]))
}

// script handles the bundled probe scripts.
func (h *Host) script(body string) *ssh.CommandResult {
	lines := strings.Split(strings.TrimSpace(body), "\n")
	last := strings.Fields(lines[len(lines)-1])

	if len(last) == 3 && last[0] == "is_installed" {
		if h.Installed[unquote(last[2])] {
			return ok("0\n")
		}
		return ok("1\n")
	}

	if strings.Contains(body, "command -v") {
		if h.PackageManager == "" {
			return ok("[ERROR] no supported package manager found (apt-get, dnf, yum, zypper)\n")
		}
		return ok(h.PackageManager + "\n")
	}

	return fail("unknown script\n")
}

func (h *Host) exists(p string) bool {
	p = path.Clean(p)
	if h.dirs[p] {
		return true
	}
	_, found := h.files[p]
	return found
}

func (h *Host) mkdirAll(dir string) {
	dir = path.Clean(dir)
	for dir != "/" && dir != "." {
		h.dirs[dir] = true
		dir = path.Dir(dir)
	}
}

func (h *Host) initBare(dir string) {
	h.mkdirAll(dir)
	for _, entry := range []string{"branches", "hooks", "info", "objects", "refs"} {
		h.mkdirAll(path.Join(dir, entry))
	}
	for _, entry := range []string{"config", "description", "HEAD"} {
		h.files[path.Join(path.Clean(dir), entry)] = ""
	}
}

func ok(stdout string) *ssh.CommandResult {
	return &ssh.CommandResult{Stdout: stdout}
}

func fail(stderr string) *ssh.CommandResult {
	return &ssh.CommandResult{Stderr: stderr, ExitCode: 1}
}

// unquote reverses single-quote shell escaping.
func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && strings.HasPrefix(s, "'") && strings.HasSuffix(s, "'") {
		s = s[1 : len(s)-1]
		s = strings.ReplaceAll(s, `'"'"'`, `'`)
	}
	return s
}
