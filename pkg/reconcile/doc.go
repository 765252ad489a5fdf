// Package reconcile brings one remote host in line with a desired state.
//
// Three reconcilers share a single Runner (normally the SSH transport):
//
//   - PackageProbe detects the system package manager and installs missing
//     dependencies, failing fast on the first one that cannot be installed.
//   - Filesystem checks for remote directories and the bare/worktree git
//     repository pair, creating them when auto-create is enabled.
//   - Supervisor locates the supervisor include directory and rewrites the
//     per-project program config only when its content changed.
//
// Every check is idempotent: a second pass against an unchanged host issues
// no mutating commands. Failures are returned as *Error values classified by
// Kind; use IsKind to inspect them.
package reconcile
