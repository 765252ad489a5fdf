package reconcile

import (
	"context"
	"path"
	"strings"

	"al.essio.dev/pkg/shellescape"
	"github.com/rs/zerolog/log"
)

const (
	missingFileSuffix = "No such file or directory"
	gitInitBanner     = "Initialized empty Git repository"
	gitCloneDone      = "done."
)

// bareRepositoryEntries must all be present for a path to count as a bare repository.
var bareRepositoryEntries = []string{
	"branches", "config", "description", "HEAD", "hooks", "info", "objects", "refs",
}

// Filesystem reconciles remote directories and git repositories.
type Filesystem struct {
	runner Runner
}

// NewFilesystem returns a filesystem reconciler bound to runner.
func NewFilesystem(runner Runner) *Filesystem {
	return &Filesystem{runner: runner}
}

// Exists reports whether path exists on the remote host.
func (f *Filesystem) Exists(ctx context.Context, p string) (bool, error) {
	result, err := f.runner.Run(ctx, "stat "+shellescape.Quote(p))
	if err != nil {
		return false, err
	}
	return !strings.HasSuffix(result.Err(), missingFileSuffix), nil
}

// EnsureDirectories checks each path in order and creates missing ones with
// mkdir -p when autoCreate is set. It returns the paths it created.
func (f *Filesystem) EnsureDirectories(ctx context.Context, paths []string, autoCreate bool) ([]string, error) {
	var created []string

	for _, dir := range paths {
		exists, err := f.Exists(ctx, dir)
		if err != nil {
			return created, newError(KindDirectoryCreate, dir, err, "could not check directory %q", dir)
		}
		if exists {
			continue
		}

		if !autoCreate {
			return created, newError(KindMissingDirectory, dir, nil, "missing directory %q", dir)
		}

		log.Warn().Str("path", dir).Msgf("Missing directory %q, attempting to create.", dir)

		if err := f.mkdir(ctx, dir); err != nil {
			return created, err
		}
		created = append(created, dir)
	}

	return created, nil
}

func (f *Filesystem) mkdir(ctx context.Context, dir string) error {
	result, err := f.runner.Run(ctx, "mkdir -p "+shellescape.Quote(dir))
	if err != nil {
		return newError(KindDirectoryCreate, dir, err, "could not create directory %q", dir)
	}

	// mkdir -p is silent on success
	if result.Out() != "" || result.Err() != "" {
		return newError(KindDirectoryCreate, dir, nil, "could not create directory %q: %s",
			dir, firstNonEmpty(result.Err(), result.Out()))
	}
	return nil
}

// EnsureGitRepositories makes sure a bare repository exists at barePath and a
// clone of it at worktreePath. It returns the paths it initialized.
func (f *Filesystem) EnsureGitRepositories(ctx context.Context, barePath, worktreePath string, autoCreate bool) ([]string, error) {
	var created []string

	isBare, err := f.isBareRepository(ctx, barePath)
	if err != nil {
		return created, repositoryError(barePath, StageBare, err, "could not inspect bare repository in %q", barePath)
	}
	if !isBare {
		if !autoCreate {
			return created, newError(KindMissingRepository, barePath, nil, "missing bare git repository in %q", barePath)
		}

		log.Warn().Str("path", barePath).Msgf("No bare git repository in %q, attempting to create.", barePath)

		if err := f.initBare(ctx, barePath); err != nil {
			return created, err
		}
		created = append(created, barePath)
	}

	hasWorktree, err := f.Exists(ctx, path.Join(worktreePath, ".git"))
	if err != nil {
		return created, repositoryError(worktreePath, StageWorktree, err, "could not inspect worktree in %q", worktreePath)
	}
	if !hasWorktree {
		if !autoCreate {
			return created, newError(KindMissingRepository, worktreePath, nil, "missing src git repository in %q", worktreePath)
		}

		log.Warn().Str("path", worktreePath).Msgf("No src git repository in %q, attempting to create.", worktreePath)

		if err := f.clone(ctx, barePath, worktreePath); err != nil {
			return created, err
		}
		created = append(created, worktreePath)
	}

	return created, nil
}

func (f *Filesystem) isBareRepository(ctx context.Context, barePath string) (bool, error) {
	for _, entry := range bareRepositoryEntries {
		exists, err := f.Exists(ctx, path.Join(barePath, entry))
		if err != nil {
			return false, err
		}
		if !exists {
			return false, nil
		}
	}
	return true, nil
}

func (f *Filesystem) initBare(ctx context.Context, barePath string) error {
	result, err := f.runner.Run(ctx, "cd "+shellescape.Quote(barePath)+" && git init --bare")
	if err != nil {
		return repositoryError(barePath, StageBare, err, "could not create bare git repository in %q", barePath)
	}

	// Newer git prints default-branch hints on stderr; only real errors count.
	errOut := result.Err()
	if !strings.HasPrefix(result.Out(), gitInitBanner) || hasGitError(errOut) {
		return repositoryError(barePath, StageBare, nil, "could not create bare git repository in %q: %s",
			barePath, firstNonEmpty(errOut, result.Out()))
	}
	return nil
}

func (f *Filesystem) clone(ctx context.Context, barePath, worktreePath string) error {
	result, err := f.runner.Run(ctx, "git clone "+shellescape.Quote(barePath)+" "+shellescape.Quote(worktreePath))
	if err != nil {
		return repositoryError(worktreePath, StageWorktree, err, "could not create src git repository in %q", worktreePath)
	}

	if !strings.HasSuffix(result.Out(), gitCloneDone) && !strings.HasSuffix(result.Err(), gitCloneDone) {
		return repositoryError(worktreePath, StageWorktree, nil, "could not create src git repository in %q: %s",
			worktreePath, firstNonEmpty(result.Err(), result.Out()))
	}
	return nil
}

func repositoryError(p, stage string, err error, format string, args ...interface{}) *Error {
	e := newError(KindRepositoryCreate, p, err, format, args...)
	e.Stage = stage
	return e
}

func hasGitError(stderr string) bool {
	for _, line := range strings.Split(stderr, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "fatal:") || strings.HasPrefix(line, "error:") {
			return true
		}
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
