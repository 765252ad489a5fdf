package reconcile

import (
	"context"
	"fmt"
	"path"
	"strings"

	"al.essio.dev/pkg/shellescape"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Supervisor include directories, probed in order.
const (
	SupervisorDirDebian = "/etc/supervisor/conf.d"
	SupervisorDirRHEL   = "/etc/supervisord.d"
)

var supervisorConfigDirs = []string{SupervisorDirDebian, SupervisorDirRHEL}

// Supervisor keeps the per-project supervisor program config in sync.
type Supervisor struct {
	runner     Runner
	fs         *Filesystem
	autoCreate bool

	// configDir is resolved once per synchronizer.
	configDir string
}

// NewSupervisor returns a synchronizer bound to runner. With autoCreate set,
// a missing config file is created empty instead of failing the read.
func NewSupervisor(runner Runner, autoCreate bool) *Supervisor {
	return &Supervisor{
		runner:     runner,
		fs:         NewFilesystem(runner),
		autoCreate: autoCreate,
	}
}

// LocateConfigDir returns the first supervisor include directory present on
// the host.
func (s *Supervisor) LocateConfigDir(ctx context.Context) (string, error) {
	if s.configDir != "" {
		return s.configDir, nil
	}

	for _, dir := range supervisorConfigDirs {
		exists, err := s.fs.Exists(ctx, dir)
		if err != nil {
			return "", newError(KindUnsupportedSupervisor, dir, err, "could not probe %q", dir)
		}
		if exists {
			log.Debug().Str("dir", dir).Msg("located supervisor include directory")
			s.configDir = dir
			return dir, nil
		}
	}

	return "", newError(KindUnsupportedSupervisor, "", nil,
		"no supervisor include directory found (tried %s)", strings.Join(supervisorConfigDirs, ", "))
}

// ConfigPath returns the remote path of the project's program config.
func (s *Supervisor) ConfigPath(ctx context.Context, project string) (string, error) {
	dir, err := s.LocateConfigDir(ctx)
	if err != nil {
		return "", err
	}
	return path.Join(dir, strings.ToLower(project)+".conf"), nil
}

// Read returns the current config content for project.
func (s *Supervisor) Read(ctx context.Context, project string) (string, error) {
	configPath, err := s.ConfigPath(ctx, project)
	if err != nil {
		return "", err
	}

	exists, err := s.fs.Exists(ctx, configPath)
	if err != nil {
		return "", newError(KindReadConfig, configPath, err, "could not check supervisor config %q", configPath)
	}

	if !exists {
		if !s.autoCreate {
			return "", newError(KindMissingConfig, configPath, nil,
				"missing supervisor config for %s in %q", project, configPath)
		}

		log.Warn().Str("path", configPath).
			Msgf("Missing supervisor config for %s in %q, attempting to create.", project, configPath)

		reason := fmt.Sprintf("Missing supervisor config for %s. Please enter password to create it.", project)
		result, err := s.runner.RunPrivileged(ctx, reason, "touch "+shellescape.Quote(configPath))
		if err != nil {
			return "", newError(KindWriteConfig, configPath, err, "could not create supervisor config in %q", configPath)
		}
		if result.Failed() {
			return "", newError(KindWriteConfig, configPath, nil,
				"could not create supervisor config in %q: %s", configPath, result.Err())
		}
		return "", nil
	}

	result, err := s.runner.Run(ctx, "cat "+shellescape.Quote(configPath))
	if err != nil {
		return "", newError(KindReadConfig, configPath, err, "could not read supervisor config %q", configPath)
	}
	if result.Failed() {
		return "", newError(KindReadConfig, configPath, nil,
			"could not read supervisor config %q: %s", configPath, result.Err())
	}

	return result.Stdout, nil
}

// Write replaces the project's config with content. The content is staged
// over SFTP and moved into place by a privileged redirect so it never passes
// through the pty.
func (s *Supervisor) Write(ctx context.Context, project string, content string) error {
	configPath, err := s.ConfigPath(ctx, project)
	if err != nil {
		return err
	}

	staged := fmt.Sprintf("/tmp/deploy-%s-%s.conf", strings.ToLower(project), uuid.New().String())
	if err := s.runner.Upload(ctx, staged, []byte(content), 0600); err != nil {
		return newError(KindWriteConfig, configPath, err, "could not stage supervisor config for %s", project)
	}
	defer s.removeStaged(ctx, staged)

	reason := fmt.Sprintf("Supervisor config for %s changed. Please enter password to update it.", project)
	cmd := fmt.Sprintf("cat %s > %s", shellescape.Quote(staged), shellescape.Quote(configPath))

	result, err := s.runner.RunPrivileged(ctx, reason, cmd)
	if err != nil {
		return newError(KindWriteConfig, configPath, err, "could not write supervisor config %q", configPath)
	}
	if result.Failed() {
		return newError(KindWriteConfig, configPath, nil,
			"could not write supervisor config %q: %s", configPath, result.Err())
	}

	return nil
}

func (s *Supervisor) removeStaged(ctx context.Context, staged string) {
	result, err := s.runner.Run(ctx, "rm -f "+shellescape.Quote(staged))
	if err != nil || result.Failed() {
		log.Warn().Err(err).Str("path", staged).Msg("failed to remove staged supervisor config")
	}
}

// Sync writes desired only when it differs byte-for-byte from the current
// content. It reports whether a write happened.
func (s *Supervisor) Sync(ctx context.Context, project string, desired string) (bool, error) {
	current, err := s.Read(ctx, project)
	if err != nil {
		return false, err
	}

	if current == desired {
		log.Debug().Str("project", project).Msg("supervisor config up to date")
		return false, nil
	}

	if err := s.Write(ctx, project, desired); err != nil {
		return false, err
	}

	log.Info().Str("project", project).Msg("supervisor config updated")
	return true, nil
}
