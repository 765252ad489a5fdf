package config

import (
	"fmt"
	"path"

	"github.com/pushdeploy/pushdeploy/pkg/presets"
)

// RequiredPackages must be present on every deployment target.
var RequiredPackages = []string{"supervisor", "git"}

// Repositories locates the remote git repository pair.
type Repositories struct {
	// BarePath receives pushes.
	BarePath string

	// WorktreePath is a clone of BarePath the program runs from.
	WorktreePath string
}

// DesiredState is what the remote host must look like after a run.
// It is derived once from the descriptor and never modified.
type DesiredState struct {
	ProjectName      string
	RemoteURL        string
	RequiredPackages []string
	Directories      []string
	Repositories     Repositories
	SupervisorConfig string
	AutoCreate       bool
}

// AppDir returns the per-project directory under the user's home.
func AppDir(user, project string) string {
	return path.Join(RemoteHome(user), ".deploy", project)
}

// BarePath returns the bare repository path for project.
func BarePath(user, project string) string {
	return path.Join(AppDir(user, project), "src.git")
}

// WorktreePath returns the worktree path for project.
func WorktreePath(user, project string) string {
	return path.Join(AppDir(user, project), "src")
}

// BuildDesiredState derives the desired remote state from d.
func BuildDesiredState(d *Descriptor) (*DesiredState, error) {
	preset, err := presets.Lookup(d.Project.Preset)
	if err != nil {
		return nil, err
	}

	user, project := d.Server.User, d.Project.Name
	appDir := AppDir(user, project)

	supervisorConfig, err := presets.RenderSupervisorConfig(presets.Program{
		Name:      project,
		User:      user,
		Directory: appDir,
		Preset:    preset,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render supervisor config: %w", err)
	}

	packages := make([]string, len(RequiredPackages))
	copy(packages, RequiredPackages)

	return &DesiredState{
		ProjectName:      project,
		RemoteURL:        d.RemoteURL(),
		RequiredPackages: packages,
		Directories:      []string{appDir, BarePath(user, project), WorktreePath(user, project)},
		Repositories: Repositories{
			BarePath:     BarePath(user, project),
			WorktreePath: WorktreePath(user, project),
		},
		SupervisorConfig: supervisorConfig,
		AutoCreate:       d.AutoCreateEnabled(),
	}, nil
}
