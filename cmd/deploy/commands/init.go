package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pushdeploy/pushdeploy/pkg/config"
	"github.com/pushdeploy/pushdeploy/pkg/engine"
	"github.com/pushdeploy/pushdeploy/pkg/presets"
)

func newInitCommand() *cobra.Command {
	var (
		force     bool
		skipCheck bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the .deploy file interactively",
		Long: `Ask for the project and server settings and write them to .deploy.

The SSH connection to the server is tested before the file is written.
A failed test is reported as a warning; the file is written anyway.`,
		Example: `  # Describe the project in the current directory
  deploy init

  # Replace an existing .deploy without asking
  deploy init --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			path := descriptorPath()
			if _, err := os.Stat(path); err == nil && !force {
				overwrite, err := a.prompter.Confirm(fmt.Sprintf("%s already exists. Overwrite it?", path), false)
				if err != nil {
					return err
				}
				if !overwrite {
					a.out.Info("Left %s unchanged.", path)
					return nil
				}
			}

			d, err := askDescriptor(a)
			if err != nil {
				return err
			}

			if !skipCheck {
				if err := checkDescriptor(cmd, a, d); err != nil {
					a.out.Warn("Could not validate SSH connection.\n\t> %v", err)
				} else {
					a.out.Valid("Successfully connected to remote server.")
				}
			}

			if err := config.Save(path, d); err != nil {
				return err
			}
			a.out.Valid("Wrote %s.", path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing .deploy file")
	cmd.Flags().BoolVar(&skipCheck, "skip-check", false, "do not test the SSH connection")

	return cmd
}

func askDescriptor(a *app) (*config.Descriptor, error) {
	p := a.prompter
	d := &config.Descriptor{
		Scripts: config.ScriptsConfig{Before: []string{}, After: []string{}},
	}

	defaultName := ""
	if abs, err := filepath.Abs(projectDir); err == nil {
		defaultName = filepath.Base(abs)
	}

	var err error
	if d.Project.Name, err = p.String(
		"Enter the project's name.",
		defaultName,
		config.ValidProjectName,
		"The project field cannot be empty and may only contain letters, digits, '.', '-' and '_'.",
	); err != nil {
		return nil, err
	}

	if d.Project.Preset, err = p.String(
		"Select the apropriate preset.",
		"",
		presets.Exists,
		"The selected preset does not exist. Please refer to this list:\n\t- "+strings.Join(presets.Names(), "\n\t- "),
	); err != nil {
		return nil, err
	}

	if d.Project.Directories.Source, err = p.String(
		"Enter the source directory relative path. (Optional)",
		"",
		optionalDir,
		"The selected directory does not exist",
	); err != nil {
		return nil, err
	}

	if d.Project.Directories.Build, err = p.String(
		"Enter the build directory containing the binaries relative path. (Optional)",
		"",
		optionalDir,
		"The selected directory does not exist",
	); err != nil {
		return nil, err
	}

	if d.Server.Address, err = p.String(
		"Enter the remote server address.",
		"",
		config.ValidAddress,
		"The address must be a valid IP or hostname.",
	); err != nil {
		return nil, err
	}

	if d.Server.User, err = p.String(
		"Enter the remote server user.",
		"",
		config.ValidUser,
		"The user field cannot be empty.",
	); err != nil {
		return nil, err
	}

	return d, nil
}

// optionalDir accepts an empty answer or a directory inside the project.
func optionalDir(rel string) bool {
	if rel == "" {
		return true
	}
	info, err := os.Stat(filepath.Join(projectDir, rel))
	return err == nil && info.IsDir()
}

// checkDescriptor opens and closes a session with the answers given so far.
func checkDescriptor(cmd *cobra.Command, a *app, d *config.Descriptor) error {
	o, err := engine.New(engine.Options{
		LoadDescriptor: func() (*config.Descriptor, error) { return d, nil },
		OpenRepository: func() (engine.Repository, error) {
			return nil, errors.New("no repository during init")
		},
		NewTransport: a.newTransport,
		Tracer:       a.tel.Tracer.Tracer(),
	})
	if err != nil {
		return err
	}
	return o.CheckConnection(cmd.Context())
}
