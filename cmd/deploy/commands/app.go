package commands

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/pushdeploy/pushdeploy/pkg/config"
	"github.com/pushdeploy/pushdeploy/pkg/engine"
	"github.com/pushdeploy/pushdeploy/pkg/gitrepo"
	"github.com/pushdeploy/pushdeploy/pkg/prompt"
	"github.com/pushdeploy/pushdeploy/pkg/report"
	"github.com/pushdeploy/pushdeploy/pkg/stores"
	"github.com/pushdeploy/pushdeploy/pkg/telemetry"
	"github.com/pushdeploy/pushdeploy/pkg/transports/ssh"
)

// app holds what a command needs to talk to the operator and the host.
type app struct {
	out      *report.Terminal
	prompter *prompt.Prompter
	tel      *telemetry.Telemetry
	store    *stores.SQLiteStore
}

// newApp sets up telemetry and, unless disabled, the history store.
func newApp(cmd *cobra.Command, withHistory bool) (*app, error) {
	ctx := cmd.Context()

	cfg := telemetry.DefaultConfig()
	cfg.ApplyEnv(os.Getenv)
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if metricsAddr != "" {
		cfg.Metrics.ListenAddress = metricsAddr
	}

	tel, err := telemetry.New(ctx, cfg, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}

	// Keep stdout clean for JSON.
	progress := cmd.OutOrStdout()
	if jsonOutput {
		progress = cmd.ErrOrStderr()
	}

	a := &app{
		out:      report.NewTerminal(progress),
		prompter: prompt.New(cmd.InOrStdin(), progress),
		tel:      tel,
	}

	if withHistory && !noHistory && historyPath != "" {
		store, err := stores.Open(ctx, historyPath)
		if err != nil {
			// History is best effort; a deployment never fails because of it.
			log.Warn().Err(err).Str("path", historyPath).Msg("deployment history disabled")
		} else {
			a.store = store
		}
	}

	return a, nil
}

// Close flushes telemetry and closes the store.
func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.tel.Shutdown(ctx); err != nil {
		log.Debug().Err(err).Msg("failed to shut down telemetry")
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			log.Debug().Err(err).Msg("failed to close history store")
		}
	}
}

// descriptorPath is the .deploy file of the project directory.
func descriptorPath() string {
	return filepath.Join(projectDir, config.FileName)
}

var _ engine.Transport = (*ssh.SSHClient)(nil)

// newTransport connects with the descriptor's server settings and asks the
// operator for the administrative secret when a privileged command needs it.
func (a *app) newTransport(d *config.Descriptor) (engine.Transport, error) {
	client, err := ssh.NewSSHClient(d.SSHConfig(), a.prompter)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// orchestrator wires the state machine to the real collaborators.
func (a *app) orchestrator() (*engine.Orchestrator, error) {
	reporters := engine.Reporters{a.out, a.tel.Metrics}
	if a.store != nil {
		reporters = append(reporters, stores.NewRecorder(a.store))
	}

	return engine.New(engine.Options{
		LoadDescriptor: func() (*config.Descriptor, error) {
			return config.Load(descriptorPath())
		},
		OpenRepository: func() (engine.Repository, error) {
			repo, err := gitrepo.Open(projectDir)
			if err != nil {
				return nil, err
			}
			return repo, nil
		},
		NewTransport: a.newTransport,
		ProjectDir:   projectDir,
		Reporter:     reporters,
		Tracer:       a.tel.Tracer.Tracer(),
	})
}

func defaultHistoryPath() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "deploy", "history.db")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "state", "deploy", "history.db")
}
