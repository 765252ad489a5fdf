package commands

import (
	"encoding/json"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newNowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "now",
		Short: "Deploy the current branch",
		Long: `Converge the remote host and push the current branch to it.

The steps run in a fixed order and stop at the first failure:
  config-validated, repo-found, connected, dependencies-satisfied,
  directories-ready, repositories-ready, remote-registered,
  supervisor-synced, pushed`,
		Example: `  # Deploy the repository in the current directory
  deploy now

  # Deploy another checkout and print the run as JSON
  deploy now --dir ~/src/api --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, true)
			if err != nil {
				return err
			}
			defer a.Close()

			o, err := a.orchestrator()
			if err != nil {
				return err
			}

			run, err := o.Run(cmd.Context())
			log.Debug().Str("run", run.ID).Str("status", string(run.Status)).Msg("deployment finished")

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if encErr := enc.Encode(run); encErr != nil {
					return encErr
				}
			}
			return err
		},
	}

	return cmd
}
