package commands

import (
	"github.com/spf13/cobra"

	"github.com/pushdeploy/pushdeploy/pkg/reconcile"
)

func newCheckCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check the SSH connection to the remote server",
		Long: `Open and close one SSH session to the server named in .deploy.

An unreachable server or rejected credentials are reported as a warning;
only a missing or invalid .deploy file makes the command fail.`,
		Example: `  deploy check
  deploy check --dir ~/src/api`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			o, err := a.orchestrator()
			if err != nil {
				return err
			}

			err = o.CheckConnection(cmd.Context())
			if reconcile.IsKind(err, reconcile.KindConnection) {
				a.out.Warn("Could not validate SSH connection.\n\t> %v", err)
				return nil
			}
			if err != nil {
				return err
			}
			a.out.Valid("Successfully connected to remote server.")
			return nil
		},
	}

	return cmd
}
