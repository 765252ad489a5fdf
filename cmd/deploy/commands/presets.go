package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pushdeploy/pushdeploy/pkg/presets"
)

type presetInfo struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Environment string `json:"environment,omitempty"`
}

func newPresetsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "presets",
		Short: "List the available run presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var infos []presetInfo
			for _, name := range presets.Names() {
				p, err := presets.Lookup(name)
				if err != nil {
					return err
				}
				infos = append(infos, presetInfo{
					Name:        p.Name(),
					Command:     p.RunCommand(),
					Environment: p.Environment(),
				})
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(infos)
			}

			for _, info := range infos {
				fmt.Fprintf(cmd.OutOrStdout(), "%-14s %s\n", info.Name, info.Command)
			}
			return nil
		},
	}

	return cmd
}
