package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	projectDir  string
	verbose     bool
	jsonOutput  bool
	historyPath string
	noHistory   bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "deploy",
		Short: "Painless code deployment over SSH",
		Long: `deploy pushes a git repository to a remote host and keeps that host
ready to run it.

Every deployment converges the host over a single SSH session:
  - required packages (git, supervisor) are installed
  - the application directories and a bare repository are created
  - a "deploy" git remote is registered locally
  - the supervisor program block is written when it changed
  - the current branch is pushed

Running it again against an unchanged host changes nothing.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	rootCmd.PersistentFlags().StringVarP(&projectDir, "dir", "C", ".", "project directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().StringVar(&historyPath, "history", defaultHistoryPath(), "deployment history database")
	rootCmd.PersistentFlags().BoolVar(&noHistory, "no-history", false, "do not record deployments")

	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newNowCommand())
	rootCmd.AddCommand(newCheckCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newWatchCommand())
	rootCmd.AddCommand(newPresetsCommand())

	return rootCmd
}
