package commands

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pushdeploy/pushdeploy/pkg/config"
	"github.com/pushdeploy/pushdeploy/pkg/gitrepo"
	"github.com/pushdeploy/pushdeploy/pkg/watcher"
)

// metricsAddr is set by watch; other commands only write the textfile.
var metricsAddr string

func newWatchCommand() *cobra.Command {
	var (
		delay   time.Duration
		initial bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Deploy again whenever the branch head or .deploy changes",
		Long: `Watch the local repository and run a deployment after every commit,
branch switch or edit of the .deploy file.

Bursts of changes are coalesced into one deployment. A failed deployment
is reported and watching continues.`,
		Example: `  # Deploy on every commit
  deploy watch

  # Deploy once immediately, then on every commit, exposing metrics
  deploy watch --initial --metrics-addr 127.0.0.1:9464`,
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

			repo, err := gitrepo.Open(projectDir)
			if err != nil {
				return err
			}

			deploy := func(ctx context.Context, reason string) {
				branch, err := repo.Head()
				if err != nil {
					log.Warn().Err(err).Msg("failed to read current branch")
				}
				log.Info().Str("reason", reason).Str("branch", branch).Msg("deploying")
				if _, err := o.Run(ctx); err != nil {
					if errors.Is(err, context.Canceled) {
						return
					}
					a.out.Error("%v", err)
				}
			}

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				return a.tel.Metrics.Serve(ctx)
			})
			g.Go(func() error {
				if initial {
					deploy(ctx, "initial")
				}
				return watcher.New(repo.Root(), config.FileName, delay).Run(ctx, deploy)
			})
			return g.Wait()
		},
	}

	cmd.Flags().DurationVar(&delay, "delay", watcher.DefaultDelay, "wait this long for changes to settle")
	cmd.Flags().BoolVar(&initial, "initial", false, "deploy once before watching")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	return cmd
}
