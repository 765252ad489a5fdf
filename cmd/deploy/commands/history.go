package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/pushdeploy/pushdeploy/pkg/stores"
)

func newHistoryCommand() *cobra.Command {
	var (
		limit   int
		project string
		status  string
		prune   int
		remove  bool
	)

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show past deployments",
		Long: `List recorded deployments, most recent first.

With a run ID, show every step of that run with its outcome and the
changes it made on the remote host.`,
		Example: `  # Last 20 deployments
  deploy history

  # Failed deployments of one project
  deploy history --project api --status failed

  # Steps of one run
  deploy history 3f0c9a52-...

  # Forget one run
  deploy history --delete 3f0c9a52

  # Keep only the 100 most recent runs
  deploy history --prune 100`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, true)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.store == nil {
				return errors.New("deployment history is not available")
			}
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if prune > 0 {
				n, err := a.store.PruneRuns(ctx, prune)
				if err != nil {
					return err
				}
				a.out.Valid("Removed %d runs.", n)
				return nil
			}

			if remove && len(args) == 0 {
				return errors.New("--delete needs a run ID")
			}

			if len(args) == 1 {
				run, err := a.store.FindRun(ctx, args[0])
				if err != nil {
					return err
				}
				if remove {
					if err := a.store.DeleteRun(ctx, run.ID); err != nil {
						return err
					}
					a.out.Valid("Removed run %s.", run.ID)
					return nil
				}
				steps, err := a.store.ListSteps(ctx, run.ID)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(out, struct {
						*stores.Run
						Steps []*stores.Step `json:"steps"`
					}{run, steps})
				}
				printRun(out, run, steps)
				return nil
			}

			runs, err := a.store.ListRuns(ctx, stores.RunFilter{
				Project: project,
				Status:  stores.RunStatus(status),
				Limit:   limit,
			})
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(out, runs)
			}
			if len(runs) == 0 {
				a.out.Info("No deployments recorded.")
				return nil
			}
			printRuns(out, runs)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs to list")
	cmd.Flags().StringVarP(&project, "project", "p", "", "only runs of this project")
	cmd.Flags().StringVar(&status, "status", "", "only runs with this status (running, succeeded, failed)")
	cmd.Flags().IntVar(&prune, "prune", 0, "delete all but the N most recent runs")
	cmd.Flags().BoolVar(&remove, "delete", false, "delete the given run and its steps")

	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

func printRuns(w io.Writer, runs []*stores.Run) {
	t := newTable("ID", "PROJECT", "TARGET", "STATUS", "STARTED", "DURATION", "FAILED STEP")
	for _, r := range runs {
		failed := ""
		if r.FailedStep != nil {
			failed = *r.FailedStep
		}
		t.Row(
			shortID(r.ID),
			r.Project,
			r.Target,
			string(r.Status),
			r.StartedAt.Local().Format(time.DateTime),
			formatDuration(r),
			failed,
		)
	}
	fmt.Fprintln(w, t.String())
}

func printRun(w io.Writer, run *stores.Run, steps []*stores.Step) {
	fmt.Fprintf(w, "Run %s\n", run.ID)
	fmt.Fprintf(w, "  project:  %s\n", run.Project)
	fmt.Fprintf(w, "  target:   %s\n", run.Target)
	fmt.Fprintf(w, "  status:   %s\n", run.Status)
	fmt.Fprintf(w, "  started:  %s\n", run.StartedAt.Local().Format(time.DateTime))
	fmt.Fprintf(w, "  duration: %s\n", formatDuration(run))
	if run.Error != nil {
		fmt.Fprintf(w, "  error:    %s\n", *run.Error)
	}

	t := newTable("#", "STATE", "OUTCOME", "DURATION", "CHANGES")
	for _, s := range steps {
		t.Row(
			fmt.Sprint(s.Seq),
			s.State,
			s.Outcome,
			s.Duration.Round(time.Millisecond).String(),
			strings.Join(s.Changes, "\n"),
		)
	}
	fmt.Fprintln(w, t.String())
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatDuration(r *stores.Run) string {
	if r.FinishedAt == nil {
		return "-"
	}
	return r.Duration().Round(time.Millisecond).String()
}
