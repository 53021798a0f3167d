package commands

import (
	"time"

	"github.com/soilbiogeo/nifpipe/internal/state"
	"github.com/spf13/cobra"
)

// RunsOptions holds options for the runs command.
type RunsOptions struct {
	Limit int
}

// NewRunsCommand creates the runs command.
func NewRunsCommand() *cobra.Command {
	opts := &RunsOptions{}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded pipeline runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRuns(cmd, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "Maximum number of runs to list")

	return cmd
}

func runRuns(cmd *cobra.Command, opts *RunsOptions) error {
	cfg := configFrom(cmd)
	r := rendererFrom(cmd)

	store := state.NewStore()
	if err := store.Open(cfg.StatePath); err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	if err := store.InitSchema(); err != nil {
		return err
	}

	runs, err := store.ListRuns(opts.Limit)
	if err != nil {
		return err
	}

	return r.Result(runs, func() {
		if len(runs) == 0 {
			r.Printf("No runs recorded.\n")
			return
		}
		rows := make([][]any, len(runs))
		for i, run := range runs {
			completed := ""
			if run.CompletedAt != nil {
				completed = run.CompletedAt.Format(time.RFC3339)
			}
			rows[i] = []any{
				run.ID,
				string(run.Status),
				run.StartedAt.Format(time.RFC3339),
				completed,
				run.Error,
			}
		}
		r.Table([]string{"RUN", "STATUS", "STARTED", "COMPLETED", "ERROR"}, rows)
	})
}
