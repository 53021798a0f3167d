package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/soilbiogeo/nifpipe/internal/cli/output"
	"github.com/soilbiogeo/nifpipe/internal/pipeline"
	"github.com/soilbiogeo/nifpipe/internal/state"
	"github.com/spf13/cobra"
)

// RunOptions holds options for the run command.
type RunOptions struct {
	Select string
	Watch  bool
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the analysis pipeline",
		Long: `Execute the analysis stages in order: sitemap, distribution,
regression, importance, jsdm.

A stage failure aborts the remaining stages; figures already written
stay on disk. Use --select to run a subset.`,
		Example: `  # Run everything
  nifpipe run

  # Run only the figures
  nifpipe run --select sitemap,distribution

  # Re-run on input changes
  nifpipe run --watch`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRun(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Select, "select", "s", "", "Comma-separated list of stages to run")
	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "Re-run the pipeline when input files change")

	return cmd
}

func runRun(cmd *cobra.Command, opts *RunOptions) error {
	cfg := configFrom(cmd)
	r := rendererFrom(cmd)
	logger := loggerFrom(cmd)

	if err := cfg.Validate(); err != nil {
		return err
	}

	var selected []string
	if opts.Select != "" {
		for _, name := range strings.Split(opts.Select, ",") {
			if name = strings.TrimSpace(name); name != "" {
				selected = append(selected, name)
			}
		}
	}

	store := state.NewStore()
	if err := store.Open(cfg.StatePath); err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	if err := store.InitSchema(); err != nil {
		return err
	}

	p := pipeline.New(buildStages(cfg, r, logger), logger)

	execute := func() error {
		start := time.Now()
		results, err := p.RunSelected(cmd.Context(), selected)
		if err != nil {
			return err
		}
		if recErr := recordResults(store, results); recErr != nil {
			logger.Error("failed to record run", "error", recErr)
		}
		renderRunResults(r, results, time.Since(start))
		return firstFailure(results)
	}

	if !opts.Watch {
		return execute()
	}

	// Watch mode: run once up front, then on every change with the
	// same stage selection. Stage failures do not stop the watch loop.
	if err := execute(); err != nil {
		r.Errorf("Error: %v\n", err)
	}
	return p.Watch(cmd.Context(), cfg.DataDir, 0, func(context.Context) {
		if err := execute(); err != nil {
			r.Errorf("Error: %v\n", err)
		}
	})
}

func recordResults(store *state.Store, results []pipeline.Result) error {
	run, err := store.CreateRun()
	if err != nil {
		return err
	}

	status := state.RunStatusSuccess
	var runErr string
	for _, res := range results {
		sr := state.StageRun{
			RunID:    run.ID,
			Stage:    res.Stage,
			Status:   string(res.Status),
			Duration: res.Duration,
			Artifact: res.Artifact,
		}
		if res.Err != nil {
			sr.Error = res.Err.Error()
			status = state.RunStatusFailed
			runErr = fmt.Sprintf("%s: %v", res.Stage, res.Err)
		}
		if err := store.RecordStageRun(sr); err != nil {
			return err
		}
	}
	return store.CompleteRun(run.ID, status, runErr)
}

func renderRunResults(r *output.Renderer, results []pipeline.Result, elapsed time.Duration) {
	_ = r.Result(results, func() {
		rows := make([][]any, len(results))
		for i, res := range results {
			detail := res.Artifact
			if res.Err != nil {
				detail = res.Err.Error()
			}
			rows[i] = []any{res.Stage, string(res.Status), res.Duration.Round(time.Millisecond), detail}
		}
		r.Table([]string{"STAGE", "STATUS", "DURATION", "ARTIFACT"}, rows)
		if elapsed > 0 {
			r.Printf("Completed in %s\n", elapsed.Round(time.Millisecond))
		}
	})
}

func firstFailure(results []pipeline.Result) error {
	for _, res := range results {
		if res.Err != nil {
			return fmt.Errorf("stage %s failed: %w", res.Stage, res.Err)
		}
	}
	return nil
}
