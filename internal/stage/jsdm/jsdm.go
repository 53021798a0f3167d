// Package jsdm runs the hierarchical Bayesian analysis of the plot
// survey: model setup, MCMC fitting, variance partitioning and
// posterior diagnostics, in that order, each step consuming the
// previous one's output.
package jsdm

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/soilbiogeo/nifpipe/internal/dataset"
	"github.com/soilbiogeo/nifpipe/internal/plotkit"
	"github.com/soilbiogeo/nifpipe/internal/stats/hbm"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Config holds the stage inputs.
type Config struct {
	InputCSV string // plot, 18 covariates, response in column 20
	OutDir   string // bar plots are written here
	Samples  int
	Thin     int
	Chains   int
	Seed     int64
	Logger   *slog.Logger
}

// Covariate group assignment, 1-based, one entry per design column.
var (
	groupNames      = []string{"Climate", "Physicochemical", "Stoichiometry", "nifH"}
	groupAssignment = []int{1, 1, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 3, 3, 3, 3, 4}
)

// Layout of the survey table.
const (
	plotColumn  = 0
	nCovariates = 18
	targetIndex = 19 // response lives in column 20
)

// Artifact names.
const (
	covariateFigure = "varpart_covariates.pdf"
	groupFigure     = "varpart_groups.pdf"
)

// Result carries everything downstream rendering needs.
type Result struct {
	CoefNames []string
	CoefMeans []float64
	Partition hbm.Partition
	Groups    []hbm.GroupFraction
	ESS       hbm.ESSSummary
	Metrics   hbm.FitMetrics
	Artifacts []string
}

// Run executes the four-step chain. Any step failure aborts the rest.
func Run(ctx context.Context, cfg Config) (*Result, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	store, err := dataset.Open(ctx, logger)
	if err != nil {
		return nil, err
	}
	defer func() { _ = store.Close() }()

	f, err := store.LoadFrame(ctx, "survey", cfg.InputCSV)
	if err != nil {
		return nil, err
	}

	y, covs, plots, err := assemble(f)
	if err != nil {
		return nil, err
	}

	m, err := hbm.Configure(y, covs, plots)
	if err != nil {
		return nil, err
	}

	post, err := hbm.Fit(ctx, m, hbm.Options{
		Samples: cfg.Samples,
		Thin:    cfg.Thin,
		Chains:  cfg.Chains,
		Seed:    cfg.Seed,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	part := post.PartitionVariance()
	groups, err := part.PartitionByGroup(groupAssignment, groupNames)
	if err != nil {
		return nil, err
	}

	ess := hbm.SummarizeESS(post.EffectiveSampleSizes())
	metrics, err := post.Evaluate()
	if err != nil {
		return nil, err
	}

	covPath := filepath.Join(cfg.OutDir, covariateFigure)
	if err := renderCovariateBars(part, covPath); err != nil {
		return nil, err
	}
	groupPath := filepath.Join(cfg.OutDir, groupFigure)
	if err := renderGroupBars(groups, groupPath); err != nil {
		return nil, err
	}

	logger.Info("joint model fitted",
		"plots", len(m.PlotLevels()),
		"observations", len(y),
		"ess_min", ess.Min,
		"r2", metrics.R2)

	return &Result{
		CoefNames: post.CoefNames,
		CoefMeans: post.CoefMeans(),
		Partition: part,
		Groups:    groups,
		ESS:       ess,
		Metrics:   metrics,
		Artifacts: []string{covPath, groupPath},
	}, nil
}

// assemble splits the frame into response, named covariates and plot
// identifiers, by column position.
func assemble(f *dataset.Frame) ([]float64, []hbm.Covariate, []string, error) {
	cols := f.Columns()
	if len(cols) < targetIndex+1 {
		return nil, nil, nil, fmt.Errorf("survey table has %d columns, want at least %d", len(cols), targetIndex+1)
	}

	if err := f.RequireComplete(cols[plotColumn]); err != nil {
		return nil, nil, nil, err
	}
	plots, err := f.Strings(cols[plotColumn])
	if err != nil {
		return nil, nil, nil, fmt.Errorf("plot column: %w", err)
	}

	covs := make([]hbm.Covariate, nCovariates)
	for j := 0; j < nCovariates; j++ {
		name := cols[plotColumn+1+j]
		vals, err := f.Floats(name)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("covariate %s: %w", name, err)
		}
		covs[j] = hbm.Covariate{Name: name, Values: vals}
	}

	y, err := f.Floats(cols[targetIndex])
	if err != nil {
		return nil, nil, nil, fmt.Errorf("response %s: %w", cols[targetIndex], err)
	}
	return y, covs, plots, nil
}

func renderCovariateBars(part hbm.Partition, path string) error {
	vals := make(plotter.Values, len(part.Covariates))
	names := make([]string, len(part.Covariates))
	for i, c := range part.Covariates {
		vals[i] = c.Fraction
		names[i] = c.Covariate
	}
	return renderBars(vals, names, "Explained variance by covariate", path, 9*vg.Inch)
}

func renderGroupBars(groups []hbm.GroupFraction, path string) error {
	vals := make(plotter.Values, len(groups))
	names := make([]string, len(groups))
	for i, g := range groups {
		vals[i] = g.Fraction
		names[i] = g.Group
	}
	return renderBars(vals, names, "Explained variance by covariate group", path, 5*vg.Inch)
}

func renderBars(vals plotter.Values, names []string, title, path string, width vg.Length) error {
	p := plotkit.New()
	p.Title.Text = title
	p.Y.Label.Text = "Fraction of explained variance"

	bars, err := plotter.NewBarChart(vals, vg.Points(14))
	if err != nil {
		return fmt.Errorf("bar chart %s: %w", path, err)
	}
	bars.LineStyle.Width = 0
	p.Add(bars)
	p.NominalX(names...)
	p.X.Tick.Label.Rotation = -0.9
	p.X.Tick.Label.XAlign = -0.8
	p.X.Tick.Label.YAlign = -0.4

	return plotkit.SavePDF(p, width, 4*vg.Inch, path)
}
