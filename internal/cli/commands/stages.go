package commands

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/soilbiogeo/nifpipe/internal/cli/config"
	"github.com/soilbiogeo/nifpipe/internal/cli/output"
	"github.com/soilbiogeo/nifpipe/internal/pipeline"
	"github.com/soilbiogeo/nifpipe/internal/stage/distribution"
	"github.com/soilbiogeo/nifpipe/internal/stage/importance"
	"github.com/soilbiogeo/nifpipe/internal/stage/jsdm"
	"github.com/soilbiogeo/nifpipe/internal/stage/regression"
	"github.com/soilbiogeo/nifpipe/internal/stage/sitemap"
	"github.com/soilbiogeo/nifpipe/internal/style"
)

// Input file names, resolved against data_dir.
const (
	worldFile   = "world.csv"
	sitesFile   = "map.csv"
	boxplotFile = "boxplot.csv"
	sandFile    = "Sand.csv"
	mydataFile  = "mydata.csv"
	forestFile  = "forest.csv"
)

// buildStages wires the analysis stages in pipeline order. The
// renderer receives each stage's tabular output as it finishes.
func buildStages(cfg *config.Config, r *output.Renderer, logger *slog.Logger) []pipeline.Stage {
	pal := style.Default()
	data := func(name string) string { return filepath.Join(cfg.DataDir, name) }
	out := func(name string) string { return filepath.Join(cfg.OutDir, name) }

	return []pipeline.Stage{
		{Name: "sitemap", Run: func(ctx context.Context) (string, error) {
			return sitemap.Render(ctx, sitemap.Config{
				WorldCSV: data(worldFile),
				SitesCSV: data(sitesFile),
				OutPath:  out("map_clean.pdf"),
				Palette:  pal,
				Logger:   logger,
			})
		}},
		{Name: "distribution", Run: func(ctx context.Context) (string, error) {
			return distribution.Render(ctx, distribution.Config{
				InputCSV: data(boxplotFile),
				OutPath:  out("box_new.pdf"),
				Palette:  pal,
				Seed:     cfg.Seed,
				Logger:   logger,
			})
		}},
		{Name: "regression", Run: func(ctx context.Context) (string, error) {
			res, err := regression.Run(ctx, regression.Config{
				InputCSV: data(sandFile),
				OutPath:  out("Sand3.pdf"),
				Alpha:    cfg.Regression.Alpha,
				Palette:  pal,
				Logger:   logger,
			})
			if err != nil {
				return "", err
			}
			if err := renderRegression(r, res); err != nil {
				return "", err
			}
			return res.Artifact, nil
		}},
		{Name: "importance", Run: func(ctx context.Context) (string, error) {
			res, err := importance.Run(ctx, importance.Config{
				InputCSV: data(mydataFile),
				Target:   cfg.Forest.Target,
				Trees:    cfg.Forest.Trees,
				Seed:     cfg.Seed,
				Logger:   logger,
			})
			if err != nil {
				return "", err
			}
			return "", renderImportance(r, res)
		}},
		{Name: "jsdm", Run: func(ctx context.Context) (string, error) {
			res, err := jsdm.Run(ctx, jsdm.Config{
				InputCSV: data(forestFile),
				OutDir:   cfg.OutDir,
				Samples:  cfg.MCMC.Samples,
				Thin:     cfg.MCMC.Thin,
				Chains:   cfg.MCMC.Chains,
				Seed:     cfg.Seed,
				Logger:   logger,
			})
			if err != nil {
				return "", err
			}
			if err := renderJSDM(r, res); err != nil {
				return "", err
			}
			return strings.Join(res.Artifacts, ", "), nil
		}},
	}
}

func renderRegression(r *output.Renderer, res *regression.Result) error {
	return r.Result(res.Summary, func() {
		rows := make([][]any, len(res.Fit.Coefs))
		for i, c := range res.Fit.Coefs {
			rows[i] = []any{c.Name, formatNum(c.Estimate), formatNum(c.StdErr), formatNum(c.T), formatP(c.P)}
		}
		r.Table([]string{"TERM", "ESTIMATE", "STD ERROR", "T", "P"}, rows)

		flag := "n.s."
		if res.Summary.Significant {
			flag = "significant"
		}
		r.Table([]string{"INTERCEPT", "C", "SIGNIFICANCE"}, [][]any{{
			formatNum(res.Summary.Intercept),
			formatNum(res.Summary.Slope),
			flag,
		}})
	})
}

func renderImportance(r *output.Renderer, res *importance.Result) error {
	return r.Result(res, func() {
		rows := make([][]any, len(res.Ranking))
		for i, imp := range res.Ranking {
			rows[i] = []any{i + 1, imp.Feature, formatNum(imp.PctIncMSE), formatNum(imp.IncNodePurity)}
		}
		r.Printf("Permutation importance for %s (%d predictors, %d rows)\n",
			res.Target, res.Features, res.Rows)
		r.Table([]string{"RANK", "FEATURE", "%INCMSE", "INCNODEPURITY"}, rows)
	})
}

func renderJSDM(r *output.Renderer, res *jsdm.Result) error {
	return r.Result(res, func() {
		r.Table([]string{"R2", "RMSE", "ESS MIN", "ESS MEAN"}, [][]any{{
			formatNum(res.Metrics.R2),
			formatNum(res.Metrics.RMSE),
			formatNum(res.ESS.Min),
			formatNum(res.ESS.Mean),
		}})

		rows := make([][]any, len(res.Groups))
		for i, g := range res.Groups {
			rows[i] = []any{g.Group, fmt.Sprintf("%.1f%%", 100*g.Fraction)}
		}
		r.Table([]string{"COVARIATE GROUP", "EXPLAINED VARIANCE"}, rows)
	})
}

func formatNum(v float64) string {
	return fmt.Sprintf("%.4f", v)
}

func formatP(p float64) string {
	if p < 1e-4 {
		return fmt.Sprintf("%.2e", p)
	}
	return fmt.Sprintf("%.4f", p)
}
