// Package regression fits the site-level mixed model of nitrogen
// fixation against soil carbon and renders the faceted scatter figure.
package regression

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/soilbiogeo/nifpipe/internal/dataset"
	"github.com/soilbiogeo/nifpipe/internal/plotkit"
	"github.com/soilbiogeo/nifpipe/internal/stats/lmm"
	"github.com/soilbiogeo/nifpipe/internal/style"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// Config holds the stage inputs.
type Config struct {
	InputCSV string // SiteID, C, NF, groupID, Type
	OutPath  string
	Alpha    float64 // significance threshold for the summary flag
	Palette  style.Palette
	Logger   *slog.Logger
}

// Summary is the pivoted one-row view of the fit: the two coefficient
// estimates and a single flag. The flag covers the whole fit, set when
// any non-intercept coefficient clears the threshold.
type Summary struct {
	Intercept   float64 `json:"intercept"`
	Slope       float64 `json:"C"`
	Significant bool    `json:"significant"`
	MinP        float64 `json:"min_p"`
	Alpha       float64 `json:"alpha"`
}

// Result bundles the fit, its summary and the artifact path.
type Result struct {
	Fit      *lmm.Fit
	Summary  Summary
	Artifact string
}

// Figure dimensions.
const (
	width      = 8 * vg.Inch
	height     = 6 * vg.Inch
	facetCols  = 2
	slopeName  = "C"
	responseXL = "Soil carbon"
	responseYL = "Nitrogen fixation"
)

// Run fits the model and writes the figure.
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

	f, err := store.LoadFrame(ctx, "sand", cfg.InputCSV)
	if err != nil {
		return nil, err
	}
	if err := f.RequireComplete("SiteID"); err != nil {
		return nil, err
	}

	nf, err := f.Floats("NF")
	if err != nil {
		return nil, fmt.Errorf("regression input: %w", err)
	}
	carbon, err := f.Floats("C")
	if err != nil {
		return nil, fmt.Errorf("regression input: %w", err)
	}
	sites, err := f.Strings("SiteID")
	if err != nil {
		return nil, fmt.Errorf("regression input: %w", err)
	}
	types, err := f.Strings("Type")
	if err != nil {
		return nil, fmt.Errorf("regression input: %w", err)
	}

	fit, err := lmm.FitRandomIntercept(nf, []lmm.Predictor{{Name: slopeName, Values: carbon}}, sites, logger)
	if err != nil {
		return nil, err
	}

	summary, err := Pivot(fit, cfg.Alpha)
	if err != nil {
		return nil, err
	}

	if err := renderFacets(carbon, nf, types, fit, cfg.Palette, cfg.OutPath); err != nil {
		return nil, err
	}

	logger.Info("regression fitted",
		"sites", fit.NGroups,
		"observations", fit.NObs,
		"slope", summary.Slope,
		"significant", summary.Significant,
		"path", cfg.OutPath)

	return &Result{Fit: fit, Summary: summary, Artifact: cfg.OutPath}, nil
}

// Pivot reduces the coefficient table to the one-row summary. The
// significance flag is the minimum p-value over the non-intercept rows
// compared against alpha.
func Pivot(fit *lmm.Fit, alpha float64) (Summary, error) {
	s := Summary{Alpha: alpha, MinP: math.Inf(1)}
	var haveIntercept, haveSlope bool
	for _, c := range fit.Coefs {
		if c.Name == lmm.InterceptName {
			s.Intercept = c.Estimate
			haveIntercept = true
			continue
		}
		if c.Name == slopeName {
			s.Slope = c.Estimate
			haveSlope = true
		}
		if c.P < s.MinP {
			s.MinP = c.P
		}
	}
	if !haveIntercept || !haveSlope {
		return Summary{}, fmt.Errorf("coefficient table missing %s or %s row", lmm.InterceptName, slopeName)
	}
	s.Significant = s.MinP < alpha
	return s, nil
}

// renderFacets draws one facet per ecosystem type, each with that
// type's raw points and the pooled fitted line repeated unchanged.
func renderFacets(carbon, nf []float64, types []string, fit *lmm.Fit, pal style.Palette, outPath string) error {
	byType := make(map[string]plotter.XYs)
	var labels []string
	for i := range carbon {
		if _, ok := byType[types[i]]; !ok {
			labels = append(labels, types[i])
		}
		byType[types[i]] = append(byType[types[i]], plotter.XY{X: carbon[i], Y: nf[i]})
	}
	labels = style.Order(labels)

	line, err := pooledLine(carbon, fit)
	if err != nil {
		return err
	}

	rows := (len(labels) + facetCols - 1) / facetCols
	grid := make([][]*plot.Plot, rows)
	for r := range grid {
		grid[r] = make([]*plot.Plot, facetCols)
	}

	for i, label := range labels {
		p := plotkit.New()
		p.Title.Text = label
		p.X.Label.Text = responseXL
		p.Y.Label.Text = responseYL

		s, err := plotter.NewScatter(byType[label])
		if err != nil {
			return fmt.Errorf("facet %s: %w", label, err)
		}
		s.GlyphStyle = draw.GlyphStyle{
			Color:  pal.Color(label),
			Radius: vg.Points(2.5),
			Shape:  pal.Shape(label),
		}
		p.Add(s)

		l, err := plotter.NewLine(line)
		if err != nil {
			return fmt.Errorf("facet %s: %w", label, err)
		}
		l.Width = vg.Points(1.5)
		p.Add(l)

		grid[i/facetCols][i%facetCols] = p
	}

	return plotkit.SaveGridPDF(grid, width, height, outPath)
}

// pooledLine evaluates the fitted mean over the full carbon range.
func pooledLine(carbon []float64, fit *lmm.Fit) (plotter.XYs, error) {
	var intercept, slope float64
	var haveIntercept, haveSlope bool
	for _, c := range fit.Coefs {
		switch c.Name {
		case lmm.InterceptName:
			intercept, haveIntercept = c.Estimate, true
		case slopeName:
			slope, haveSlope = c.Estimate, true
		}
	}
	if !haveIntercept || !haveSlope {
		return nil, fmt.Errorf("coefficient table missing %s or %s row", lmm.InterceptName, slopeName)
	}

	lo, hi := carbon[0], carbon[0]
	for _, v := range carbon[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return plotter.XYs{
		{X: lo, Y: intercept + slope*lo},
		{X: hi, Y: intercept + slope*hi},
	}, nil
}
