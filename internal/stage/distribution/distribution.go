// Package distribution renders the grouped nitrogen-fixation figure:
// per ecosystem group a half-violin density sidecar, jittered raw
// points and a narrow boxplot with hidden outliers, on a horizontal
// category axis.
package distribution

import (
	"context"
	"fmt"
	"image/color"
	"log/slog"
	"math/rand"

	"github.com/soilbiogeo/nifpipe/internal/dataset"
	"github.com/soilbiogeo/nifpipe/internal/plotkit"
	"github.com/soilbiogeo/nifpipe/internal/style"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// Config holds the stage inputs.
type Config struct {
	InputCSV string // groupID, NF
	OutPath  string
	Palette  style.Palette
	Seed     int64 // jitter seed
	Logger   *slog.Logger
}

// Lane geometry, in category-axis units.
const (
	violinOffset = 0.20 // gap between lane center and violin base
	violinHeight = 0.55 // peak density scaled to this height
	jitterSpread = 0.12
	boxWidth     = vg.Length(10)
)

// Figure dimensions.
const (
	width  = 6 * vg.Inch
	height = 5 * vg.Inch
)

// Render draws the figure and returns the artifact path.
func Render(ctx context.Context, cfg Config) (string, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	store, err := dataset.Open(ctx, logger)
	if err != nil {
		return "", err
	}
	defer func() { _ = store.Close() }()

	f, err := store.LoadFrame(ctx, "observations", cfg.InputCSV)
	if err != nil {
		return "", err
	}

	groups, err := f.Strings("groupID")
	if err != nil {
		return "", fmt.Errorf("observation table: %w", err)
	}
	values, err := f.Floats("NF")
	if err != nil {
		return "", fmt.Errorf("observation table: %w", err)
	}

	byGroup := make(map[string][]float64)
	var labels []string
	for i, g := range groups {
		if _, ok := byGroup[g]; !ok {
			labels = append(labels, g)
		}
		byGroup[g] = append(byGroup[g], values[i])
	}
	labels = style.Order(labels)

	p := plotkit.New()
	p.X.Label.Text = "Nitrogen fixation"
	p.NominalY(labels...)

	rng := rand.New(rand.NewSource(cfg.Seed))
	for lane, label := range labels {
		if err := addLane(p, float64(lane), label, byGroup[label], cfg.Palette, rng); err != nil {
			return "", err
		}
	}

	if err := plotkit.SavePDF(p, width, height, cfg.OutPath); err != nil {
		return "", err
	}

	logger.Info("distribution figure rendered",
		"groups", len(labels),
		"observations", len(values),
		"path", cfg.OutPath)
	return cfg.OutPath, nil
}

// addLane draws one group's violin, jitter and box at the given lane
// position.
func addLane(p *plot.Plot, lane float64, label string, vals []float64, pal style.Palette, rng *rand.Rand) error {
	col := pal.Color(label)

	// Half violin above the lane.
	curve := plotkit.Density(vals, 0, 128)
	if peak := curve.MaxY(); peak > 0 {
		outline := make(plotter.XYs, 0, len(curve.X)+2)
		outline = append(outline, plotter.XY{X: curve.X[0], Y: lane + violinOffset})
		for i := range curve.X {
			outline = append(outline, plotter.XY{
				X: curve.X[i],
				Y: lane + violinOffset + violinHeight*curve.Y[i]/peak,
			})
		}
		outline = append(outline, plotter.XY{X: curve.X[len(curve.X)-1], Y: lane + violinOffset})

		poly, err := plotter.NewPolygon(outline)
		if err != nil {
			return fmt.Errorf("violin for %s: %w", label, err)
		}
		poly.Color = translucent(col)
		poly.LineStyle.Color = col
		poly.LineStyle.Width = vg.Points(0.75)
		p.Add(poly)
	}

	// Jittered raw points below the lane center.
	pts := make(plotter.XYs, len(vals))
	for i, v := range vals {
		pts[i] = plotter.XY{
			X: v,
			Y: lane - jitterSpread + rng.Float64()*jitterSpread,
		}
	}
	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return fmt.Errorf("jitter for %s: %w", label, err)
	}
	scatter.GlyphStyle = draw.GlyphStyle{
		Color:  col,
		Radius: vg.Points(1.5),
		Shape:  pal.Shape(label),
	}
	p.Add(scatter)

	// Narrow box on the lane center, outliers hidden.
	box, err := plotter.NewBoxPlot(boxWidth, lane, plotter.Values(vals))
	if err != nil {
		return fmt.Errorf("boxplot for %s: %w", label, err)
	}
	box.Horizontal = true
	box.FillColor = nil
	box.BoxStyle.Color = col
	box.MedianStyle.Color = col
	box.WhiskerStyle.Color = col
	box.GlyphStyle.Radius = 0 // hide outlier points
	p.Add(box)

	return nil
}

func translucent(c color.Color) color.Color {
	r, g, b, _ := c.RGBA()
	return color.NRGBA{
		R: uint8(r >> 8),
		G: uint8(g >> 8),
		B: uint8(b >> 8),
		A: 0x55,
	}
}
