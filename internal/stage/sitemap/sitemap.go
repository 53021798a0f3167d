// Package sitemap renders the sampling-site map: study sites drawn
// over filled world polygons, shaped and colored by ecosystem type.
package sitemap

import (
	"context"
	"fmt"
	"image/color"
	"log/slog"

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
	WorldCSV string // base polygons: long, lat, group
	SitesCSV string // sites: Longitude, Latitude, Type
	OutPath  string
	Palette  style.Palette
	Logger   *slog.Logger
}

// Latitude/longitude display scaling, matching the usual fixed-aspect
// map projection of the source figures.
const aspect = 1.3

// Figure dimensions.
const (
	width  = 9 * vg.Inch
	height = 5 * vg.Inch
)

// Render draws the map and writes the vector file. It returns the
// artifact path.
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

	world, err := store.LoadFrame(ctx, "world", cfg.WorldCSV)
	if err != nil {
		return "", err
	}
	sites, err := store.LoadFrame(ctx, "sites", cfg.SitesCSV)
	if err != nil {
		return "", err
	}

	p := plotkit.New()
	p.HideAxes()

	if err := addWorld(p, world); err != nil {
		return "", err
	}
	labels, err := addSites(p, sites, cfg.Palette)
	if err != nil {
		return "", err
	}

	plotkit.AddEcosystemLegend(p, cfg.Palette, labels)
	p.Legend.Top = true
	p.Legend.Left = true

	// Fixed aspect: latitude stretched relative to longitude.
	p.X.Min, p.X.Max = -180, 180
	p.Y.Min, p.Y.Max = -90, 90

	h := width * vg.Length(aspect*(p.Y.Max-p.Y.Min)/(p.X.Max-p.X.Min))
	if h > height {
		h = height
	}

	if err := plotkit.SavePDF(p, width, h, cfg.OutPath); err != nil {
		return "", err
	}

	logger.Info("site map rendered", "sites", sites.Len(), "path", cfg.OutPath)
	return cfg.OutPath, nil
}

// addWorld draws one filled polygon per polygon group.
func addWorld(p *plot.Plot, world *dataset.Frame) error {
	long, err := world.Floats("long")
	if err != nil {
		return fmt.Errorf("world polygons: %w", err)
	}
	lat, err := world.Floats("lat")
	if err != nil {
		return fmt.Errorf("world polygons: %w", err)
	}
	groups, err := world.Strings("group")
	if err != nil {
		return fmt.Errorf("world polygons: %w", err)
	}

	fill := color.RGBA{R: 0xd9, G: 0xd9, B: 0xd9, A: 0xff}

	var current plotter.XYs
	var currentGroup string
	flush := func() error {
		if len(current) == 0 {
			return nil
		}
		poly, err := plotter.NewPolygon(current)
		if err != nil {
			return fmt.Errorf("world polygon %s: %w", currentGroup, err)
		}
		poly.Color = fill
		poly.LineStyle.Width = 0
		p.Add(poly)
		current = nil
		return nil
	}

	for i := range long {
		if groups[i] != currentGroup {
			if err := flush(); err != nil {
				return err
			}
			currentGroup = groups[i]
		}
		current = append(current, plotter.XY{X: long[i], Y: lat[i]})
	}
	return flush()
}

// addSites draws one scatter per ecosystem type and returns the types
// present, so the legend lists exactly those.
func addSites(p *plot.Plot, sites *dataset.Frame, pal style.Palette) ([]string, error) {
	long, err := sites.Floats("Longitude")
	if err != nil {
		return nil, fmt.Errorf("site table: %w", err)
	}
	lat, err := sites.Floats("Latitude")
	if err != nil {
		return nil, fmt.Errorf("site table: %w", err)
	}
	types, err := sites.Strings("Type")
	if err != nil {
		return nil, fmt.Errorf("site table: %w", err)
	}

	byType := make(map[string]plotter.XYs)
	var labels []string
	for i := range long {
		if _, ok := byType[types[i]]; !ok {
			labels = append(labels, types[i])
		}
		byType[types[i]] = append(byType[types[i]], plotter.XY{X: long[i], Y: lat[i]})
	}

	for _, label := range style.Order(labels) {
		s, err := plotter.NewScatter(byType[label])
		if err != nil {
			return nil, fmt.Errorf("site markers %s: %w", label, err)
		}
		s.GlyphStyle = draw.GlyphStyle{
			Color:  pal.Color(label),
			Radius: vg.Points(3),
			Shape:  pal.Shape(label),
		}
		p.Add(s)
	}
	return labels, nil
}
