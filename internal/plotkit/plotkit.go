// Package plotkit provides the shared figure helpers used by the
// rendering stages: a common plot theme, vector output, kernel density
// estimation for violin outlines, and legend construction.
package plotkit

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/soilbiogeo/nifpipe/internal/style"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgpdf"
)

// House font sizes, shared by all figures.
const (
	TitleSize = vg.Length(12)
	LabelSize = vg.Length(10)
	TickSize  = vg.Length(8)
)

// New returns a plot with the house theme applied.
func New() *plot.Plot {
	p := plot.New()
	p.Title.TextStyle.Font.Size = TitleSize
	p.X.Label.TextStyle.Font.Size = LabelSize
	p.Y.Label.TextStyle.Font.Size = LabelSize
	p.X.Tick.Label.Font.Size = TickSize
	p.Y.Tick.Label.Font.Size = TickSize
	p.Legend.TextStyle.Font.Size = TickSize
	p.BackgroundColor = nil
	return p
}

// SavePDF writes the plot as a vector PDF, creating the parent
// directory if needed.
func SavePDF(p *plot.Plot, width, height vg.Length, path string) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := p.Save(width, height, path); err != nil {
		return fmt.Errorf("failed to save figure %s: %w", path, err)
	}
	return nil
}

// SaveGridPDF tiles the given plots into one vector PDF. Nil cells
// leave their tile blank.
func SaveGridPDF(plots [][]*plot.Plot, width, height vg.Length, path string) error {
	if len(plots) == 0 || len(plots[0]) == 0 {
		return fmt.Errorf("empty plot grid for %s", path)
	}

	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	img := vgpdf.New(width, height)
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows: len(plots),
		Cols: len(plots[0]),
		PadX: vg.Points(6),
		PadY: vg.Points(6),
	}
	canvases := plot.Align(plots, tiles, dc)
	for i := range plots {
		for j := range plots[i] {
			if plots[i][j] != nil {
				plots[i][j].Draw(canvases[i][j])
			}
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create figure %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	if _, err := img.WriteTo(f); err != nil {
		return fmt.Errorf("failed to save figure %s: %w", path, err)
	}
	return f.Close()
}

// AddEcosystemLegend appends one legend entry per label, in canonical
// order, using the palette's glyphs.
func AddEcosystemLegend(p *plot.Plot, pal style.Palette, labels []string) {
	for _, label := range style.Order(labels) {
		thumb := glyphThumbnail{
			style: draw.GlyphStyle{
				Color:  pal.Color(label),
				Radius: vg.Points(3),
				Shape:  pal.Shape(label),
			},
		}
		p.Legend.Add(label, thumb)
	}
}

// glyphThumbnail draws a single glyph centered in the legend cell.
type glyphThumbnail struct {
	style draw.GlyphStyle
}

func (g glyphThumbnail) Thumbnail(c *draw.Canvas) {
	pt := vg.Point{
		X: (c.Min.X + c.Max.X) / 2,
		Y: (c.Min.Y + c.Max.Y) / 2,
	}
	c.DrawGlyph(g.style, pt)
}
