// Package style holds the shared visual encoding for ecosystem types.
// Every figure in the pipeline draws the same ecosystem with the same
// marker shape and color, so the mappings live here and are passed into
// render calls as values.
package style

import (
	"image/color"
	"sort"

	"gonum.org/v1/plot/vg/draw"
)

// Ecosystem type labels used across the study inputs.
const (
	Cropland  = "Cropland"
	Grassland = "Grassland"
	Wetland   = "Wetland"
	Forest    = "Forest"
)

// Ecosystems lists the known labels in display order.
var Ecosystems = []string{Cropland, Grassland, Wetland, Forest}

// Palette maps ecosystem labels to marker shapes and colors.
type Palette struct {
	shapes map[string]draw.GlyphDrawer
	colors map[string]color.Color
}

// Default returns the study palette. The fallback for labels outside
// the four known ecosystems is a ring glyph in gray.
func Default() Palette {
	return Palette{
		shapes: map[string]draw.GlyphDrawer{
			Cropland:  draw.CircleGlyph{},
			Grassland: draw.PyramidGlyph{},
			Wetland:   draw.BoxGlyph{},
			Forest:    draw.PlusGlyph{},
		},
		colors: map[string]color.Color{
			Cropland:  color.RGBA{R: 0xe6, G: 0x9f, B: 0x00, A: 0xff},
			Grassland: color.RGBA{R: 0x00, G: 0x9e, B: 0x73, A: 0xff},
			Wetland:   color.RGBA{R: 0x00, G: 0x72, B: 0xb2, A: 0xff},
			Forest:    color.RGBA{R: 0xcc, G: 0x79, B: 0xa7, A: 0xff},
		},
	}
}

// Shape returns the marker glyph for an ecosystem label.
func (p Palette) Shape(ecosystem string) draw.GlyphDrawer {
	if g, ok := p.shapes[ecosystem]; ok {
		return g
	}
	return draw.RingGlyph{}
}

// Color returns the marker color for an ecosystem label.
func (p Palette) Color(ecosystem string) color.Color {
	if c, ok := p.colors[ecosystem]; ok {
		return c
	}
	return color.RGBA{R: 0x99, G: 0x99, B: 0x99, A: 0xff}
}

// Order sorts labels into the canonical display order. Labels not in
// the known set sort after the known ones, alphabetically.
func Order(labels []string) []string {
	rank := make(map[string]int, len(Ecosystems))
	for i, e := range Ecosystems {
		rank[e] = i
	}
	out := append([]string(nil), labels...)
	sort.SliceStable(out, func(i, j int) bool {
		ri, iok := rank[out[i]]
		rj, jok := rank[out[j]]
		switch {
		case iok && jok:
			return ri < rj
		case iok:
			return true
		case jok:
			return false
		default:
			return out[i] < out[j]
		}
	})
	return out
}
