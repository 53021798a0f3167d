// Package output renders command results as tables, markdown or JSON.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
)

// Mode selects the rendering format.
type Mode string

const (
	ModeAuto     Mode = "auto" // TTY: text, otherwise markdown
	ModeText     Mode = "text"
	ModeJSON     Mode = "json"
	ModeMarkdown Mode = "markdown"
)

// Renderer writes command results in the selected mode.
type Renderer struct {
	out    io.Writer
	errOut io.Writer
	mode   Mode
}

// NewRenderer creates a renderer. ModeAuto resolves against out.
func NewRenderer(out, errOut io.Writer, mode Mode) *Renderer {
	return &Renderer{out: out, errOut: errOut, mode: mode}
}

// Resolved returns the effective mode with auto-detection applied.
func (r *Renderer) Resolved() Mode {
	if r.mode != ModeAuto && r.mode != "" {
		return r.mode
	}
	if f, ok := r.out.(*os.File); ok {
		if info, err := f.Stat(); err == nil && info.Mode()&os.ModeCharDevice != 0 {
			return ModeText
		}
	}
	return ModeMarkdown
}

// JSONEnabled reports whether results should be emitted as JSON.
func (r *Renderer) JSONEnabled() bool {
	return r.Resolved() == ModeJSON
}

// Printf writes formatted text to the output stream. Suppressed in
// JSON mode so machine output stays clean.
func (r *Renderer) Printf(format string, args ...any) {
	if r.JSONEnabled() {
		return
	}
	_, _ = fmt.Fprintf(r.out, format, args...)
}

// Errorf writes formatted text to the error stream.
func (r *Renderer) Errorf(format string, args ...any) {
	_, _ = fmt.Fprintf(r.errOut, format, args...)
}

// JSON writes v as indented JSON.
func (r *Renderer) JSON(v any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Table writes a table in the resolved mode.
func (r *Renderer) Table(header []string, rows [][]any) {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)

	headerRow := make(table.Row, len(header))
	for i, h := range header {
		headerRow[i] = h
	}
	t.AppendHeader(headerRow)
	for _, row := range rows {
		t.AppendRow(table.Row(row))
	}

	if r.Resolved() == ModeMarkdown {
		t.RenderMarkdown()
		return
	}
	t.SetStyle(table.StyleLight)
	t.Render()
}

// Result emits v as JSON in JSON mode; otherwise it calls text, which
// renders the human-readable form.
func (r *Renderer) Result(v any, text func()) error {
	if r.JSONEnabled() {
		return r.JSON(v)
	}
	text()
	return nil
}
