package commands

import (
	"bytes"
	"strings"
	"testing"

	"github.com/soilbiogeo/nifpipe/internal/cli/config"
	"github.com/soilbiogeo/nifpipe/internal/cli/output"
	"github.com/soilbiogeo/nifpipe/internal/stage/importance"
	"github.com/soilbiogeo/nifpipe/internal/stats/forest"
	"github.com/soilbiogeo/nifpipe/internal/testutil"
)

func TestBuildStagesOrder(t *testing.T) {
	cfg := &config.Config{DataDir: "data", OutDir: "."}
	r := output.NewRenderer(&bytes.Buffer{}, &bytes.Buffer{}, output.ModeText)

	stages := buildStages(cfg, r, testutil.NewTestLogger(t))

	want := []string{"sitemap", "distribution", "regression", "importance", "jsdm"}
	if len(stages) != len(want) {
		t.Fatalf("stages = %d, want %d", len(stages), len(want))
	}
	for i, name := range want {
		if stages[i].Name != name {
			t.Errorf("stage[%d] = %s, want %s", i, stages[i].Name, name)
		}
	}
}

func TestRenderImportanceTable(t *testing.T) {
	var buf bytes.Buffer
	r := output.NewRenderer(&buf, &bytes.Buffer{}, output.ModeText)

	res := &importance.Result{
		Target:   "nifH",
		Features: 2,
		Rows:     50,
		Ranking: []forest.Importance{
			{Feature: "pH", PctIncMSE: 12.5, IncNodePurity: 40.1},
			{Feature: "MAT", PctIncMSE: 3.2, IncNodePurity: 11.0},
		},
	}
	if err := renderImportance(r, res); err != nil {
		t.Fatalf("renderImportance() failed: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"pH", "MAT", "%INCMSE", "nifH"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	// Rank order follows the ranking slice.
	if strings.Index(out, "pH") > strings.Index(out, "MAT") {
		t.Error("pH should be listed before MAT")
	}
}

func TestNewLogger(t *testing.T) {
	quiet := NewLogger(false)
	if quiet.Enabled(nil, 0) {
		t.Error("non-verbose logger should discard info logs")
	}
	verbose := NewLogger(true)
	if !verbose.Enabled(nil, -4) {
		t.Error("verbose logger should enable debug level")
	}
}
