package jsdm

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/soilbiogeo/nifpipe/internal/testutil"
)

// surveyCSV builds a plot table with 18 covariates where the first two
// carry the signal, plus plot-level offsets.
func surveyCSV(t *testing.T, dir string) string {
	t.Helper()
	rng := rand.New(rand.NewSource(21))

	var b strings.Builder
	b.WriteString("plot")
	for j := 1; j <= 18; j++ {
		fmt.Fprintf(&b, ",c%02d", j)
	}
	b.WriteString(",target\n")

	for p := 0; p < 10; p++ {
		offset := rng.NormFloat64() * 0.4
		for r := 0; r < 4; r++ {
			fmt.Fprintf(&b, "P%d", p+1)
			var signal float64
			for j := 0; j < 18; j++ {
				x := rng.NormFloat64()
				if j == 0 {
					signal += 2 * x
				}
				if j == 1 {
					signal -= x
				}
				fmt.Fprintf(&b, ",%.4f", x)
			}
			fmt.Fprintf(&b, ",%.4f\n", 1+signal+offset+rng.NormFloat64()*0.3)
		}
	}

	path := filepath.Join(dir, "forest.csv")
	if err := os.WriteFile(path, []byte(b.String()), 0600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func runStage(t *testing.T, dir, input string) *Result {
	t.Helper()
	res, err := Run(context.Background(), Config{
		InputCSV: input,
		OutDir:   dir,
		Samples:  80,
		Thin:     1,
		Chains:   2,
		Seed:     42,
		Logger:   testutil.NewTestLogger(t),
	})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	return res
}

func TestRunProducesPartitionAndFigures(t *testing.T) {
	dir := t.TempDir()
	res := runStage(t, dir, surveyCSV(t, dir))

	if len(res.Partition.Covariates) != 18 {
		t.Fatalf("partition entries = %d, want 18", len(res.Partition.Covariates))
	}
	var sum float64
	for _, c := range res.Partition.Covariates {
		sum += c.Fraction
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("covariate fractions sum to %f, want 1", sum)
	}

	if len(res.Groups) != 4 {
		t.Fatalf("group entries = %d, want 4", len(res.Groups))
	}
	// Climate = covariates 1 and 2, which carry all the signal here.
	if res.Groups[0].Group != "Climate" {
		t.Errorf("first group = %s, want Climate", res.Groups[0].Group)
	}
	if res.Groups[0].Fraction < 0.5 {
		t.Errorf("Climate fraction = %f, want dominant", res.Groups[0].Fraction)
	}

	var groupSum float64
	for _, g := range res.Groups {
		groupSum += g.Fraction
	}
	if math.Abs(groupSum-sum) > 1e-9 {
		t.Errorf("group fractions sum to %f, want %f", groupSum, sum)
	}

	for _, artifact := range res.Artifacts {
		info, err := os.Stat(artifact)
		if err != nil {
			t.Errorf("artifact missing: %v", err)
			continue
		}
		if info.Size() == 0 {
			t.Errorf("artifact %s is empty", artifact)
		}
	}
}

func TestRunDiagnostics(t *testing.T) {
	dir := t.TempDir()
	res := runStage(t, dir, surveyCSV(t, dir))

	if res.ESS.Min <= 0 || res.ESS.Min > res.ESS.Mean || res.ESS.Mean > res.ESS.Max {
		t.Errorf("ESS summary out of order: %+v", res.ESS)
	}
	if res.Metrics.R2 < 0.7 {
		t.Errorf("R2 = %f, want strong fit on simulated signal", res.Metrics.R2)
	}
	if len(res.CoefNames) != len(res.CoefMeans) {
		t.Errorf("coefficient names/means length mismatch: %d vs %d", len(res.CoefNames), len(res.CoefMeans))
	}
}

func TestRunRejectsNarrowTable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "narrow.csv")
	if err := os.WriteFile(path, []byte("plot,c01,target\nP1,1.0,2.0\n"), 0600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	_, err := Run(context.Background(), Config{
		InputCSV: path,
		OutDir:   dir,
		Samples:  10,
		Chains:   1,
		Logger:   testutil.NewTestLogger(t),
	})
	if err == nil {
		t.Fatal("expected an error for a table missing covariate columns")
	}
}

func TestRunMissingInput(t *testing.T) {
	dir := t.TempDir()
	_, err := Run(context.Background(), Config{
		InputCSV: filepath.Join(dir, "absent.csv"),
		OutDir:   dir,
		Samples:  10,
		Chains:   1,
	})
	if err == nil {
		t.Fatal("expected an error for a missing input file")
	}
}
