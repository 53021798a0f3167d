package importance

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/soilbiogeo/nifpipe/internal/testutil"
)

// predictorCSV builds a table where x1 drives nifH, x2 and x3 are
// noise, and the first column is a non-numeric row label.
func predictorCSV(t *testing.T, dir string, withGap bool) string {
	t.Helper()
	rng := rand.New(rand.NewSource(5))

	var b strings.Builder
	b.WriteString("sample,x1,x2,x3,nifH\n")
	for i := 0; i < 120; i++ {
		x1 := rng.NormFloat64()
		x2 := rng.NormFloat64()
		x3 := rng.NormFloat64()
		y := 3*x1 + rng.NormFloat64()*0.3
		if withGap && i == 60 {
			fmt.Fprintf(&b, "s%d,%.4f,,%.4f,%.4f\n", i, x1, x3, y)
			continue
		}
		fmt.Fprintf(&b, "s%d,%.4f,%.4f,%.4f,%.4f\n", i, x1, x2, x3, y)
	}

	name := "mydata.csv"
	if withGap {
		name = "gappy.csv"
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(b.String()), 0600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestRunRanksSignalFirst(t *testing.T) {
	dir := t.TempDir()

	res, err := Run(context.Background(), Config{
		InputCSV: predictorCSV(t, dir, false),
		Target:   "nifH",
		Trees:    100,
		Seed:     42,
		Workers:  4,
		Logger:   testutil.NewTestLogger(t),
	})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	if res.Features != 3 {
		t.Errorf("features = %d, want 3 (label column excluded)", res.Features)
	}
	if len(res.Ranking) != 3 {
		t.Fatalf("ranking entries = %d, want 3", len(res.Ranking))
	}
	if res.Ranking[0].Feature != "x1" {
		t.Errorf("top feature = %s, want x1", res.Ranking[0].Feature)
	}
}

func TestRunDeterministicForSeed(t *testing.T) {
	dir := t.TempDir()
	in := predictorCSV(t, dir, false)

	run := func(workers int) *Result {
		res, err := Run(context.Background(), Config{
			InputCSV: in,
			Target:   "nifH",
			Trees:    60,
			Seed:     7,
			Workers:  workers,
			Logger:   testutil.NewTestLogger(t),
		})
		if err != nil {
			t.Fatalf("Run() failed: %v", err)
		}
		return res
	}

	a := run(2)
	b := run(8)
	for i := range a.Ranking {
		if a.Ranking[i] != b.Ranking[i] {
			t.Fatalf("rankings differ at %d: %+v vs %+v", i, a.Ranking[i], b.Ranking[i])
		}
	}
}

func TestRunMissingPredictorCell(t *testing.T) {
	dir := t.TempDir()

	_, err := Run(context.Background(), Config{
		InputCSV: predictorCSV(t, dir, true),
		Target:   "nifH",
		Trees:    10,
		Seed:     1,
		Logger:   testutil.NewTestLogger(t),
	})
	if err == nil {
		t.Fatal("expected an error for a missing predictor cell")
	}
}

func TestRunUnknownTarget(t *testing.T) {
	dir := t.TempDir()

	_, err := Run(context.Background(), Config{
		InputCSV: predictorCSV(t, dir, false),
		Target:   "absent",
		Trees:    10,
		Seed:     1,
		Logger:   testutil.NewTestLogger(t),
	})
	if err == nil {
		t.Fatal("expected an error for an unknown response column")
	}
}
