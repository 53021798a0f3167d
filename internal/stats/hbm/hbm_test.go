package hbm

import (
	"context"
	"math"
	"math/rand"
	"testing"
)

// simulated study: 12 plots, 5 rows each, linear signal on two of
// three covariates plus plot offsets.
func simulate(seed int64) ([]float64, []Covariate, []string) {
	rng := rand.New(rand.NewSource(seed))

	nPlots := 12
	perPlot := 5
	n := nPlots * perPlot

	x1 := make([]float64, n)
	x2 := make([]float64, n)
	x3 := make([]float64, n)
	y := make([]float64, n)
	plots := make([]string, n)

	for p := 0; p < nPlots; p++ {
		offset := rng.NormFloat64() * 0.5
		for r := 0; r < perPlot; r++ {
			i := p*perPlot + r
			x1[i] = rng.NormFloat64()
			x2[i] = rng.NormFloat64()
			x3[i] = rng.NormFloat64()
			y[i] = 1 + 2*x1[i] - x2[i] + offset + rng.NormFloat64()*0.3
			plots[i] = string(rune('A' + p))
		}
	}

	covs := []Covariate{
		{Name: "x1", Values: x1},
		{Name: "x2", Values: x2},
		{Name: "x3", Values: x3},
	}
	return y, covs, plots
}

// fitSimulated fits the fixed simulated dataset; samplerSeed varies
// only the MCMC draws, not the data.
func fitSimulated(t *testing.T, samplerSeed int64) *Posterior {
	t.Helper()
	y, covs, plots := simulate(3)

	m, err := Configure(y, covs, plots)
	if err != nil {
		t.Fatalf("Configure() failed: %v", err)
	}

	post, err := Fit(context.Background(), m, Options{
		Samples: 150,
		Chains:  2,
		Seed:    samplerSeed,
	})
	if err != nil {
		t.Fatalf("Fit() failed: %v", err)
	}
	return post
}

func TestFitRecoversCoefficients(t *testing.T) {
	post := fitSimulated(t, 42)

	means := post.CoefMeans()
	want := []float64{1, 2, -1, 0}
	for j, w := range want {
		if math.Abs(means[j]-w) > 0.35 {
			t.Errorf("coefficient %s = %f, want ~%f", post.CoefNames[j], means[j], w)
		}
	}
}

func TestFitReproducible(t *testing.T) {
	a := fitSimulated(t, 7)
	b := fitSimulated(t, 7)

	ma, mb := a.CoefMeans(), b.CoefMeans()
	for j := range ma {
		if ma[j] != mb[j] {
			t.Fatalf("posterior means differ between identical seeds: %v vs %v", ma, mb)
		}
	}
}

func TestEffectiveSampleSizes(t *testing.T) {
	post := fitSimulated(t, 42)

	ess := post.EffectiveSampleSizes()
	if len(ess) != len(post.CoefNames) {
		t.Fatalf("ESS entries = %d, want %d", len(ess), len(post.CoefNames))
	}

	totalRetained := 0
	for _, c := range post.Chains {
		totalRetained += len(c.Beta)
	}
	for j, v := range ess {
		if v <= 0 || v > float64(totalRetained)+1e-9 {
			t.Errorf("ESS[%s] = %f, want in (0, %d]", post.CoefNames[j], v, totalRetained)
		}
	}

	s := SummarizeESS(ess)
	if s.Min > s.Mean || s.Mean > s.Max {
		t.Errorf("ESS summary out of order: %+v", s)
	}
}

func TestPartitionFractionsSumToOne(t *testing.T) {
	post := fitSimulated(t, 42)

	part := post.PartitionVariance()
	if len(part.Covariates) != 3 {
		t.Fatalf("partition entries = %d, want 3", len(part.Covariates))
	}

	var sum float64
	for _, f := range part.Covariates {
		if f.Fraction < 0 {
			t.Errorf("fraction for %s is negative: %f", f.Covariate, f.Fraction)
		}
		sum += f.Fraction
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("fractions sum to %f, want 1", sum)
	}

	if part.RandomVar <= 0 {
		t.Errorf("random-effect variance = %f, want > 0", part.RandomVar)
	}

	// The dominant covariate should claim the largest slice.
	if part.Covariates[0].Fraction <= part.Covariates[2].Fraction {
		t.Errorf("x1 fraction %f should exceed noise covariate fraction %f",
			part.Covariates[0].Fraction, part.Covariates[2].Fraction)
	}
}

func TestPartitionByGroup(t *testing.T) {
	post := fitSimulated(t, 42)
	part := post.PartitionVariance()

	groups, err := part.PartitionByGroup([]int{1, 1, 2}, []string{"signal", "noise"})
	if err != nil {
		t.Fatalf("PartitionByGroup() failed: %v", err)
	}

	wantSignal := part.Covariates[0].Fraction + part.Covariates[1].Fraction
	if math.Abs(groups[0].Fraction-wantSignal) > 1e-12 {
		t.Errorf("grouped fraction = %f, want sum of members %f", groups[0].Fraction, wantSignal)
	}
	if math.Abs(groups[1].Fraction-part.Covariates[2].Fraction) > 1e-12 {
		t.Errorf("second group fraction = %f, want %f", groups[1].Fraction, part.Covariates[2].Fraction)
	}

	if _, err := part.PartitionByGroup([]int{1, 2}, []string{"a", "b"}); err == nil {
		t.Error("short assignment should error")
	}
	if _, err := part.PartitionByGroup([]int{1, 2, 9}, []string{"a", "b"}); err == nil {
		t.Error("out-of-range group should error")
	}
}

func TestEvaluate(t *testing.T) {
	post := fitSimulated(t, 42)

	metrics, err := post.Evaluate()
	if err != nil {
		t.Fatalf("Evaluate() failed: %v", err)
	}
	if metrics.R2 < 0.7 {
		t.Errorf("R2 = %f, want strong fit on simulated signal", metrics.R2)
	}
	if metrics.RMSE <= 0 {
		t.Errorf("RMSE = %f, want > 0", metrics.RMSE)
	}
}

func TestConfigureValidation(t *testing.T) {
	good := []Covariate{{Name: "x", Values: []float64{1, 2}}}

	tests := []struct {
		name  string
		y     []float64
		covs  []Covariate
		plots []string
	}{
		{name: "empty response", covs: good, plots: nil},
		{name: "no covariates", y: []float64{1, 2}, plots: []string{"a", "b"}},
		{name: "plot mismatch", y: []float64{1, 2}, covs: good, plots: []string{"a"}},
		{name: "missing plot key", y: []float64{1, 2}, covs: good, plots: []string{"a", ""}},
		{
			name:  "nan covariate",
			y:     []float64{1, 2},
			covs:  []Covariate{{Name: "x", Values: []float64{1, math.NaN()}}},
			plots: []string{"a", "b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Configure(tt.y, tt.covs, tt.plots); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
